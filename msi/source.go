// Package msi decodes the relational tables of a Windows Installer database
// stored in a compound file: the string pool, the !_Tables and !_Columns
// catalogs and the column-major table streams. It also interprets the
// CustomAction table and MSI formatted strings.
package msi

// Well-known stream names.
const (
	StringPoolStream = "!_StringPool"
	StringDataStream = "!_StringData"
	TablesStream     = "!_Tables"
	ColumnsStream    = "!_Columns"
)

// StreamSource serves decoded streams by name. *cfb.Container implements it.
//
// Generated mock using mockgen:
//
//	mockgen -source=source.go -destination=source_mock_test.go -package msi
type StreamSource interface {
	ReadStream(name string) ([]byte, error)
}

// TableStream returns the name of the stream holding the rows of table.
func TableStream(table string) string {
	return "!" + table
}
