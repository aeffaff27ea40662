package msi

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/EldooRado/MsiAnalyzer/cfb"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// Database is an opened Windows Installer database: a compound file plus
// its decoded string pool and table catalog. Decoded tables are cached.
type Database struct {
	c      *cfb.Container
	opts   types.OpenOptions
	log    *slog.Logger
	pool   *StringPool
	schema *Schema
	cache  *lru.Cache[string, *Table]
}

// Open opens the MSI file at path.
func Open(path string, opts types.OpenOptions) (*Database, error) {
	c, err := cfb.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return adopt(c, opts)
}

// OpenFs opens the MSI file at path on fs.
func OpenFs(fs afero.Fs, path string, opts types.OpenOptions) (*Database, error) {
	c, err := cfb.OpenFs(fs, path, opts)
	if err != nil {
		return nil, err
	}
	return adopt(c, opts)
}

// OpenBytes opens an in-memory MSI image.
func OpenBytes(b []byte, opts types.OpenOptions) (*Database, error) {
	c, err := cfb.OpenBytes(b, opts)
	if err != nil {
		return nil, err
	}
	return adopt(c, opts)
}

func adopt(c *cfb.Container, opts types.OpenOptions) (*Database, error) {
	db, err := New(c, opts)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return db, nil
}

// New decodes the string pool and catalog of an opened container. The
// database takes ownership of c only on success.
func New(c *cfb.Container, opts types.OpenOptions) (*Database, error) {
	opts = opts.Normalize()
	db := &Database{
		c:    c,
		opts: opts,
		log:  opts.Logger.With("component", "msi"),
	}
	if opts.TableCache > 0 {
		cache, err := lru.New[string, *Table](opts.TableCache)
		if err != nil {
			return nil, fmt.Errorf("msi: table cache: %w", err)
		}
		db.cache = cache
	}

	pool, err := BuildStringPoolFrom(c)
	if err != nil {
		return nil, err
	}
	if err := db.record(pool.Warnings); err != nil {
		return nil, err
	}
	db.pool = pool

	schema, err := BuildSchema(c, pool)
	if err != nil {
		return nil, err
	}
	if err := db.record(schema.Warnings); err != nil {
		return nil, err
	}
	db.schema = schema

	db.log.Debug("database loaded",
		"strings", pool.Len(), "codepage", pool.Codepage,
		"tables", len(schema.TableNames), "columns", schema.TotalColumns)
	return db, nil
}

// record adds ds to the container report and logs them. In strict mode the
// first strict-fatal diagnostic is returned as an error.
func (db *Database) record(ds []types.Diagnostic) error {
	var first error
	for _, d := range ds {
		db.c.Diagnostics().Add(d)
		attrs := []any{"code", string(d.Code), "structure", d.Structure}
		if d.Context != nil && d.Context.Table != "" {
			attrs = append(attrs, "table", d.Context.Table)
		}
		if d.Context != nil && d.Context.Stream != "" {
			attrs = append(attrs, "stream", d.Context.Stream)
		}
		db.log.Warn(d.Issue, attrs...)
		if first == nil && db.opts.Strict && d.StrictFatal() {
			first = d.Err()
		}
	}
	return first
}

// Close releases the underlying container.
func (db *Database) Close() error {
	if db.cache != nil {
		db.cache.Purge()
	}
	return db.c.Close()
}

// Container returns the underlying compound file.
func (db *Database) Container() *cfb.Container { return db.c }

// Diagnostics returns the shared report of the container and database.
func (db *Database) Diagnostics() *types.DiagnosticReport { return db.c.Diagnostics() }

// StringPool returns the decoded string pool.
func (db *Database) StringPool() *StringPool { return db.pool }

// Schema returns the decoded table catalog.
func (db *Database) Schema() *Schema { return db.schema }

// TableNames returns the tables in catalog order.
func (db *Database) TableNames() []string {
	out := make([]string, len(db.schema.TableNames))
	copy(out, db.schema.TableNames)
	return out
}

// HasTable reports whether the catalog lists name.
func (db *Database) HasTable(name string) bool {
	_, ok := db.schema.Table(name)
	return ok
}

// Table loads and decodes table name.
func (db *Database) Table(name string) (*Table, error) {
	if db.cache != nil {
		if t, ok := db.cache.Get(name); ok {
			return t, nil
		}
	}
	t, err := LoadTable(db.c, db.schema, db.pool, name)
	if err != nil {
		return nil, err
	}
	if err := db.record(t.Warnings); err != nil {
		return nil, err
	}
	if db.cache != nil {
		db.cache.Add(name, t)
	}
	db.log.Debug("table loaded", "table", name, "rows", t.Len(), "columns", len(t.Columns))
	return t, nil
}

// LoadAll decodes every table independently. A table that fails is reported
// in the error map and as a diagnostic; the others are still returned.
func (db *Database) LoadAll() (map[string]*Table, map[string]error) {
	tables := make(map[string]*Table, len(db.schema.TableNames))
	var failed map[string]error
	for _, name := range db.schema.TableNames {
		t, err := db.Table(name)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[name] = err
			db.c.Diagnostics().Add(types.Diagnostic{
				Severity:  types.SevError,
				Code:      types.DiagTableFailed,
				Structure: "TABLE",
				Issue:     err.Error(),
				Context:   &types.DiagContext{Stream: TableStream(name), Table: name},
			})
			db.log.Error("table failed", "table", name, "error", err)
			continue
		}
		tables[name] = t
	}
	return tables, failed
}

// ReadStream reads a raw stream from the container.
func (db *Database) ReadStream(name string) ([]byte, error) {
	return db.c.ReadStream(name)
}

// Streams lists the streams that are not part of the relational store, such
// as Binary.* and Icon.* payloads and the summary information, sorted by
// name.
func (db *Database) Streams() []cfb.Entry {
	var out []cfb.Entry
	for _, e := range db.c.Entries() {
		if e.Type != cfb.EntryStream || strings.HasPrefix(e.Name, "!") {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Properties returns the Property table as a map. A database without a
// Property table yields an empty map.
func (db *Database) Properties() (map[string]string, error) {
	props := make(map[string]string)
	if !db.HasTable(PropertyTable) {
		return props, nil
	}
	t, err := db.Table(PropertyTable)
	if err != nil {
		return nil, err
	}
	kc, vc := t.ColumnIndex("Property"), t.ColumnIndex("Value")
	if kc < 0 || vc < 0 {
		return nil, types.Wrap(types.ErrCorruptTables, "Property table lacks Property or Value", nil)
	}
	for r := 0; r < t.Len(); r++ {
		props[t.Text(r, kc)] = t.Text(r, vc)
	}
	return props, nil
}

// CustomActions decodes the CustomAction table with script bodies resolved.
// A database without the table yields no actions.
func (db *Database) CustomActions() ([]CustomAction, error) {
	if !db.HasTable(CustomActionTable) {
		return nil, nil
	}
	t, err := db.Table(CustomActionTable)
	if err != nil {
		return nil, err
	}
	props, err := db.Properties()
	if err != nil {
		return nil, err
	}
	return DecodeCustomActions(t, props, db.c)
}

// VendorTable describes a tool-specific table worth reviewing.
type VendorTable struct {
	Table       string
	Vendor      string
	Description string
}

func vendorTable(name string) (VendorTable, bool) {
	switch name {
	case "AI_FileDownload":
		return VendorTable{name, "AdvancedInstaller", "downloads a file during installation"}, true
	case "MPB_RunActions":
		return VendorTable{name, "EMCO", "runs additional actions during installation"}, true
	default:
		return VendorTable{}, false
	}
}

// VendorTables returns the tool-specific tables present in the catalog.
func (db *Database) VendorTables() []VendorTable {
	var out []VendorTable
	for _, name := range db.schema.TableNames {
		if vt, ok := vendorTable(name); ok {
			out = append(out, vt)
		}
	}
	return out
}
