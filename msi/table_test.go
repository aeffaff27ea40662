package msi

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

func sampleColumns() []Column {
	return []Column{
		{Ordinal: 1, Name: "Name", Type: DecodeColumnType(0x2D48)},
		{Ordinal: 2, Name: "Small", Type: DecodeColumnType(0x1502)},
		{Ordinal: 3, Name: "Big", Type: DecodeColumnType(0x1104)},
	}
}

// sampleData is three rows stored column by column.
func sampleData() []byte {
	le := binary.LittleEndian
	var b []byte
	for _, v := range []uint16{1, 2, 0} {
		b = le.AppendUint16(b, v)
	}
	for _, v := range []uint16{0x8005, 0x7FFD, 0} {
		b = le.AppendUint16(b, v)
	}
	for _, v := range []uint32{0x800186A0, 0x7FFFFFFF, 0} {
		b = le.AppendUint32(b, v)
	}
	return b
}

func TestDecodeTableTransposes(t *testing.T) {
	pool := poolOf(t, "", "alpha", "beta")
	tbl, err := DecodeTable("Sample", sampleColumns(), sampleData(), pool)
	require.NoError(t, err)

	assert.Equal(t, 8, tbl.RowSize)
	assert.Equal(t, [][]uint32{
		{1, 0x8005, 0x800186A0},
		{2, 0x7FFD, 0x7FFFFFFF},
		{0, 0, 0},
	}, tbl.Rows)
	assert.Empty(t, tbl.Warnings)
	assert.Equal(t, tbl.Len()*tbl.RowSize, len(sampleData()))
}

func TestTableValue(t *testing.T) {
	pool := poolOf(t, "", "alpha", "beta")
	tbl, err := DecodeTable("Sample", sampleColumns(), sampleData(), pool)
	require.NoError(t, err)

	assert.Equal(t, Cell{Kind: CellString, Raw: 1, Str: "alpha"}, tbl.Value(0, 0))
	assert.Equal(t, Cell{Kind: CellInt, Raw: 0x8005, Int: 5}, tbl.Value(0, 1))
	assert.Equal(t, Cell{Kind: CellInt, Raw: 0x800186A0, Int: 100000}, tbl.Value(0, 2))
	assert.Equal(t, int32(-3), tbl.Value(1, 1).Int)
	assert.Equal(t, int32(-1), tbl.Value(1, 2).Int)
	assert.Equal(t, CellNull, tbl.Value(2, 0).Kind)
	assert.Equal(t, CellNull, tbl.Value(2, 2).Kind)
	assert.Equal(t, CellNull, tbl.Value(9, 0).Kind)
	assert.Equal(t, CellNull, tbl.Value(0, -1).Kind)

	assert.Equal(t, "beta", tbl.Text(1, 0))
	assert.Equal(t, "-3", tbl.Text(1, 1))
	assert.Equal(t, "", tbl.Text(2, 1))

	v, ok := tbl.Lookup(0, "Big")
	require.True(t, ok)
	assert.Equal(t, "100000", v)
	_, ok = tbl.Lookup(0, "Missing")
	assert.False(t, ok)
}

func TestTableValueDanglingStringRef(t *testing.T) {
	data := binary.LittleEndian.AppendUint16(nil, 42)
	tbl, err := DecodeTable("T", sampleColumns()[:1], data, poolOf(t, "", "x"))
	require.NoError(t, err)
	assert.Equal(t, Cell{Kind: CellRaw, Raw: 42}, tbl.Value(0, 0))
	assert.Equal(t, "0x2a", tbl.Text(0, 0))
}

func TestDecodeTableRowRemainder(t *testing.T) {
	data := append(sampleData(), 1, 2, 3)
	tbl, err := DecodeTable("Sample", sampleColumns(), data, poolOf(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len(), "row count is truncated to whole rows")
	require.Len(t, tbl.Warnings, 1)
	assert.Equal(t, types.DiagRowRemainder, tbl.Warnings[0].Code)
	assert.Equal(t, 8, tbl.Warnings[0].Expected)
	assert.Equal(t, 27, tbl.Warnings[0].Actual)
	assert.True(t, tbl.Warnings[0].StrictFatal())
}

func TestDecodeTableShorterThanRow(t *testing.T) {
	tbl, err := DecodeTable("Sample", sampleColumns(), []byte{1, 2, 3, 4, 5}, poolOf(t, ""))
	require.NoError(t, err)
	assert.Zero(t, tbl.Len())
	require.Len(t, tbl.Warnings, 1)
	assert.Equal(t, types.DiagRowRemainder, tbl.Warnings[0].Code)
}

func TestDecodeTableNoColumns(t *testing.T) {
	tbl, err := DecodeTable("Bare", nil, []byte{1, 2}, poolOf(t, ""))
	require.NoError(t, err)
	assert.Zero(t, tbl.Len())
	assert.Len(t, tbl.Warnings, 1)

	tbl, err = DecodeTable("Bare", nil, nil, poolOf(t, ""))
	require.NoError(t, err)
	assert.Empty(t, tbl.Warnings)
}

func TestTableFingerprint(t *testing.T) {
	pool := poolOf(t, "", "alpha", "beta")
	a, err := DecodeTable("Sample", sampleColumns(), sampleData(), pool)
	require.NoError(t, err)
	b, err := DecodeTable("Sample", sampleColumns(), sampleData(), pool)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	data := sampleData()
	data[0] = 2
	c, err := DecodeTable("Sample", sampleColumns(), data, pool)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestLoadTable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pool := catalogPool(t)
	schema, err := ParseSchema(words(1, 3), catalogColumns(), pool)
	require.NoError(t, err)

	le := binary.LittleEndian
	var data []byte
	data = le.AppendUint16(data, 3)
	data = le.AppendUint16(data, 4)

	src := NewMockStreamSource(ctrl)
	src.EXPECT().ReadStream("!Property").MaxTimes(1).Return(data, nil)
	src.EXPECT().ReadStream("!Feature").MaxTimes(1).
		Return(nil, types.Wrap(types.ErrStreamNotFound, "!Feature", nil))

	tbl, err := LoadTable(src, schema, pool, "Property")
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "Feature", tbl.Text(0, 0))
	assert.Equal(t, "Title", tbl.Text(0, 1))

	tbl, err = LoadTable(src, schema, pool, "Feature")
	require.NoError(t, err, "a table without a stream is empty")
	assert.Zero(t, tbl.Len())
	assert.Len(t, tbl.Columns, 2)
}

func TestLoadTableErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pool := catalogPool(t)
	schema, err := ParseSchema(words(1, 3), catalogColumns(), pool)
	require.NoError(t, err)

	boom := errors.New("read failed")
	src := NewMockStreamSource(ctrl)
	src.EXPECT().ReadStream("!Property").MaxTimes(1).Return(nil, boom)

	_, err = LoadTable(src, schema, pool, "Nope")
	require.ErrorIs(t, err, types.ErrTableNotFound)

	_, err = LoadTable(src, schema, pool, "Property")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Property")
}
