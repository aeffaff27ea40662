package cfb_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldooRado/MsiAnalyzer/cfb"
	"github.com/EldooRado/MsiAnalyzer/internal/format"
	"github.com/EldooRado/MsiAnalyzer/internal/testutil"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%251)
	}
	return b
}

func sampleCFB(version uint16) *testutil.CFB {
	b := &testutil.CFB{Version: version}
	b.Add("!_StringPool", pattern(24, 1)).
		Add("!_StringData", pattern(19, 2)).
		Add("Binary.aicustact.dll", pattern(9000, 3)).
		AddLiteral("\x05SummaryInformation", pattern(300, 4)).
		AddStorage("Storage")
	return b
}

func TestOpenBytesV3(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, cfb.StateReady, c.State())
	assert.Equal(t, uint32(512), c.SectorSize())
	assert.Equal(t, []string{"\x05SummaryInformation", "!_StringData", "!_StringPool", "Binary.aicustact.dll", "Root Entry", "Storage"}, c.Names())

	for name, want := range map[string][]byte{
		"!_StringPool":          pattern(24, 1),
		"!_StringData":          pattern(19, 2),
		"Binary.aicustact.dll":  pattern(9000, 3),
		"\x05SummaryInformation": pattern(300, 4),
	} {
		got, err := c.ReadStream(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	assert.False(t, c.Diagnostics().HasAnyIssues(), c.Diagnostics().FormatTextCompact())

	info := c.Info()
	assert.Equal(t, uint16(3), info.MajorVersion)
	assert.Equal(t, uint32(64), info.MiniSectorSize)
	assert.Equal(t, uint32(img.Sectors), info.SectorCount)
}

func TestOpenBytesV4(t *testing.T) {
	img := sampleCFB(4).MustBuild(t)
	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, uint32(4096), c.SectorSize())
	got, err := c.ReadStream("Binary.aicustact.dll")
	require.NoError(t, err)
	assert.Equal(t, pattern(9000, 3), got)
}

func TestDIFATSpillOver(t *testing.T) {
	b := sampleCFB(3)
	b.MinFATSectors = format.HeaderDIFATEntries + 20
	img := b.MustBuild(t)
	require.NotEmpty(t, img.DIFATSectors)

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, uint32(len(img.DIFATSectors)), c.Info().DIFATSectors)

	got, err := c.ReadStream("Binary.aicustact.dll")
	require.NoError(t, err)
	assert.Equal(t, pattern(9000, 3), got)
}

func TestMiniStreamCutoffRouting(t *testing.T) {
	b := &testutil.CFB{}
	b.Add("exact", pattern(4096, 7)).Add("over", pattern(4097, 8))
	img := b.MustBuild(t)
	require.True(t, img.Mini["exact"])
	require.False(t, img.Mini["over"])

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()

	exact, err := c.ReadStream("exact")
	require.NoError(t, err)
	assert.Equal(t, pattern(4096, 7), exact)
	over, err := c.ReadStream("over")
	require.NoError(t, err)
	assert.Equal(t, pattern(4097, 8), over)

	// Corrupting the mini-FAT breaks only the 4096-byte stream, and the
	// main FAT only the 4097-byte one.
	img.SetMiniFAT(img.Starts["exact"], 0xFFFFF0)
	c2, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	_, err = c2.ReadStream("exact")
	assert.True(t, errors.Is(err, types.ErrOutOfBounds), "got %v", err)
	_, err = c2.ReadStream("over")
	assert.NoError(t, err)
}

func TestReadStreamNotFoundAndStorage(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ReadStream("!Missing")
	assert.True(t, errors.Is(err, types.ErrStreamNotFound))
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrKindNotFound, kind)

	data, err := c.ReadStream("Storage")
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.Len(t, c.Diagnostics().ByCode(types.DiagNotAStream), 1)

	e, ok := c.Entry("Storage")
	require.True(t, ok)
	assert.Equal(t, cfb.EntryStorage, e.Type)
	assert.Equal(t, "storage", e.Type.String())
	assert.True(t, c.Has("Root Entry"))
}

func TestReadStreamReturnsCopy(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	orig := bytes.Clone(img.Bytes)
	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()

	got, err := c.ReadStream("Binary.aicustact.dll")
	require.NoError(t, err)
	for i := range got {
		got[i] = 0
	}
	assert.Equal(t, orig, img.Bytes, "mutating a stream must not touch the source")
}

func TestCorruptFATEntryOutOfBounds(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	start := img.Starts["Binary.aicustact.dll"]
	img.SetFAT(start+1, 0x00FFFFFF)

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err, "the broken chain is only walked on read")
	defer c.Close()

	_, err = c.ReadStream("Binary.aicustact.dll")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrOutOfBounds), "got %v", err)

	// other streams are unaffected
	_, err = c.ReadStream("!_StringPool")
	assert.NoError(t, err)
}

func TestCyclicFATChain(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	start := img.Starts["Binary.aicustact.dll"]
	img.SetFAT(start+3, start)

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()

	// the 18-sector read revisits the loop but stays bounded; the
	// chain never reaches END_OF_CHAIN, so it is reported
	_, err = c.ReadStream("Binary.aicustact.dll")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Diagnostics().ByCode(types.DiagChainNotTerminated))
}

func TestUnterminatedChainStrict(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	start := img.Starts["Binary.aicustact.dll"]
	// 9000 bytes is 18 sectors; point the last one at a free marker
	img.SetFAT(start+17, format.FreeSect)

	lenient, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	_, err = lenient.ReadStream("Binary.aicustact.dll")
	require.NoError(t, err)
	assert.Len(t, lenient.Diagnostics().ByCode(types.DiagChainNotTerminated), 1)

	strict, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{Strict: true})
	require.NoError(t, err)
	_, err = strict.ReadStream("Binary.aicustact.dll")
	assert.True(t, errors.Is(err, types.ErrChainNotTerminated), "got %v", err)
}

func TestHeaderValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(img *testutil.Image)
	}{
		{"bad magic", func(img *testutil.Image) { img.Bytes[0] = 0 }},
		{"major 5", func(img *testutil.Image) { img.SetHeaderU16(format.HdrMajorVersionOffset, 5) }},
		{"v3 with 4096 sectors", func(img *testutil.Image) { img.SetHeaderU16(format.HdrSectorShiftOffset, 12) }},
		{"big endian", func(img *testutil.Image) { img.SetHeaderU16(format.HdrByteOrderOffset, 0xFEFF) }},
		{"mini shift", func(img *testutil.Image) { img.SetHeaderU16(format.HdrMiniSectorShiftOffset, 7) }},
		{"cutoff", func(img *testutil.Image) { img.SetHeaderU32(format.HdrMiniCutoffOffset, 1024) }},
		{"v3 dir count", func(img *testutil.Image) { img.SetHeaderU32(format.HdrDirSectorsOffset, 1) }},
		{"no fat", func(img *testutil.Image) { img.SetHeaderU32(format.HdrFATSectorsOffset, 0) }},
		{"fat count beyond file", func(img *testutil.Image) { img.SetHeaderU32(format.HdrFATSectorsOffset, 100) }},
		{"first fat outside file", func(img *testutil.Image) { img.SetHeaderU32(format.HdrDIFATOffset, 0x7FFF) }},
		{"too many fat without difat", func(img *testutil.Image) { img.SetHeaderU32(format.HdrFATSectorsOffset, 200) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := sampleCFB(3).MustBuild(t)
			tt.mutate(img)
			_, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidHeader), "got %v", err)
		})
	}
}

func TestTruncatedFile(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)

	_, err := cfb.OpenBytes(img.Bytes[:100], types.OpenOptions{})
	assert.True(t, errors.Is(err, types.ErrInvalidHeader))

	_, err = cfb.OpenBytes(img.Bytes[:format.HeaderSize], types.OpenOptions{})
	assert.True(t, errors.Is(err, types.ErrInvalidHeader), "header without sectors")

	// cut inside the large stream: open succeeds, the read is truncated
	cut := img.Bytes[:len(img.Bytes)-600]
	c, err := cfb.OpenBytes(cut, types.OpenOptions{})
	require.NoError(t, err)
	_, err = c.ReadStream("Binary.aicustact.dll")
	assert.True(t, errors.Is(err, types.ErrTruncatedRead) || errors.Is(err, types.ErrOutOfBounds), "got %v", err)
}

func TestCorruptDirectoryRoot(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)
	img.Bytes[img.DirEntryOffset(0)+format.DirTypeOffset] = format.ObjStorage
	_, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	assert.True(t, errors.Is(err, types.ErrCorruptDirectory), "got %v", err)
}

func TestUndecodableNameSkipped(t *testing.T) {
	b := sampleCFB(3)
	b.Streams = append(b.Streams,
		testutil.Stream{Name: "bad", RawName: []uint16{0x0400, 0x0401}, Data: []byte("x")},
		testutil.Stream{Name: "dup", Literal: true, Data: []byte("first")},
		testutil.Stream{Name: "dup", Literal: true, Data: []byte("second")},
	)
	img := b.MustBuild(t)

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{Strict: true})
	require.NoError(t, err, "name problems never fail the load")
	defer c.Close()

	assert.Len(t, c.Diagnostics().ByCode(types.DiagNameSkipped), 1)
	assert.Len(t, c.Diagnostics().ByCode(types.DiagDuplicateName), 1)
	got, err := c.ReadStream("dup")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got, "first slot wins")
}

func TestUnusedDirectorySlots(t *testing.T) {
	b := &testutil.CFB{}
	b.Add("!_Tables", []byte{1, 0})
	img := b.MustBuild(t)

	// Root and one stream leave slots 2 and 3 of the first directory
	// sector unused. Fill them the way some writers do.
	for _, slot := range []int{2, 3} {
		off := img.DirEntryOffset(slot)
		binary.LittleEndian.PutUint32(img.Bytes[off+format.DirStartOffset:], format.EndOfChain)
		binary.LittleEndian.PutUint32(img.Bytes[off+format.DirLeftOffset:], format.NoStream)
		binary.LittleEndian.PutUint32(img.Bytes[off+format.DirRightOffset:], format.NoStream)
		binary.LittleEndian.PutUint32(img.Bytes[off+format.DirChildOffset:], format.NoStream)
	}

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	assert.False(t, c.Diagnostics().HasAnyIssues(), c.Diagnostics().FormatTextCompact())
	assert.Equal(t, []string{"!_Tables", "Root Entry"}, c.Names())
	require.NoError(t, c.Close())

	img.Bytes[img.DirEntryOffset(3)+format.DirTypeOffset] = format.ObjStream
	c, err = cfb.OpenBytes(img.Bytes, types.OpenOptions{})
	require.NoError(t, err)
	defer c.Close()
	assert.Len(t, c.Diagnostics().ByCode(types.DiagNameSkipped), 1, "a typed slot without a name is reported")
}

func TestBudgetExceeded(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)

	_, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{Limits: types.Limits{MaxFileSize: 1024}})
	assert.True(t, errors.Is(err, types.ErrBudgetExceeded))

	c, err := cfb.OpenBytes(img.Bytes, types.OpenOptions{Limits: types.Limits{MaxStreamSize: 8192}})
	require.NoError(t, err)
	_, err = c.ReadStream("Binary.aicustact.dll")
	assert.True(t, errors.Is(err, types.ErrBudgetExceeded))

	c, err = cfb.OpenBytes(img.Bytes, types.OpenOptions{Limits: types.Limits{MaxTotalRead: 12000}})
	require.NoError(t, err)
	_, err = c.ReadStream("Binary.aicustact.dll")
	require.NoError(t, err)
	_, err = c.ReadStream("Binary.aicustact.dll")
	assert.True(t, errors.Is(err, types.ErrBudgetExceeded), "second read exceeds the cumulative budget")
}

func TestOpenFromDiskAndFs(t *testing.T) {
	img := sampleCFB(3).MustBuild(t)

	path := testutil.TempFile(t, "sample.msi", img.Bytes)
	c, err := cfb.Open(path, types.OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, c.Path())
	got, err := c.ReadStream("!_StringData")
	require.NoError(t, err)
	assert.Equal(t, pattern(19, 2), got)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	_, err = c.ReadStream("!_StringData")
	assert.True(t, errors.Is(err, types.ErrClosed))
	assert.Equal(t, cfb.StateClosed, c.State())

	fs := testutil.MemFile(t, "/in/sample.msi", img.Bytes)
	c2, err := cfb.OpenFs(fs, "/in/sample.msi", types.OpenOptions{})
	require.NoError(t, err)
	defer c2.Close()
	assert.Equal(t, c.Names(), c2.Names())

	_, err = cfb.OpenFs(fs, "/in/missing.msi", types.OpenOptions{})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", cfb.StateReady.String())
	assert.Equal(t, "fat-loaded", cfb.StateFATLoaded.String())
	assert.Equal(t, "state(42)", cfb.State(42).String())
	assert.Equal(t, "type(9)", cfb.EntryType(9).String())
}
