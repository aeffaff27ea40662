package cfb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

func TestDecodeStreamNameVectors(t *testing.T) {
	tests := []struct {
		name  string
		units []uint16
		want  string
	}{
		{"packed pair", []uint16{0x3924}, "a4"},
		{"table marker", []uint16{0x4840}, "!"},
		{"ascii stops at zero", []uint16{'A', 'B', 0, 'C'}, "AB"},
		{"single tail", []uint16{0x4800 + 10}, "A"},
		{"summary information", []uint16{5, 'S', 'u', 'm'}, "\x05Sum"},
		{"high literal is one byte", []uint16{'c', 0x00E9, 0x00FF}, "c\xe9\xff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeStreamName(tt.units, 2*len(tt.units))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeStreamNameLength(t *testing.T) {
	units := []uint16{'a', 'b', 'c', 'd'}
	got, err := DecodeStreamName(units, 4)
	require.NoError(t, err)
	assert.Equal(t, "ab", got, "only lengthBytes/2 units are examined")

	got, err = DecodeStreamName(units, 1000)
	require.NoError(t, err)
	assert.Equal(t, "abcd", got, "length is capped by the units available")

	got, err = DecodeStreamName(units, -2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeStreamNameUnknownEncoding(t *testing.T) {
	for _, u := range []uint16{0x0100, 0x3700, 0x4900, 0xFFFF} {
		_, err := DecodeStreamName([]uint16{'x', u}, 4)
		require.Error(t, err, "unit 0x%04X", u)
		assert.True(t, errors.Is(err, types.ErrUnknownEncoding))
	}
}

func TestEncodeStreamNameRoundTrip(t *testing.T) {
	for _, name := range []string{
		"!_StringPool", "!_Columns", "!CustomAction", "Binary.aicustact.dll",
		"Icon.ico_1", "a", "!", "x.y_z", "name with space", "caf\xe9",
	} {
		units, err := EncodeStreamName(name)
		require.NoError(t, err, name)
		got, err := DecodeStreamName(units, 2*len(units))
		require.NoError(t, err, name)
		assert.Equal(t, name, got)
	}
}

func TestEncodeStreamNamePacksPairs(t *testing.T) {
	units, err := EncodeStreamName("!_Tables")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4840), units[0])
	assert.Len(t, units, 5, "marker plus seven packed characters")
}

func TestEncodeStreamNameHighBytes(t *testing.T) {
	units, err := EncodeStreamName("\xe9")
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x00E9}, units)
}

func TestEncodeStreamNameRejects(t *testing.T) {
	_, err := EncodeStreamName("a\x00b")
	assert.Error(t, err)

	long := make([]byte, 80)
	for i := range long {
		long[i] = 'a'
	}
	_, err = EncodeStreamName(string(long))
	assert.Error(t, err)
}
