package cfb

import (
	"fmt"
	"strings"

	"github.com/EldooRado/MsiAnalyzer/internal/format"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// nameAlphabet is the 64-character alphabet of packed MSI stream names.
const nameAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz._"

const (
	pairBase    = 0x3800 // first unit holding two packed characters
	singleBase  = 0x4800 // first unit holding one packed character
	singleLimit = 0x4900
	tableMarker = 0x4840 // decodes to '!', the prefix of table streams
)

// DecodeStreamName turns a raw directory name into its MSI stream name.
//
// Units whose high byte is zero are literal bytes and a zero unit ends the
// name. Literals 0x80..0xFF are kept as single bytes, so the result is not
// necessarily valid UTF-8. Units in 0x3800..0x47FF pack two alphabet characters, 0x4840 is
// the table prefix '!', and the rest of 0x48xx packs a single character.
// Any other unit yields types.ErrUnknownEncoding. At most
// min(lengthBytes/2, 32) units are examined.
func DecodeStreamName(units []uint16, lengthBytes int) (string, error) {
	n := lengthBytes / 2
	if n > format.DirNameUnits {
		n = format.DirNameUnits
	}
	if n > len(units) {
		n = len(units)
	}
	if n < 0 {
		n = 0
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		u := units[i]
		switch {
		case u>>8 == 0:
			if u == 0 {
				return b.String(), nil
			}
			b.WriteByte(byte(u))
		case u >= pairBase && u < singleBase:
			b.WriteByte(nameAlphabet[u&0x3F])
			b.WriteByte(nameAlphabet[((u-pairBase)>>6)&0x3F])
		case u == tableMarker:
			b.WriteByte('!')
		case u >= singleBase && u < singleLimit:
			b.WriteByte(nameAlphabet[u&0x3F])
		default:
			return "", types.Wrap(types.ErrUnknownEncoding,
				fmt.Sprintf("unit %d is 0x%04X", i, u), nil)
		}
	}
	return b.String(), nil
}

// EncodeStreamName packs name the way Windows Installer stores stream
// names: '!' becomes the table marker, runs of alphabet characters are
// packed two per unit, and any other byte is stored literally. name is
// treated as bytes, mirroring DecodeStreamName. The result does not include
// the terminating zero unit.
func EncodeStreamName(name string) ([]uint16, error) {
	var out []uint16
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '!' {
			out = append(out, tableMarker)
			continue
		}
		first := strings.IndexByte(nameAlphabet, c)
		if first < 0 {
			if c == 0 {
				return nil, fmt.Errorf("cfb: stream name %q contains a zero byte", name)
			}
			out = append(out, uint16(c))
			continue
		}
		if i+1 < len(name) {
			if second := strings.IndexByte(nameAlphabet, name[i+1]); second >= 0 {
				out = append(out, uint16(pairBase+first+second<<6))
				i++
				continue
			}
		}
		out = append(out, uint16(singleBase+first))
	}
	if len(out) >= format.DirNameUnits {
		return nil, fmt.Errorf("cfb: stream name %q needs %d units, limit is %d", name, len(out), format.DirNameUnits-1)
	}
	return out, nil
}
