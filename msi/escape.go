package msi

import "strings"

// UnescapeFormatted decodes the escapes of an MSI formatted string: [\x]
// becomes x and [~] becomes NUL. Property references are left untouched.
func UnescapeFormatted(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '[' {
			if strings.HasPrefix(s[i:], "[~]") {
				b.WriteByte(0)
				i += 3
				continue
			}
			if i+3 < len(s) && s[i+1] == '\\' && s[i+3] == ']' {
				b.WriteByte(s[i+2])
				i += 4
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// ExpandProperties replaces [Name] references with their values from props.
// Only one pass is made, so values that contain references are not expanded
// again. Unknown properties and the special [#file], [!file], [$component],
// [%env] and [\x] forms are kept as written.
func ExpandProperties(s string, props map[string]string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '[' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], ']')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		name := s[i+1 : i+1+end]
		if v, ok := props[name]; ok && isPropertyName(name) {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+end+2])
		}
		i += end + 2
	}
	return b.String()
}

func isPropertyName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case i > 0 && (c >= '0' && c <= '9' || c == '.'):
		default:
			return false
		}
	}
	return true
}
