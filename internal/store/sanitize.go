package store

import (
	"bytes"
	"strings"
)

var nulEscape = []byte(`\u0000`)

// jsonbSafe removes \u0000 escapes, which Postgres refuses in jsonb.
// Everything else in the document is kept byte for byte.
func jsonbSafe(raw []byte) []byte {
	if !bytes.Contains(raw, nulEscape) {
		return raw
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			out = append(out, c)
			continue
		}
		if raw[i+1] == 'u' && i+6 <= len(raw) && string(raw[i+2:i+6]) == "0000" {
			i += 5
			continue
		}
		// Any other escape, including an escaped backslash, passes through whole.
		out = append(out, c, raw[i+1])
		i++
	}
	return out
}

// textSafe drops NUL bytes, which Postgres refuses in text columns.
func textSafe(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}
