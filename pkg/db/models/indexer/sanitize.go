package indexer

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// CleanString removes what PostgreSQL text columns reject: NUL bytes and
// invalid UTF-8 sequences (replaced by U+FFFD).
func CleanString(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s
}

// CleanJSON removes what jsonb rejects: \u0000 escapes, raw NUL bytes and
// invalid UTF-8. Other escape sequences, including an escaped backslash
// followed by "u0000", are kept as they are. A nil document stays nil.
func CleanJSON(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	src := []byte(raw)
	if bytes.IndexByte(src, 0) >= 0 {
		src = bytes.ReplaceAll(src, []byte{0}, nil)
	}
	out := make(json.RawMessage, 0, len(src))
	for i := 0; i < len(src); i++ {
		if src[i] != '\\' || i+1 == len(src) {
			out = append(out, src[i])
			continue
		}
		if bytes.HasPrefix(src[i:], nulEscape) {
			i += len(nulEscape) - 1
			continue
		}
		out = append(out, src[i], src[i+1])
		i++
	}
	if !utf8.Valid(out) {
		out = bytes.ToValidUTF8(out, []byte("�"))
	}
	return out
}

var nulEscape = []byte(`\u0000`)

// Sanitizable entities return a cleaned copy of themselves.
type Sanitizable[T any] interface {
	Sanitized() T
}

// SanitizeAll returns a cleaned copy of rows.
func SanitizeAll[T Sanitizable[T]](rows []T) []T {
	if rows == nil {
		return nil
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.Sanitized()
	}
	return out
}
