package raw

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf16BOM = []byte{0xFE, 0xFF}

// DecodeText converts a PDF text string to UTF-8. Strings with a UTF-16BE
// byte order mark are decoded as UTF-16; UTF-8 marked strings (PDF 2.0) are
// returned as is; everything else is treated as Latin-1.
func DecodeText(b []byte) string {
	switch {
	case bytes.HasPrefix(b, utf16BOM):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}):
		return string(b[3:])
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// EncodeText produces a PDF text string, using Latin-1 when every rune fits
// and UTF-16BE with a byte order mark otherwise.
func EncodeText(s string) StringObj {
	if out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s)); err == nil {
		return StringObj{Bytes: out}
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return StringObj{Bytes: []byte(s)}
	}
	return StringObj{Bytes: out, Hex: true}
}

// TextValue resolves key in d and decodes it as a text string.
func (d *Document) TextValue(dict *DictObj, key string) (string, bool) {
	o, ok := dict.Get(key)
	if !ok {
		return "", false
	}
	s, ok := d.Resolve(o).(StringObj)
	if !ok {
		return "", false
	}
	return DecodeText(s.Bytes), true
}
