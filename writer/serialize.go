package writer

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/wudi/pdfmark/ir/raw"
)

const hexDigits = "0123456789ABCDEF"

func writeObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		writeName(b, v.Val)
	case raw.NumberObj:
		if v.IsInt {
			b.WriteString(strconv.FormatInt(v.I, 10))
		} else {
			b.WriteString(FormatReal(v.F))
		}
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.V))
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		writeString(b, v)
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		b.WriteString("<<")
		for _, k := range v.Keys() {
			writeName(b, k)
			b.WriteByte(' ')
			writeObject(b, v.KV[k])
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		dict := raw.DeepCopy(v.Dict).(*raw.DictObj)
		if dict == nil {
			dict = raw.Dict()
		}
		dict.Set("Length", raw.Int(int64(len(v.Data))))
		writeObject(b, dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		b.WriteString(v.R.String())
	default:
		b.WriteString("null")
	}
}

func writeName(b *bytes.Buffer, name string) {
	b.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			b.WriteByte('#')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
			continue
		}
		b.WriteByte(c)
	}
}

func writeString(b *bytes.Buffer, s raw.StringObj) {
	if s.Hex {
		b.WriteByte('<')
		b.WriteString(hex.EncodeToString(s.Bytes))
		b.WriteByte('>')
		return
	}
	b.WriteByte('(')
	for _, c := range s.Bytes {
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
}

// FormatReal prints at most five fractional digits without exponent
// notation and without trailing zeros.
func FormatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', 5, 64)
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
