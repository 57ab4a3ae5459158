package scanner

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/wudi/pdfmark/ir/raw"
)

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := New([]byte("%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj"), Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || !tok.IsInt || tok.Int != i {
			t.Fatalf("expected array number %d, got %+v", i, tok)
		}
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("expected array end, got %+v", tok)
	}
	nextToken(t, s) // /Flag
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true, got %+v", tok)
	}
	nextToken(t, s) // /Null
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != ">>" {
		t.Fatalf("expected dict end, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Str != "endobj" {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_Strings(t *testing.T) {
	s := New([]byte(`(a\(b\)c\n\101 (nested)) <48 65 6C6C 6F> <7>`), Config{})
	tok := nextToken(t, s)
	if got := string(tok.Bytes); got != "a(b)c\nA (nested)" {
		t.Fatalf("literal string mismatch: %q", got)
	}
	tok = nextToken(t, s)
	if got := string(tok.Bytes); got != "Hello" || !tok.Hex {
		t.Fatalf("hex string mismatch: %q hex=%v", got, tok.Hex)
	}
	tok = nextToken(t, s)
	if len(tok.Bytes) != 1 || tok.Bytes[0] != 0x70 {
		t.Fatalf("odd hex string should pad with zero, got %x", tok.Bytes)
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	s := New([]byte("/A#20B /C#2"), Config{})
	if tok := nextToken(t, s); tok.Str != "A B" {
		t.Fatalf("expected escaped space, got %q", tok.Str)
	}
	if tok := nextToken(t, s); tok.Str != "C#2" {
		t.Fatalf("incomplete escape should be kept literally, got %q", tok.Str)
	}
}

func TestScanner_RefsAndNumbers(t *testing.T) {
	s := New([]byte("12 0 R 3.5 -2 7 9"), Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenRef || tok.Int != 12 || tok.Gen != 0 {
		t.Fatalf("expected ref 12 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.IsInt || tok.Float != 3.5 {
		t.Fatalf("expected 3.5, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsInt || tok.Int != -2 {
		t.Fatalf("expected -2, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 7 {
		t.Fatalf("expected plain number 7, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 9 {
		t.Fatalf("expected plain number 9, got %+v", tok)
	}
}

func TestScanner_StreamWithWrongLengthHint(t *testing.T) {
	s := New([]byte("stream\r\nabcdef\nendstream endobj"), Config{})
	s.SetNextStreamLength(2)
	tok := nextToken(t, s)
	if tok.Type != TokenStream || string(tok.Bytes) != "abcdef" {
		t.Fatalf("expected search fallback payload, got %q", tok.Bytes)
	}
	if tok = nextToken(t, s); tok.Str != "endobj" {
		t.Fatalf("expected endobj after stream, got %+v", tok)
	}
}

func TestReader_ReadIndirectStream(t *testing.T) {
	src := "4 0 obj\n<< /Length 5 0 R /Filter /FlateDecode >>\nstream\nhello\nendstream\nendobj\n5 0 obj 5 endobj"
	r := NewReader(New([]byte(src), Config{}), func(ref raw.ObjectRef) (int64, bool) {
		if ref.Num == 5 {
			return 5, true
		}
		return 0, false
	})
	ref, obj, err := r.ReadIndirect(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ref.Num != 4 {
		t.Fatalf("expected object 4, got %v", ref)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		t.Fatalf("expected stream, got %T", obj)
	}
	if string(stm.Data) != "hello" {
		t.Fatalf("unexpected payload %q", stm.Data)
	}
	if f, _ := stm.Dict.Name("Filter"); f != "FlateDecode" {
		t.Fatalf("filter lost: %q", f)
	}
}

func TestReader_DepthLimit(t *testing.T) {
	src := strings.Repeat("[", 10) + strings.Repeat("]", 10)
	r := NewReader(New([]byte(src), Config{MaxDepth: 4}), nil)
	if _, err := r.ReadObject(); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected depth error, got %v", err)
	}
}
