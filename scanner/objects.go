package scanner

import (
	"fmt"

	"github.com/wudi/pdfmark/ir/raw"
)

const defaultMaxDepth = 64

// LengthFunc resolves an indirect /Length value.
type LengthFunc func(ref raw.ObjectRef) (int64, bool)

// Reader assembles raw objects from scanner tokens.
type Reader struct {
	s      *Scanner
	length LengthFunc
}

func NewReader(s *Scanner, length LengthFunc) *Reader {
	return &Reader{s: s, length: length}
}

func (r *Reader) Scanner() *Scanner { return r.s }

// ReadObject parses the next direct object.
func (r *Reader) ReadObject() (raw.Object, error) {
	tok, err := r.s.Next()
	if err != nil {
		return nil, err
	}
	return r.value(tok, 0)
}

// ReadIndirect parses "num gen obj ... endobj" starting at offset.
func (r *Reader) ReadIndirect(offset int64) (raw.ObjectRef, raw.Object, error) {
	if err := r.s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	num, err := r.s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	gen, err := r.s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	kw, err := r.s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if num.Type != TokenNumber || !num.IsInt || gen.Type != TokenNumber || !gen.IsInt || kw.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("%w: no object header at %d", ErrSyntax, offset)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}
	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return ref, obj, nil
	}
	save := r.s.Position()
	r.s.SetNextStreamLength(r.streamLength(dict))
	tok, err := r.s.Next()
	if err != nil || tok.Type != TokenStream {
		r.s.SetNextStreamLength(-1)
		_ = r.s.Seek(save)
		return ref, dict, nil
	}
	data := append([]byte(nil), tok.Bytes...)
	return ref, raw.NewStream(dict, data), nil
}

func (r *Reader) streamLength(dict *raw.DictObj) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	switch l := v.(type) {
	case raw.NumberObj:
		return l.Int()
	case raw.RefObj:
		if r.length != nil {
			if n, ok := r.length(l.R); ok {
				return n
			}
		}
	}
	return -1
}

func (r *Reader) value(tok Token, depth int) (raw.Object, error) {
	limit := r.s.cfg.MaxDepth
	if limit <= 0 {
		limit = defaultMaxDepth
	}
	if depth > limit {
		return nil, fmt.Errorf("%w: nesting too deep at %d", ErrSyntax, tok.Pos)
	}
	switch tok.Type {
	case TokenNumber:
		if tok.IsInt {
			return raw.Int(tok.Int), nil
		}
		return raw.Real(tok.Float), nil
	case TokenName:
		return raw.Name(tok.Str), nil
	case TokenString:
		return raw.StringObj{Bytes: append([]byte(nil), tok.Bytes...), Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case TokenArray:
		arr := raw.NewArray()
		for {
			next, err := r.s.Next()
			if err != nil {
				return nil, fmt.Errorf("array at %d: %w", tok.Pos, err)
			}
			if next.Type == TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			item, err := r.value(next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDict:
		dict := raw.Dict()
		for {
			key, err := r.s.Next()
			if err != nil {
				return nil, fmt.Errorf("dict at %d: %w", tok.Pos, err)
			}
			if key.Type == TokenKeyword && key.Str == ">>" {
				return dict, nil
			}
			if key.Type != TokenName {
				return nil, fmt.Errorf("%w: dict key must be a name at %d", ErrSyntax, key.Pos)
			}
			valTok, err := r.s.Next()
			if err != nil {
				return nil, fmt.Errorf("dict at %d: %w", tok.Pos, err)
			}
			if valTok.Type == TokenKeyword && valTok.Str == ">>" {
				// key without value; treat as null and finish
				dict.Set(key.Str, raw.NullObj{})
				return dict, nil
			}
			val, err := r.value(valTok, depth+1)
			if err != nil {
				return nil, err
			}
			dict.Set(key.Str, val)
		}
	}
	return nil, fmt.Errorf("%w: unexpected token %q at %d", ErrSyntax, tok.Str, tok.Pos)
}
