package xref

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfmark/filters"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/scanner"
)

// Entry locates one object. Compressed entries live inside an object stream.
type Entry struct {
	Offset     int64
	Gen        int
	Compressed bool
	StreamNum  int
	Index      int
}

// Table maps object numbers to their locations plus the merged trailer.
type Table struct {
	entries map[int]Entry
	Trailer *raw.DictObj
	// Repaired is set when the table was rebuilt by scanning the file.
	Repaired bool
}

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects returns the in-use object numbers in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

type ResolverConfig struct {
	MaxXRefDepth int
	Filters      *filters.Pipeline
}

// Resolver locates and parses xref tables and streams, following /Prev chains.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.Default(filters.Limits{})
	}
	return &Resolver{cfg: cfg}
}

var errNoStartXRef = errors.New("startxref not found")

// Resolve reads the cross-reference data of a complete file. Broken or
// missing tables fall back to a full-file repair scan.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	table, err := r.resolveChain(ctx, data)
	if err == nil {
		return table, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	repaired, rerr := Repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("resolve xref: %v; repair: %w", err, rerr)
	}
	return repaired, nil
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	table := &Table{entries: make(map[int]Entry)}
	visited := make(map[int64]bool)
	for depth := 0; offset > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d", r.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			break
		}
		visited[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", offset)
		}
		trailer, err := r.readSection(ctx, data, offset, table)
		if err != nil {
			return nil, err
		}
		mergeTrailer(table, trailer)
		// hybrid files carry an xref stream alongside the classic table
		if stm, ok := trailer.Int("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if _, err := r.readSection(ctx, data, stm, table); err != nil {
				return nil, err
			}
		}
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		offset = prev
	}
	if table.Trailer == nil {
		return nil, errors.New("trailer not found")
	}
	if _, ok := table.Trailer.Get("Root"); !ok {
		return nil, errors.New("trailer has no Root")
	}
	return table, nil
}

// mergeTrailer keeps newer keys and backfills the ones only older sections define.
func mergeTrailer(t *Table, trailer *raw.DictObj) {
	if t.Trailer == nil {
		t.Trailer = raw.DeepCopy(trailer).(*raw.DictObj)
		return
	}
	for _, k := range trailer.Keys() {
		if _, ok := t.Trailer.Get(k); !ok {
			t.Trailer.Set(k, raw.DeepCopy(trailer.KV[k]))
		}
	}
}

func (r *Resolver) readSection(ctx context.Context, data []byte, offset int64, table *Table) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return readClassic(s, table)
	}
	return r.readStream(ctx, data, offset, table)
}

func readClassic(s *scanner.Scanner, table *Table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref table: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		countTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref subsection: %w", err)
		}
		if tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			off, err1 := s.Next()
			gen, err2 := s.Next()
			kind, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("xref entry: %w", err)
			}
			if off.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber {
				return nil, fmt.Errorf("invalid xref entry at %d", off.Pos)
			}
			num := start + i
			if kind.Str != "n" || num == 0 {
				continue
			}
			if _, seen := table.entries[num]; !seen {
				table.entries[num] = Entry{Offset: off.Int, Gen: int(gen.Int)}
			}
		}
	}
	obj, err := scanner.NewReader(s, nil).ReadObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return trailer, nil
}

func (r *Resolver) readStream(ctx context.Context, data []byte, offset int64, table *Table) (*raw.DictObj, error) {
	rd := scanner.NewReader(scanner.New(data, scanner.Config{}), nil)
	_, obj, err := rd.ReadIndirect(offset)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("no xref stream at %d", offset)
	}
	if typ, _ := stm.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("object at %d is not an xref stream", offset)
	}
	payload, err := r.cfg.Filters.DecodeStream(ctx, stm)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	widths, err := intArray(stm.Dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, errors.New("xref stream has invalid W")
	}
	size, _ := stm.Dict.Int("Size")
	index := []int{0, int(size)}
	if idx, err := intArray(stm.Dict, "Index"); err == nil && len(idx)%2 == 0 {
		index = idx
	}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen <= 0 {
		return nil, errors.New("xref stream has empty rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(payload) {
				return stm.Dict, nil
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			kind := int64(1)
			if widths[0] > 0 {
				kind = field(row[:widths[0]])
			}
			f2 := field(row[widths[0] : widths[0]+widths[1]])
			f3 := field(row[widths[0]+widths[1]:])
			num := start + j
			if _, seen := table.entries[num]; seen || num == 0 {
				continue
			}
			switch kind {
			case 1:
				table.entries[num] = Entry{Offset: f2, Gen: int(f3)}
			case 2:
				table.entries[num] = Entry{Compressed: true, StreamNum: int(f2), Index: int(f3)}
			}
		}
	}
	return stm.Dict, nil
}

func field(b []byte) int64 {
	var buf [8]byte
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	copy(buf[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(buf[:]))
}

func intArray(d *raw.DictObj, key string) ([]int, error) {
	o, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("%s missing", key)
	}
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", key)
	}
	out := make([]int, 0, arr.Len())
	for _, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("%s has non-numeric entry", key)
		}
		out = append(out, int(n.Int()))
	}
	return out, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errNoStartXRef
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return v, nil
}
