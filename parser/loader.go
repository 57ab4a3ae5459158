package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfmark/filters"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/scanner"
	"github.com/wudi/pdfmark/security"
	"github.com/wudi/pdfmark/xref"
)

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

var ErrObjectNotFound = errors.New("object not found")

type ObjectLoaderBuilder struct {
	data     []byte
	table    *xref.Table
	security security.Handler
	limits   security.Limits
	filters  *filters.Pipeline
}

func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithXRef(table *xref.Table) *ObjectLoaderBuilder {
	b.table = table
	return b
}
func (b *ObjectLoaderBuilder) WithSecurity(h security.Handler) *ObjectLoaderBuilder {
	b.security = h
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.filters = p
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.table == nil {
		return nil, errors.New("data and xref table required")
	}
	sec := b.security
	if sec == nil {
		sec = security.NoopHandler()
	}
	fp := b.filters
	if fp == nil {
		fp = filters.Default(filters.Limits{MaxDecompressedSize: b.limits.MaxDecompressedSize})
	}
	return &objectLoader{
		data:       b.data,
		table:      b.table,
		security:   sec,
		limits:     b.limits,
		filters:    fp,
		cache:      make(map[raw.ObjectRef]raw.Object),
		objStreams: make(map[int]map[int]raw.Object),
	}, nil
}

type objectLoader struct {
	data     []byte
	table    *xref.Table
	security security.Handler
	limits   security.Limits
	filters  *filters.Pipeline

	mu         sync.Mutex
	cache      map[raw.ObjectRef]raw.Object
	objStreams map[int]map[int]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx, ref.Num)
}

// load must be called with mu held.
func (o *objectLoader) load(ctx context.Context, num int) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := o.table.Lookup(num)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrObjectNotFound, num)
	}
	ref := raw.ObjectRef{Num: num, Gen: entry.Gen}
	if obj, ok := o.cache[ref]; ok {
		return obj, nil
	}
	var (
		obj raw.Object
		err error
	)
	if entry.Compressed {
		obj, err = o.loadFromObjectStream(ctx, num, entry.StreamNum, entry.Index)
	} else {
		obj, err = o.loadAtOffset(ctx, ref, entry.Offset)
	}
	if err != nil {
		return nil, err
	}
	o.cache[ref] = obj
	return obj, nil
}

func (o *objectLoader) loadAtOffset(ctx context.Context, ref raw.ObjectRef, offset int64) (raw.Object, error) {
	s := scanner.New(o.data, scanner.Config{
		MaxStringLength: o.limits.MaxStringLength,
		MaxStreamLength: o.limits.MaxStreamLength,
		MaxDepth:        o.limits.MaxNestingDepth,
	})
	rd := scanner.NewReader(s, func(lr raw.ObjectRef) (int64, bool) {
		if lr.Num == ref.Num {
			return 0, false
		}
		obj, err := o.load(ctx, lr.Num)
		if err != nil {
			return 0, false
		}
		n, ok := obj.(raw.NumberObj)
		return n.Int(), ok
	})
	_, obj, err := rd.ReadIndirect(offset)
	if err != nil {
		return nil, fmt.Errorf("object %v: %w", ref, err)
	}
	return o.decryptObject(ref, obj)
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, num, streamNum, idx int) (raw.Object, error) {
	objects, ok := o.objStreams[streamNum]
	if !ok {
		container, err := o.load(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		stm, ok := container.(*raw.StreamObj)
		if !ok {
			return nil, fmt.Errorf("object stream %d is not a stream", streamNum)
		}
		objects, err = o.parseObjectStream(ctx, stm)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.objStreams[streamNum] = objects
	}
	obj, ok := objects[num]
	if !ok {
		return nil, fmt.Errorf("%w: %d in object stream %d (index %d)", ErrObjectNotFound, num, streamNum, idx)
	}
	return obj, nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, stm *raw.StreamObj) (map[int]raw.Object, error) {
	data, err := o.filters.DecodeStream(ctx, stm)
	if err != nil {
		return nil, err
	}
	n, _ := stm.Dict.Int("N")
	first, _ := stm.Dict.Int("First")
	if n < 0 || first < 0 || first > int64(len(data)) {
		return nil, errors.New("invalid object stream header")
	}
	header := scanner.New(data[:first], scanner.Config{})
	type slot struct {
		num int
		off int64
	}
	slots := make([]slot, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := header.Next()
		offTok, err2 := header.Next()
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("object stream header: %w", err)
		}
		slots = append(slots, slot{num: int(numTok.Int), off: offTok.Int})
	}
	out := make(map[int]raw.Object, len(slots))
	body := scanner.New(data, scanner.Config{MaxDepth: o.limits.MaxNestingDepth})
	rd := scanner.NewReader(body, nil)
	for _, sl := range slots {
		if err := body.Seek(first + sl.off); err != nil {
			return nil, err
		}
		obj, err := rd.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", sl.num, err)
		}
		if _, dup := out[sl.num]; !dup {
			out[sl.num] = obj
		}
	}
	return out, nil
}

// decryptObject decrypts strings and stream data of an object read from the file body.
func (o *objectLoader) decryptObject(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if !o.security.IsEncrypted() {
		return obj, nil
	}
	switch v := obj.(type) {
	case *raw.StreamObj:
		dict, err := o.decryptObject(ref, v.Dict)
		if err != nil {
			return nil, err
		}
		v.Dict = dict.(*raw.DictObj)
		if o.skipStream(v.Dict) {
			return v, nil
		}
		data, err := o.security.Decrypt(ref, v.Data, security.DataClassStream)
		if err != nil {
			return nil, fmt.Errorf("decrypt stream %v: %w", ref, err)
		}
		v.Data = data
		return v, nil
	case *raw.DictObj:
		for _, k := range v.Keys() {
			item, err := o.decryptObject(ref, v.KV[k])
			if err != nil {
				return nil, err
			}
			v.KV[k] = item
		}
		return v, nil
	case *raw.ArrayObj:
		for i, it := range v.Items {
			item, err := o.decryptObject(ref, it)
			if err != nil {
				return nil, err
			}
			v.Items[i] = item
		}
		return v, nil
	case raw.StringObj:
		data, err := o.security.Decrypt(ref, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, fmt.Errorf("decrypt string %v: %w", ref, err)
		}
		return raw.StringObj{Bytes: data, Hex: v.Hex}, nil
	}
	return obj, nil
}

func (o *objectLoader) skipStream(d *raw.DictObj) bool {
	typ, _ := d.Name("Type")
	if typ == "XRef" {
		return true
	}
	if typ == "Metadata" && !o.security.EncryptMetadata() {
		return true
	}
	names, params := filters.ExtractFilters(d)
	for i, n := range names {
		if n != "Crypt" {
			continue
		}
		if i >= len(params) || params[i] == nil {
			return true
		}
		if name, _ := params[i].Name("Name"); name == "" || name == "Identity" {
			return true
		}
	}
	return false
}
