package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfmark/filters"
	"github.com/wudi/pdfmark/ir/raw"
)

var ErrNoRoot = errors.New("trailer has no Root")

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if doc == nil || doc.Trailer == nil {
		return ErrNoRoot
	}
	if _, ok := doc.Trailer.Get("Root"); !ok {
		return ErrNoRoot
	}

	version := string(cfg.Version)
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = string(PDF17)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")
	offsets := make(map[int]int64)
	gens := make(map[int]int)
	hash, _ := blake2b.New(16, nil)

	refs := doc.Refs()
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := doc.Objects[ref]
		if skipObject(obj) {
			continue
		}
		obj, err := compressStream(obj, cfg.Compression)
		if err != nil {
			return fmt.Errorf("compress object %v: %w", ref, err)
		}
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		buf.Write(serialized)
		hash.Write(serialized)
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized))); err != nil {
				return err
			}
		}
	}

	size := doc.MaxObjectNum() + 1
	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 " + strconv.Itoa(size) + "\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[i])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict()
	for _, k := range []string{"Root", "Info"} {
		if v, ok := doc.Trailer.Get(k); ok {
			trailer.Set(k, v)
		}
	}
	trailer.Set("Size", raw.Int(int64(size)))
	trailer.Set("ID", fileID(doc.Trailer, hash.Sum(nil), cfg.Deterministic))

	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	buf.WriteString("\nstartxref\n" + strconv.Itoa(xrefOffset) + "\n%%EOF\n")

	_, err := out.Write(buf.Bytes())
	return err
}

// fileID keeps the first identifier of an existing document and derives
// the second from the written content.
func fileID(trailer *raw.DictObj, digest []byte, deterministic bool) *raw.ArrayObj {
	second := digest
	if !deterministic {
		h, _ := blake2b.New(16, nil)
		h.Write(digest)
		h.Write([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
		second = h.Sum(nil)
	}
	first := second
	if ids, ok := trailer.Get("ID"); ok {
		if arr, ok := ids.(*raw.ArrayObj); ok && arr.Len() == 2 {
			if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
				first = s.Bytes
			}
		}
	}
	return raw.NewArray(raw.StringObj{Bytes: first, Hex: true}, raw.StringObj{Bytes: second, Hex: true})
}

func skipObject(obj raw.Object) bool {
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	typ, _ := stm.Dict.Name("Type")
	return typ == "XRef" || typ == "ObjStm"
}

func compressStream(obj raw.Object, level int) (raw.Object, error) {
	stm, ok := obj.(*raw.StreamObj)
	if !ok || level <= 0 {
		return obj, nil
	}
	if _, has := stm.Dict.Get("Filter"); has {
		return obj, nil
	}
	if level > 9 {
		level = 9
	}
	data, err := filters.FlateEncode(stm.Data, level)
	if err != nil {
		return nil, err
	}
	dict := raw.DeepCopy(stm.Dict).(*raw.DictObj)
	if dict == nil {
		dict = raw.Dict()
	}
	dict.Set("Filter", raw.Name("FlateDecode"))
	dict.Delete("DecodeParms")
	return &raw.StreamObj{Dict: dict, Data: data}, nil
}
