package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/scanner"
)

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d+)\s+(\d+)\s+obj\b`)

// Repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" headers and the last "trailer" dictionary;
// without a trailer the catalog is located by its /Type.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	table := &Table{entries: make(map[int]Entry), Repaired: true}
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil || num == 0 {
			continue
		}
		// later definitions win, matching incremental updates
		table.entries[num] = Entry{Offset: int64(m[2]), Gen: gen}
	}
	if len(table.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	rd := scanner.NewReader(scanner.New(data, scanner.Config{}), nil)
	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 {
		if err := rd.Scanner().Seek(int64(idx + len("trailer"))); err == nil {
			if obj, err := rd.ReadObject(); err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					table.Trailer = dict
				}
			}
		}
	}
	if table.Trailer != nil {
		if _, ok := table.Trailer.Get("Root"); ok {
			return table, nil
		}
	}

	trailer := raw.Dict()
	for _, num := range table.Objects() {
		e := table.entries[num]
		_, obj, err := rd.ReadIndirect(e.Offset)
		if err != nil {
			continue
		}
		var dict *raw.DictObj
		switch v := obj.(type) {
		case *raw.DictObj:
			dict = v
		case *raw.StreamObj:
			dict = v.Dict
		}
		if typ, _ := dict.Name("Type"); typ == "Catalog" {
			trailer.Set("Root", raw.Ref(num, e.Gen))
		}
		if typ, _ := dict.Name("Type"); typ == "XRef" {
			for _, k := range []string{"Root", "Info", "ID", "Encrypt"} {
				if v, ok := dict.Get(k); ok {
					trailer.Set(k, v)
				}
			}
		}
	}
	if _, ok := trailer.Get("Root"); !ok {
		return nil, errors.New("repair failed: catalog not found")
	}
	trailer.Set("Size", raw.Int(int64(table.Objects()[len(table.entries)-1]+1)))
	table.Trailer = trailer
	return table, nil
}
