package raw

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// DocumentMetadata contains common PDF info fields.
type DocumentMetadata struct {
	Producer string
	Creator  string
	Title    string
	Author   string
	Subject  string
	Keywords string
}

// Permissions describes allowed actions expressed in the parsed document.
type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects     map[ObjectRef]Object
	Trailer     *DictObj
	Version     string // e.g., "1.7"
	Metadata    DocumentMetadata
	Permissions Permissions
	Encrypted   bool
}

// Parser converts bytes into a raw.Document.
type Parser interface {
	Parse(ctx context.Context, r io.ReaderAt) (*Document, error)
}

const maxResolveDepth = 32

// Resolve follows indirect references until a direct object is reached.
// Dangling references resolve to NullObj.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		o = next
	}
	return NullObj{}
}

// ResolveDict resolves o and returns it when it is a dictionary (or a stream's dictionary).
func (d *Document) ResolveDict(o Object) (*DictObj, bool) {
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

func (d *Document) ResolveArray(o Object) (*ArrayObj, bool) {
	arr, ok := d.Resolve(o).(*ArrayObj)
	return arr, ok
}

// ResolveNumber resolves o and returns it as a float when it is numeric.
func (d *Document) ResolveNumber(o Object) (float64, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	return n.Float(), ok
}

// Add stores obj under the next free object number and returns its reference.
func (d *Document) Add(obj Object) RefObj {
	ref := ObjectRef{Num: d.MaxObjectNum() + 1}
	if d.Objects == nil {
		d.Objects = make(map[ObjectRef]Object)
	}
	d.Objects[ref] = obj
	return RefObj{R: ref}
}

func (d *Document) MaxObjectNum() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Refs returns all object references sorted by number.
func (d *Document) Refs() []ObjectRef {
	out := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num == out[j].Num {
			return out[i].Gen < out[j].Gen
		}
		return out[i].Num < out[j].Num
	})
	return out
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Objects:     make(map[ObjectRef]Object, len(d.Objects)),
		Version:     d.Version,
		Metadata:    d.Metadata,
		Permissions: d.Permissions,
		Encrypted:   d.Encrypted,
	}
	for ref, obj := range d.Objects {
		out.Objects[ref] = DeepCopy(obj)
	}
	if d.Trailer != nil {
		out.Trailer = d.Trailer.clone()
	}
	return out
}
