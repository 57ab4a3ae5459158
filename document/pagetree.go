package document

import (
	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/ir/raw"
)

// defaultBox applies when neither a page nor any ancestor carries a MediaBox.
var defaultBox = coords.Rect{URX: canvas.Letter.Width, URY: canvas.Letter.Height}

type inherited struct {
	mediaBox  raw.Object
	cropBox   raw.Object
	resources raw.Object
	rotate    raw.Object
}

func (in inherited) from(node *raw.DictObj) inherited {
	if v, ok := node.Get("MediaBox"); ok {
		in.mediaBox = v
	}
	if v, ok := node.Get("CropBox"); ok {
		in.cropBox = v
	}
	if v, ok := node.Get("Resources"); ok {
		in.resources = v
	}
	if v, ok := node.Get("Rotate"); ok {
		in.rotate = v
	}
	return in
}

func pagesRoot(rd *raw.Document) (*raw.DictObj, raw.Object, error) {
	if rd.Trailer == nil {
		return nil, nil, ErrNoCatalog
	}
	root, ok := rd.Trailer.Get("Root")
	if !ok {
		return nil, nil, ErrNoCatalog
	}
	catalog, ok := rd.ResolveDict(root)
	if !ok {
		return nil, nil, ErrNoCatalog
	}
	pages, ok := catalog.Get("Pages")
	if !ok {
		return nil, nil, ErrNoPageTree
	}
	return catalog, pages, nil
}

// collectPages walks the page tree depth first and returns the leaves in
// document order.
func collectPages(rd *raw.Document) ([]*page, error) {
	_, root, err := pagesRoot(rd)
	if err != nil {
		return nil, err
	}
	var out []*page
	seen := map[raw.ObjectRef]bool{}
	var walk func(node raw.Object, in inherited) error
	walk = func(node raw.Object, in inherited) error {
		ref, isRef := node.(raw.RefObj)
		if isRef {
			if seen[ref.R] {
				return ErrPageTreeCyc
			}
			seen[ref.R] = true
		}
		dict, ok := rd.ResolveDict(node)
		if !ok {
			return nil
		}
		in = in.from(dict)
		typ, _ := dict.Name("Type")
		if _, hasKids := dict.Get("Kids"); typ == "Pages" || (typ == "" && hasKids) {
			kids, _ := rd.ResolveArray(dict.KV["Kids"])
			if kids == nil {
				return nil
			}
			for _, kid := range kids.Items {
				if err := walk(kid, in); err != nil {
					return err
				}
			}
			return nil
		}
		if !isRef {
			// pages must be indirect; a direct leaf cannot be edited in place
			return nil
		}
		out = append(out, newPage(rd, ref.R, dict, in))
		return nil
	}
	if err := walk(root, inherited{}); err != nil {
		return nil, err
	}
	return out, nil
}

func newPage(rd *raw.Document, ref raw.ObjectRef, dict *raw.DictObj, in inherited) *page {
	p := &page{ref: ref, dict: dict, box: defaultBox, resources: in.resources}
	if box, ok := rectFrom(rd, in.mediaBox); ok {
		p.box = box
	}
	if crop, ok := rectFrom(rd, in.cropBox); ok {
		p.box = intersect(p.box, crop)
	}
	if n, ok := rd.ResolveNumber(in.rotate); in.rotate != nil && ok {
		p.rotate = canvas.NormalizeRotation(int(n))
	}
	return p
}

func rectFrom(rd *raw.Document, o raw.Object) (coords.Rect, bool) {
	if o == nil {
		return coords.Rect{}, false
	}
	arr, ok := rd.ResolveArray(o)
	if !ok || len(arr.Items) != 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i, it := range arr.Items {
		n, ok := rd.ResolveNumber(it)
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = n
	}
	r := coords.Rect{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}.Normalize()
	if r.Width() <= 0 || r.Height() <= 0 {
		return coords.Rect{}, false
	}
	return r, true
}

func intersect(a, b coords.Rect) coords.Rect {
	r := coords.Rect{
		LLX: max(a.LLX, b.LLX), LLY: max(a.LLY, b.LLY),
		URX: min(a.URX, b.URX), URY: min(a.URY, b.URY),
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return a
	}
	return r
}

// materialize copies inherited attributes onto the page dictionary itself so
// the page survives being moved to another parent.
func (p *page) materialize() {
	if _, ok := p.dict.Get("MediaBox"); !ok {
		p.dict.Set("MediaBox", raw.Numbers(p.box.LLX, p.box.LLY, p.box.URX, p.box.URY))
	}
	if _, ok := p.dict.Get("Resources"); !ok && p.resources != nil {
		p.dict.Set("Resources", raw.DeepCopy(p.resources))
	}
	if _, ok := p.dict.Get("Rotate"); !ok && p.rotate != 0 {
		p.dict.Set("Rotate", raw.Int(int64(p.rotate)))
	}
}

// rebuildTree replaces the page tree with a single flat Pages node holding
// pages in order.
func rebuildTree(rd *raw.Document, pages []*page) error {
	catalog, _, err := pagesRoot(rd)
	if err != nil {
		return err
	}
	node := raw.Dict()
	node.Set("Type", raw.Name("Pages"))
	nodeRef := rd.Add(node)
	kids := raw.NewArray()
	for _, p := range pages {
		p.materialize()
		p.dict.Set("Parent", nodeRef)
		kids.Append(raw.RefObj{R: p.ref})
	}
	node.Set("Kids", kids)
	node.Set("Count", raw.Int(int64(len(pages))))
	catalog.Set("Pages", nodeRef)
	return nil
}

// prune drops every object not reachable from the trailer.
func prune(rd *raw.Document) {
	live := map[raw.ObjectRef]bool{}
	var mark func(o raw.Object)
	mark = func(o raw.Object) {
		switch v := o.(type) {
		case raw.RefObj:
			if live[v.R] {
				return
			}
			live[v.R] = true
			if obj, ok := rd.Objects[v.R]; ok {
				mark(obj)
			}
		case *raw.ArrayObj:
			for _, it := range v.Items {
				mark(it)
			}
		case *raw.DictObj:
			for _, k := range v.Keys() {
				mark(v.KV[k])
			}
		case *raw.StreamObj:
			mark(v.Dict)
		}
	}
	mark(rd.Trailer)
	for ref := range rd.Objects {
		if !live[ref] {
			delete(rd.Objects, ref)
		}
	}
}
