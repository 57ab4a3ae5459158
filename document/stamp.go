package document

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/writer"
)

const overlayName = "PdfmarkOv"

// Stamp draws s.Overlay onto page i. The original content streams are kept
// untouched and referenced from a new Contents array.
func (d *Document) Stamp(ctx context.Context, i int, s merge.Stamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i < 0 || i >= len(d.pages) {
		return fmt.Errorf("%w: %d", ErrPageIndex, i)
	}
	p := d.pages[i]
	if p.dict == nil {
		return fmt.Errorf("page %d: dictionary missing", i)
	}
	img, err := d.overlayImage(s.Overlay)
	if err != nil {
		return err
	}

	res, err := d.pageResources(p)
	if err != nil {
		return err
	}
	xobjects, ok := d.resolve(res.KV["XObject"]).(*raw.DictObj)
	if ok {
		xobjects = raw.DeepCopy(xobjects).(*raw.DictObj)
	} else {
		xobjects = raw.Dict()
	}
	name := overlayName
	for n := 1; ; n++ {
		if _, taken := xobjects.Get(name); !taken {
			break
		}
		name = overlayName + strconv.Itoa(n)
	}
	xobjects.Set(name, img)
	res.Set("XObject", xobjects)
	p.dict.Set("Resources", res)

	m := s.Matrix
	draw := fmt.Sprintf("q %s %s %s %s %s %s cm /%s Do Q\n",
		writer.FormatReal(m[0]), writer.FormatReal(m[1]), writer.FormatReal(m[2]),
		writer.FormatReal(m[3]), writer.FormatReal(m[4]), writer.FormatReal(m[5]), name)
	overlayRef := d.add(raw.NewStream(raw.Dict(), []byte(draw)))

	contents := d.contentRefs(p)
	var out []raw.Object
	switch s.Placement {
	case merge.Underneath:
		out = append(out, overlayRef)
		out = append(out, contents...)
	default:
		if len(contents) > 0 {
			out = append(out, d.add(raw.NewStream(raw.Dict(), []byte("q\n"))))
			out = append(out, contents...)
			out = append(out, d.add(raw.NewStream(raw.Dict(), []byte("\nQ\n"))))
		}
		out = append(out, overlayRef)
	}
	p.dict.Set("Contents", raw.NewArray(out...))
	return nil
}

// overlayImage embeds ov once per document and returns its reference.
func (d *Document) overlayImage(ov *render.Overlay) (raw.RefObj, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ref, ok := d.overlays[ov]; ok {
		return ref, nil
	}
	xobj, smask, err := writer.ImageXObject(ov.Image, 6)
	if err != nil {
		return raw.RefObj{}, fmt.Errorf("encode overlay: %w", err)
	}
	if smask != nil {
		xobj.Dict.Set("SMask", d.raw.Add(smask))
	}
	ref := d.raw.Add(xobj)
	d.overlays[ov] = ref
	return ref, nil
}

// pageResources returns a private copy of the page's effective resources.
// Shared or inherited dictionaries are never edited in place.
func (d *Document) pageResources(p *page) (*raw.DictObj, error) {
	src := p.resources
	if own, ok := p.dict.Get("Resources"); ok {
		src = own
	}
	if src == nil {
		return raw.Dict(), nil
	}
	resolved := d.resolve(src)
	dict, ok := resolved.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("page resources are %T, not a dictionary", resolved)
	}
	return raw.DeepCopy(dict).(*raw.DictObj), nil
}

// contentRefs lists the page's content streams as indirect references. A
// direct stream is moved into its own object first.
func (d *Document) contentRefs(p *page) []raw.Object {
	c, ok := p.dict.Get("Contents")
	if !ok {
		return nil
	}
	var items []raw.Object
	if arr, isArr := d.resolve(c).(*raw.ArrayObj); isArr {
		items = append(items, arr.Items...)
	} else {
		items = []raw.Object{c}
	}
	out := make([]raw.Object, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case raw.RefObj:
			out = append(out, v)
		case *raw.StreamObj:
			out = append(out, d.add(v))
		}
	}
	return out
}

// resolve looks up o while other pages may be allocating objects.
func (d *Document) resolve(o raw.Object) raw.Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw.Resolve(o)
}
