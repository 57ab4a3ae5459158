package document

import (
	"fmt"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/writer"
)

// Rotate turns every page clockwise by deg, a multiple of 90, on top of
// whatever rotation the page already has.
func (d *Document) Rotate(deg int) error {
	if err := canvas.ValidateRotation("rotation", deg); err != nil {
		return err
	}
	for _, p := range d.pages {
		p.rotate = canvas.NormalizeRotation(p.rotate + deg)
		p.dict.Set("Rotate", raw.Int(int64(p.rotate)))
	}
	return nil
}

// Slice returns a new document holding pages first through last, 1-based
// and inclusive. The receiver is left unchanged.
func (d *Document) Slice(first, last int) (*Document, error) {
	if first < 1 || last < first || last > len(d.pages) {
		return nil, &canvas.ConfigurationError{
			Field:  "page range",
			Reason: fmt.Sprintf("%d-%d outside 1-%d", first, last, len(d.pages)),
		}
	}
	c := d.clone()
	c.pages = c.pages[first-1 : last]
	if err := rebuildTree(c.raw, c.pages); err != nil {
		return nil, err
	}
	prune(c.raw)
	return c, nil
}

// Scale enlarges every page by factor. Page boxes grow and the existing
// content is drawn through a matching transform, so the visual layout is
// unchanged.
func (d *Document) Scale(factor float64) error {
	if !(factor > 0) {
		return &canvas.ConfigurationError{Field: "scale", Reason: fmt.Sprintf("must be positive, got %g", factor)}
	}
	if factor == 1 {
		return nil
	}
	for _, p := range d.pages {
		p.materialize()
		for _, key := range []string{"MediaBox", "CropBox", "BleedBox", "TrimBox", "ArtBox"} {
			box, ok := rectFrom(d.raw, p.dict.KV[key])
			if !ok {
				continue
			}
			p.dict.Set(key, raw.Numbers(box.LLX*factor, box.LLY*factor, box.URX*factor, box.URY*factor))
		}
		p.box = coords.Rect{LLX: p.box.LLX * factor, LLY: p.box.LLY * factor, URX: p.box.URX * factor, URY: p.box.URY * factor}

		contents := d.contentRefs(p)
		if len(contents) == 0 {
			continue
		}
		f := writer.FormatReal(factor)
		pre := d.add(raw.NewStream(raw.Dict(), []byte("q "+f+" 0 0 "+f+" 0 0 cm\n")))
		post := d.add(raw.NewStream(raw.Dict(), []byte("\nQ\n")))
		items := append([]raw.Object{pre}, contents...)
		p.dict.Set("Contents", raw.NewArray(append(items, post)...))
	}
	return nil
}

// Concat appends the pages of others after the receiver's, returning a new
// document. Objects of each appended document are renumbered past the
// current highest object number.
func Concat(first *Document, others ...*Document) (*Document, error) {
	c := first.clone()
	pages := append([]*page(nil), c.pages...)
	for _, o := range others {
		src := o.clone()
		offset := c.raw.MaxObjectNum()
		remap := func(r raw.ObjectRef) raw.ObjectRef { return raw.ObjectRef{Num: r.Num + offset, Gen: 0} }
		for ref, obj := range src.raw.Objects {
			c.raw.Objects[remap(ref)] = renumber(obj, remap)
		}
		for _, p := range src.pages {
			np := &page{ref: remap(p.ref), box: p.box, rotate: p.rotate, resources: renumber(p.resources, remap)}
			np.dict, _ = c.raw.Objects[np.ref].(*raw.DictObj)
			if np.dict == nil {
				continue
			}
			pages = append(pages, np)
		}
	}
	c.pages = pages
	if err := rebuildTree(c.raw, c.pages); err != nil {
		return nil, err
	}
	prune(c.raw)
	return c, nil
}

// renumber rewrites every reference inside o.
func renumber(o raw.Object, remap func(raw.ObjectRef) raw.ObjectRef) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		return raw.RefObj{R: remap(v.R)}
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range v.Items {
			out.Append(renumber(it, remap))
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, it := range v.KV {
			out.Set(k, renumber(it, remap))
		}
		return out
	case *raw.StreamObj:
		dict, _ := renumber(v.Dict, remap).(*raw.DictObj)
		return raw.NewStream(dict, v.Data)
	}
	return o
}

// PageInfo describes one page as displayed.
type PageInfo struct {
	Number   int
	Width    float64
	Height   float64
	Rotation int
}

type Info struct {
	Version     string
	Pages       int
	Encrypted   bool
	Metadata    raw.DocumentMetadata
	Permissions raw.Permissions
	PageSizes   []PageInfo
}

func (d *Document) Info() Info {
	info := Info{
		Version:     d.raw.Version,
		Pages:       len(d.pages),
		Encrypted:   d.raw.Encrypted,
		Metadata:    d.raw.Metadata,
		Permissions: d.raw.Permissions,
	}
	for i, p := range d.pages {
		info.PageSizes = append(info.PageSizes, PageInfo{
			Number:   i + 1,
			Width:    p.box.Width(),
			Height:   p.box.Height(),
			Rotation: p.rotate,
		})
	}
	return info
}

// SetMetadata replaces the document information dictionary entries that
// are non-empty in m.
func (d *Document) SetMetadata(m raw.DocumentMetadata) {
	var info *raw.DictObj
	if ref, ok := d.raw.Trailer.Get("Info"); ok {
		info, _ = d.raw.ResolveDict(ref)
	}
	if info == nil {
		info = raw.Dict()
		d.raw.Trailer.Set("Info", d.raw.Add(info))
	}
	for _, kv := range []struct{ key, val string }{
		{"Title", m.Title}, {"Author", m.Author}, {"Subject", m.Subject},
		{"Keywords", m.Keywords}, {"Creator", m.Creator}, {"Producer", m.Producer},
	} {
		if kv.val != "" {
			info.Set(kv.key, raw.EncodeText(kv.val))
		}
	}
	merged := d.raw.Metadata
	if m.Title != "" {
		merged.Title = m.Title
	}
	if m.Author != "" {
		merged.Author = m.Author
	}
	if m.Subject != "" {
		merged.Subject = m.Subject
	}
	if m.Keywords != "" {
		merged.Keywords = m.Keywords
	}
	if m.Creator != "" {
		merged.Creator = m.Creator
	}
	if m.Producer != "" {
		merged.Producer = m.Producer
	}
	d.raw.Metadata = merged
}
