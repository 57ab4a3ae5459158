package document

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/writer"
)

var ErrNoPages = errors.New("no pages to assemble")

// PageImage is one raster page: the pixels and the page size they cover.
type PageImage struct {
	Image  image.Image
	Width  float64
	Height float64
}

// ImageOptions controls how page images are embedded.
type ImageOptions struct {
	// Quality selects DCT (JPEG) encoding for opaque images when in 1-100.
	// Zero embeds losslessly with Flate.
	Quality  int
	Producer string
}

// FromImages builds a document with one page per image, each image filling
// its page.
func FromImages(ctx context.Context, imgs []PageImage, opts ImageOptions) (*Document, error) {
	if len(imgs) == 0 {
		return nil, ErrNoPages
	}
	rd := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict(), Version: string(writer.PDF17)}
	pages := raw.Dict()
	pagesRef := rd.Add(pages)
	kids := raw.NewArray()
	for i, pi := range imgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imgRef, err := embedImage(rd, pi.Image, opts.Quality)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		xobjects := raw.Dict()
		xobjects.Set("Im0", imgRef)
		resources := raw.Dict()
		resources.Set("XObject", xobjects)

		pg := raw.Dict()
		pg.Set("Type", raw.Name("Page"))
		pg.Set("Parent", pagesRef)
		pg.Set("MediaBox", raw.Numbers(0, 0, pi.Width, pi.Height))
		pg.Set("Resources", resources)
		pg.Set("Contents", rd.Add(raw.NewStream(raw.Dict(), render.DrawImageOp("Im0", pi.Width, pi.Height))))
		kids.Append(rd.Add(pg))
	}
	pages.Set("Type", raw.Name("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", raw.Int(int64(len(imgs))))
	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	rd.Trailer.Set("Root", rd.Add(catalog))

	d, err := FromRaw(rd, nil)
	if err != nil {
		return nil, err
	}
	if opts.Producer != "" {
		d.SetMetadata(raw.DocumentMetadata{Producer: opts.Producer})
	}
	return d, nil
}

func embedImage(rd *raw.Document, img image.Image, quality int) (raw.RefObj, error) {
	if quality > 0 && opaque(img) {
		x, err := writer.JPEGXObject(img, min(quality, 100))
		if err != nil {
			return raw.RefObj{}, err
		}
		return rd.Add(x), nil
	}
	x, smask, err := writer.ImageXObject(img, 6)
	if err != nil {
		return raw.RefObj{}, err
	}
	if smask != nil {
		x.Dict.Set("SMask", rd.Add(smask))
	}
	return rd.Add(x), nil
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
