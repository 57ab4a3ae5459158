package writer

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/wudi/pdfmark/filters"
	"github.com/wudi/pdfmark/ir/raw"
)

// ImageXObject encodes img as an 8-bit DeviceRGB image XObject. Images with
// any non-opaque pixel also get a DeviceGray soft mask, returned separately
// so the caller can allocate it and reference it via /SMask. Premultiplied
// sources are converted to straight alpha.
func ImageXObject(img image.Image, level int) (*raw.StreamObj, *raw.StreamObj, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	opaque := true
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	nb := nrgba.Bounds()
	for y := nb.Min.Y; y < nb.Max.Y; y++ {
		for x := nb.Min.X; x < nb.Max.X; x++ {
			c := nrgba.NRGBAAt(x, y)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}
	if level <= 0 {
		level = 6
	}
	data, err := filters.FlateEncode(rgb, level)
	if err != nil {
		return nil, nil, err
	}
	xobj := imageDict(w, h, "DeviceRGB")
	xobj.Set("Filter", raw.Name("FlateDecode"))
	stream := raw.NewStream(xobj, data)
	if opaque {
		return stream, nil, nil
	}
	mdata, err := filters.FlateEncode(alpha, level)
	if err != nil {
		return nil, nil, err
	}
	mdict := imageDict(w, h, "DeviceGray")
	mdict.Set("Filter", raw.Name("FlateDecode"))
	return stream, raw.NewStream(mdict, mdata), nil
}

// JPEGXObject embeds an opaque image as DCTDecode data.
func JPEGXObject(img image.Image, quality int) (*raw.StreamObj, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	b := img.Bounds()
	space := "DeviceRGB"
	if img.ColorModel() == color.GrayModel {
		space = "DeviceGray"
	}
	d := imageDict(b.Dx(), b.Dy(), space)
	d.Set("Filter", raw.Name("DCTDecode"))
	return raw.NewStream(d, buf.Bytes()), nil
}

func imageDict(w, h int, space string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.Name("XObject"))
	d.Set("Subtype", raw.Name("Image"))
	d.Set("Width", raw.Int(int64(w)))
	d.Set("Height", raw.Int(int64(h)))
	d.Set("ColorSpace", raw.Name(space))
	d.Set("BitsPerComponent", raw.Int(8))
	return d
}
