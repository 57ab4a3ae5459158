package render

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	// registered decoders for image objects
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errNoImageData = errors.New("no image data")

// decodeImage accepts PNG, JPEG, GIF, BMP, TIFF and WebP data.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errNoImageData
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// JPEGQuality maps a compression level to the re-encode quality.
func JPEGQuality(level int) int {
	q := 100 - 10*level
	if q < 10 {
		q = 10
	}
	return q
}

// compress round-trips img through JPEG at the level's quality. Alpha does
// not survive JPEG, so it is carried over from the source unchanged.
func compress(img image.Image, level int) (image.Image, error) {
	b := img.Bounds()
	src := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	opaque := image.NewNRGBA(src.Bounds())
	copy(opaque.Pix, src.Pix)
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, opaque, &jpeg.Options{Quality: JPEGQuality(level)}); err != nil {
		return nil, err
	}
	lossy, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, err
	}
	out := image.NewNRGBA(src.Bounds())
	draw.Draw(out, out.Bounds(), lossy, lossy.Bounds().Min, draw.Src)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = src.Pix[i]
	}
	return out, nil
}
