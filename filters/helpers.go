package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmark/ir/raw"
)

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return names, params
	}

	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}

	if pObj, ok := dict.Get("DecodeParms"); ok && len(names) > 0 {
		switch p := pObj.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				d, _ := item.(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}

// applyPredictor reverses TIFF (2) and PNG (10-15) predictors.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor, _ := params.Int("Predictor")
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 {
		return nil, errors.New("invalid predictor row length")
	}

	if predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("tiff predictor with %d bits per component unsupported", bpc)
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}

	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			end = len(data)
		}
		if end-off < 2 {
			break
		}
		filter := data[off]
		row := make([]byte, rowLen)
		copy(row, data[off+1:end])
		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown png filter type %d", filter)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intParam(d *raw.DictObj, key string, def int) int {
	if v, ok := d.Int(key); ok && v > 0 {
		return int(v)
	}
	return def
}
