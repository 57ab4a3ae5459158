// Package config loads the settings file read by the pdfmark command.
//
// The file is JSON. Every key is optional; absent keys keep the defaults
// from Default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/secure"
	"github.com/wudi/pdfmark/watermark"
)

const (
	DefaultScale       = 2
	DefaultSuffix      = "watermarked"
	DefaultReceiptFile = "watermark receipt.txt"
)

// Watermark mirrors watermark.Params in file form.
type Watermark struct {
	Text1         string   `json:"text1"`
	Text2         string   `json:"text2"`
	Copyright     *bool    `json:"copyright"`
	Image         string   `json:"image"`     // asset name or path to an image file
	NoImage       bool     `json:"no_image"`
	Rotate        *float64 `json:"rotate"`
	Opacity       *float64 `json:"opacity"`
	Compression   int      `json:"compression"`
	SheetRotation int      `json:"sheet_rotation"`
	Placement     string   `json:"placement"` // "top" or "underneath"
	PageSize      string   `json:"page_size"` // "", "letter", "a4" or "WxH" in points
	Font          string   `json:"font"`
	Color         string   `json:"color"` // #rrggbb
}

type Secure struct {
	UserPassword  string `json:"user_password"`
	OwnerPassword string `json:"owner_password"`
	Algorithm     string `json:"algorithm"` // "aes" or "rc4"
	KeyLength     int    `json:"key_length"`
	AllowAll      bool   `json:"allow_all"`
}

type Config struct {
	Watermark   Watermark `json:"watermark"`
	Secure      Secure    `json:"secure"`
	Scale       float64   `json:"scale"` // overlay pixels per point
	Workers     int       `json:"workers"`
	Suffix      string    `json:"suffix"`
	Receipt     bool      `json:"receipt"`
	ReceiptFile string    `json:"receipt_file"`
	TempDir     string    `json:"temp_dir"`
	KeepTemp    bool      `json:"keep_temp"`
	Compress    bool      `json:"compress"`
	Debug       bool      `json:"debug"`
}

func Default() *Config {
	return &Config{
		Scale:       DefaultScale,
		Suffix:      DefaultSuffix,
		ReceiptFile: DefaultReceiptFile,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.Scale == 0 {
		c.Scale = DefaultScale
	}
	if c.Suffix == "" {
		c.Suffix = DefaultSuffix
	}
	if c.ReceiptFile == "" {
		c.ReceiptFile = DefaultReceiptFile
	}
	return c, nil
}

// Params converts the watermark section. Image values that name a readable
// file are loaded from disk; anything else is treated as an asset name.
func (w Watermark) Params() (watermark.Params, error) {
	p := watermark.DefaultParams()
	p.Text1, p.Text2 = w.Text1, w.Text2
	if w.Copyright != nil {
		p.Copyright = *w.Copyright
	}
	if w.Rotate != nil {
		p.Rotate = *w.Rotate
	}
	if w.Opacity != nil {
		p.Opacity = *w.Opacity
	}
	p.NoImage = w.NoImage
	p.Compression = w.Compression
	p.SheetRotation = w.SheetRotation
	p.Font = w.Font
	if w.Image != "" {
		if data, err := os.ReadFile(w.Image); err == nil {
			p.ImageData = data
		} else {
			p.Image = w.Image
		}
	}
	var err error
	if p.Placement, err = merge.ParsePlacement(w.Placement); err != nil {
		return p, err
	}
	if p.PageSize, err = ParsePageSize(w.PageSize); err != nil {
		return p, err
	}
	if p.Color, err = ParseColor(w.Color); err != nil {
		return p, err
	}
	return p, nil
}

func (s Secure) Options() (secure.Options, error) {
	opts := secure.Options{
		UserPassword:  s.UserPassword,
		OwnerPassword: s.OwnerPassword,
		KeyLength:     s.KeyLength,
		AllowAll:      s.AllowAll,
	}
	switch strings.ToLower(s.Algorithm) {
	case "", "aes":
		opts.Algorithm = secure.AES
	case "rc4":
		opts.Algorithm = secure.RC4
	default:
		return opts, &canvas.ConfigurationError{Field: "algorithm", Reason: fmt.Sprintf("unknown algorithm %q", s.Algorithm)}
	}
	return opts, nil
}

// ParsePageSize accepts "letter", "a4" or "WIDTHxHEIGHT" in points. The
// empty string yields the zero size, meaning "use the document's page".
func ParsePageSize(s string) (canvas.PageSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return canvas.PageSize{}, nil
	case "letter":
		return canvas.Letter, nil
	case "a4":
		return canvas.A4, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return canvas.PageSize{}, &canvas.ConfigurationError{Field: "page size", Reason: fmt.Sprintf("cannot parse %q", s)}
	}
	width, err1 := strconv.ParseFloat(strings.TrimSpace(w), 64)
	height, err2 := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err1 != nil || err2 != nil {
		return canvas.PageSize{}, &canvas.ConfigurationError{Field: "page size", Reason: fmt.Sprintf("cannot parse %q", s)}
	}
	size := canvas.PageSize{Width: width, Height: height}
	return size, size.Validate()
}

// ParseColor reads "#rrggbb"; empty is black.
func ParseColor(s string) (canvas.Color, error) {
	if s == "" {
		return canvas.Black, nil
	}
	hex := strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(hex, 16, 32)
	if len(hex) != 6 || err != nil {
		return canvas.Color{}, &canvas.ConfigurationError{Field: "color", Reason: fmt.Sprintf("want #rrggbb, got %q", s)}
	}
	return canvas.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
