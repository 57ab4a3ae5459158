package canvas

import "fmt"

// ConfigurationError reports invalid geometry or parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnsupportedAssetError reports image data that cannot be decoded.
type UnsupportedAssetError struct {
	Object int
	Err    error
}

func (e *UnsupportedAssetError) Error() string {
	return fmt.Sprintf("object %d: unsupported image: %v", e.Object, e.Err)
}

func (e *UnsupportedAssetError) Unwrap() error { return e.Err }

// EncodingError reports a character the selected font cannot draw.
type EncodingError struct {
	Object int
	Rune   rune
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("object %d: no glyph for %q (U+%04X)", e.Object, e.Rune, e.Rune)
}

// CompositingError wraps a backend failure while merging one page.
type CompositingError struct {
	Page int
	Err  error
}

func (e *CompositingError) Error() string {
	return fmt.Sprintf("page %d: compositing failed: %v", e.Page, e.Err)
}

func (e *CompositingError) Unwrap() error { return e.Err }

// PageMismatchError reports a document that cannot take an overlay at all.
type PageMismatchError struct {
	Reason string
}

func (e *PageMismatchError) Error() string { return "page mismatch: " + e.Reason }
