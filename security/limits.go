package security

import "time"

// Limits bounds the resources spent on a single input document.
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum nesting of arrays and dictionaries. Default: 64.
	MaxNestingDepth int

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length (bytes). Default: 50 MB.
	MaxStreamLength int64

	// Maximum total parse time. Default: 5m.
	MaxParseTime time.Duration
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxNestingDepth:     64,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     50 * 1024 * 1024,
		MaxParseTime:        5 * time.Minute,
	}
}
