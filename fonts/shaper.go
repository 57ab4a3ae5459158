package fonts

import (
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph represents a single shaped glyph with positioning in points.
type ShapedGlyph struct {
	ID       uint16
	Cluster  int
	XAdvance float64
	YAdvance float64
	XOffset  float64
	YOffset  float64
}

// Shape runs HarfBuzz shaping over text at size points and returns the
// glyphs in visual order.
func (f *Face) Shape(text string, size float64) []ShapedGlyph {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	script := DetectScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      f.shaped,
		Size:      fixed.Int26_6(size * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	var shaper shaping.HarfbuzzShaper
	f.shapeMu.Lock()
	output := shaper.Shape(input)
	f.shapeMu.Unlock()

	result := make([]ShapedGlyph, 0, len(output.Glyphs))
	for _, g := range output.Glyphs {
		result = append(result, ShapedGlyph{
			ID:       uint16(g.GlyphID),
			Cluster:  g.ClusterIndex,
			XAdvance: float64(g.XAdvance) / 64,
			YAdvance: float64(g.YAdvance) / 64,
			XOffset:  float64(g.XOffset) / 64,
			YOffset:  float64(g.YOffset) / 64,
		})
	}
	return result
}

// Advance is the total horizontal advance of a shaped run.
func Advance(glyphs []ShapedGlyph) float64 {
	var w float64
	for _, g := range glyphs {
		w += g.XAdvance
	}
	return w
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// DetectScript returns the most frequent script among runes; ties keep the
// script seen first. Text without a recognised script is treated as Latin.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	bestScript := language.Latin

	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			bestScript = script
		}
	}
	return bestScript
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	case unicode.Is(unicode.Thai, r):
		return language.Thai
	case unicode.Is(unicode.Devanagari, r):
		return language.Devanagari
	case unicode.Is(unicode.Han, r):
		return language.Han
	case unicode.Is(unicode.Hiragana, r):
		return language.Hiragana
	case unicode.Is(unicode.Katakana, r):
		return language.Katakana
	case unicode.Is(unicode.Hangul, r):
		return language.Hangul
	}
	return language.Unknown
}
