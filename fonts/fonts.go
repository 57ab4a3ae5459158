package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode"

	gofont "github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// DefaultFace names the face used when a text object does not pick one.
const DefaultFace = "Go-Regular"

var ErrUnknownFace = errors.New("unknown font face")

// Face is a parsed TrueType/OpenType font usable for coverage checks,
// shaping and outline rasterization. A Face is safe for concurrent use.
type Face struct {
	Name   string
	shaped *gofont.Face
	outl   *sfnt.Font
	upem   float64

	mu  sync.Mutex // guards buf
	buf sfnt.Buffer

	shapeMu sync.Mutex // guards shaped
}

// Parse loads font data under name.
func Parse(name string, data []byte) (*Face, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("font %q: empty data", name)
	}
	outl, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("font %q: parse outlines: %w", name, err)
	}
	shaped, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("font %q: parse tables: %w", name, err)
	}
	upem := float64(outl.UnitsPerEm())
	if upem == 0 {
		return nil, fmt.Errorf("font %q: invalid unitsPerEm", name)
	}
	return &Face{Name: name, shaped: shaped, outl: outl, upem: upem}, nil
}

// Covers reports whether the face has a real glyph for r.
func (f *Face) Covers(r rune) bool {
	if unicode.IsControl(r) {
		return false
	}
	f.shapeMu.Lock()
	gid, ok := f.shaped.NominalGlyph(r)
	f.shapeMu.Unlock()
	return ok && gid != 0
}

// FirstMissing returns the first rune of s without a glyph.
func (f *Face) FirstMissing(s string) (rune, bool) {
	for _, r := range s {
		if !f.Covers(r) {
			return r, true
		}
	}
	return 0, false
}

// Metrics are vertical font metrics in points for a given size.
type Metrics struct {
	Ascent, Descent float64
}

func (f *Face) Metrics(size float64) (Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ppem := fixed.Int26_6(f.upem * 64)
	m, err := f.outl.Metrics(&f.buf, ppem, xfont.HintingNone)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		Ascent:  float64(m.Ascent) / 64 / f.upem * size,
		Descent: float64(m.Descent) / 64 / f.upem * size,
	}, nil
}

// Registry maps face names to parsed faces. The Go fonts are always present.
type Registry struct {
	mu    sync.RWMutex
	faces map[string]*Face
}

var (
	builtinOnce sync.Once
	builtin     map[string]*Face
	builtinErr  error
)

func loadBuiltin() (map[string]*Face, error) {
	builtinOnce.Do(func() {
		builtin = make(map[string]*Face)
		for name, data := range map[string][]byte{
			DefaultFace: goregular.TTF,
			"Go-Bold":   gobold.TTF,
			"Go-Mono":   gomono.TTF,
		} {
			face, err := Parse(name, data)
			if err != nil {
				builtinErr = err
				return
			}
			builtin[name] = face
		}
	})
	return builtin, builtinErr
}

// NewRegistry returns a registry holding the built-in faces.
func NewRegistry() (*Registry, error) {
	faces, err := loadBuiltin()
	if err != nil {
		return nil, err
	}
	r := &Registry{faces: make(map[string]*Face, len(faces))}
	for k, v := range faces {
		r.faces[k] = v
	}
	return r, nil
}

// Register parses data and adds it under name, replacing any previous face.
func (r *Registry) Register(name string, data []byte) error {
	face, err := Parse(name, data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.faces[name] = face
	r.mu.Unlock()
	return nil
}

// Lookup returns the named face; the empty name selects DefaultFace.
func (r *Registry) Lookup(name string) (*Face, error) {
	if name == "" {
		name = DefaultFace
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	face, ok := r.faces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFace, name)
	}
	return face, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.faces))
	for k := range r.faces {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
