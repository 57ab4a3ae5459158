// Package assets resolves named watermark images. Built-in images are
// embedded in the binary so lookups never depend on the install location.
package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultImage is the watermark image used when none is requested.
const DefaultImage = "wide.png"

//go:embed img/*.png
var builtin embed.FS

var ErrNotFound = errors.New("asset not found")

// Provider supplies raw bytes for named image assets.
type Provider interface {
	Open(name string) ([]byte, error)
	Names() []string
}

// FSProvider serves assets from a file system rooted at the asset directory.
type FSProvider struct {
	fsys fs.FS
}

// Builtin returns the provider for the embedded images.
func Builtin() *FSProvider {
	sub, err := fs.Sub(builtin, "img")
	if err != nil {
		panic(err)
	}
	return &FSProvider{fsys: sub}
}

// Dir serves the images in a directory on disk.
func Dir(dir string) *FSProvider { return &FSProvider{fsys: os.DirFS(dir)} }

func (p *FSProvider) Open(name string) ([]byte, error) {
	clean := path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "/"))
	if !fs.ValidPath(clean) || clean == "." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	data, err := fs.ReadFile(p.fsys, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

// Names lists the available images, sorted.
func (p *FSProvider) Names() []string {
	var out []string
	_ = fs.WalkDir(p.fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(name)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
			out = append(out, name)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// Chain consults providers in order and returns the first hit.
type Chain []Provider

func (c Chain) Open(name string) ([]byte, error) {
	for _, p := range c {
		data, err := p.Open(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (c Chain) Names() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range c {
		for _, n := range p.Names() {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}
