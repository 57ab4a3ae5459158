package assets

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuiltinDefaultImageDecodes(t *testing.T) {
	data, err := Builtin().Open(DefaultImage)
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 480 || b.Dy() != 120 {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestBuiltinNames(t *testing.T) {
	if diff := cmp.Diff([]string{"square.png", "wide.png"}, Builtin().Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestOpenRejectsEscapes(t *testing.T) {
	for _, name := range []string{"../assets.go", "", "missing.png"} {
		if _, err := Builtin().Open(name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestChainPrefersFirstProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wide.png"), []byte("override"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "logo.jpg"), []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := Chain{Dir(dir), Builtin()}
	data, err := c.Open("wide.png")
	if err != nil || string(data) != "override" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := c.Open("square.png"); err != nil {
		t.Fatalf("fallback failed: %v", err)
	}
	if diff := cmp.Diff([]string{"logo.jpg", "square.png", "wide.png"}, c.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}
