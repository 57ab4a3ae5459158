// Package tempdir provides a scoped working directory for one pipeline run
// and the output naming rules used next to the source file.
package tempdir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrClosed = errors.New("temp arena closed")

// Arena owns a private temporary directory. Close removes it with
// everything inside unless Keep was called.
type Arena struct {
	mu     sync.Mutex
	dir    string
	keep   bool
	closed bool
}

// New creates the arena under parent; an empty parent uses os.TempDir.
func New(parent string) (*Arena, error) {
	dir, err := os.MkdirTemp(parent, "pdfmark-")
	if err != nil {
		return nil, fmt.Errorf("create temp arena: %w", err)
	}
	return &Arena{dir: dir}, nil
}

func (a *Arena) Path() string { return a.dir }

// CreateTemp opens a new uniquely named file inside the arena.
func (a *Arena) CreateTemp(pattern string) (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	return os.CreateTemp(a.dir, pattern)
}

// Keep leaves the directory in place on Close, for inspecting
// intermediate files.
func (a *Arena) Keep() {
	a.mu.Lock()
	a.keep = true
	a.mu.Unlock()
}

// Close releases the arena. It is safe to call more than once.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.keep {
		return nil
	}
	return os.RemoveAll(a.dir)
}

// Publish moves a finished file from the arena to dst. When a rename is not
// possible (different file systems) the data is copied next to dst first so
// dst only ever appears complete.
func (a *Arena) Publish(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// AddSuffix returns path with "_suffix" inserted before the extension:
// AddSuffix("/a/report.pdf", "watermarked") is "/a/report_watermarked.pdf".
func AddSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if suffix == "" {
		return path
	}
	return stem + "_" + suffix + ext
}
