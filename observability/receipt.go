package observability

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
)

const receiptSeparator = "*******************************************************************"

// Receipt collects "key --> value" lines describing one run. It is also an
// Observer, so pipeline progress lands in the same record.
type Receipt struct {
	mu    sync.Mutex
	lines []string
	pages int
	echo  io.Writer
}

// NewReceipt starts a receipt headed by title and the current time. Lines
// are echoed to echo as they are added when it is non-nil.
func NewReceipt(title string, now time.Time, echo io.Writer) *Receipt {
	r := &Receipt{echo: echo}
	r.Add(title, now.Format("2006-01-02 15:04"))
	return r
}

func (r *Receipt) Add(key string, value interface{}) {
	line := fmt.Sprintf("%-20s--> %v", key, value)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if r.echo != nil {
		fmt.Fprintln(r.echo, line)
	}
}

func (r *Receipt) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *Receipt) Observe(e Event) {
	switch e.Kind {
	case RenderFinished:
		r.Add("WM Objects", e.Total)
	case PageMerged:
		r.mu.Lock()
		r.pages++
		r.mu.Unlock()
	case MergeFinished:
		r.mu.Lock()
		merged := r.pages
		r.mu.Unlock()
		r.Add("Pages", fmt.Sprintf("%d of %d", merged, e.Total))
	case Persisted:
		r.Add("Output", e.Path)
	}
}

func (r *Receipt) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, l := range r.Lines() {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// AppendFile appends the receipt to path, separating it from earlier runs.
func (r *Receipt) AppendFile(path string) error {
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return statErr
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if exists {
		if _, err := io.WriteString(f, receiptSeparator+"\n"); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
