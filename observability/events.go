package observability

import "time"

type EventKind int

const (
	RenderStarted EventKind = iota
	ObjectRendered
	RenderFinished
	PageMerged
	MergeFinished
	Persisted
)

func (k EventKind) String() string {
	switch k {
	case RenderStarted:
		return "render_started"
	case ObjectRendered:
		return "object_rendered"
	case RenderFinished:
		return "render_finished"
	case PageMerged:
		return "page_merged"
	case MergeFinished:
		return "merge_finished"
	case Persisted:
		return "persisted"
	}
	return "unknown"
}

// Event is a progress notification. Only the fields relevant to Kind are set:
// Index is the object or page index, Total the object or page count, Path the
// persisted file.
type Event struct {
	Kind     EventKind
	Index    int
	Total    int
	Path     string
	Duration time.Duration
}

// Observer receives events. Implementations must be safe for concurrent
// use; pages are merged in parallel.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type NopObserver struct{}

func (NopObserver) Observe(Event) {}

// Multi fans an event out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	var out multi
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multi []Observer

func (m multi) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// LogObserver reports events as debug log lines.
func LogObserver(l Logger) Observer {
	return ObserverFunc(func(e Event) {
		fields := []Field{String("event", e.Kind.String())}
		switch e.Kind {
		case ObjectRendered, PageMerged:
			fields = append(fields, Int("index", e.Index))
		case RenderStarted, RenderFinished, MergeFinished:
			fields = append(fields, Int("total", e.Total))
		case Persisted:
			fields = append(fields, String("path", e.Path))
		}
		if e.Duration > 0 {
			fields = append(fields, Duration("duration", e.Duration))
		}
		l.Debug("progress", fields...)
	})
}
