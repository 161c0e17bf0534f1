package events

import (
	"log/slog"
	"sort"
	"sync"
)

// Event represents a structured state change emitted by the marketplace.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, the HTTP
// daemon's recent-activity buffer).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record is the flattened payload shared by every event: a type tag plus
// string attributes.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventType implements Event.
func (r Record) EventType() string { return r.Type }

// Recorder keeps every emitted record in memory. Events that are not Records
// are stored with their type only.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	limit   int
}

// NewRecorder returns a recorder retaining at most limit records; zero keeps
// everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	rec, ok := evt.(Record)
	if !ok {
		rec = Record{Type: evt.EventType()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if r.limit > 0 && len(r.records) > r.limit {
		r.records = append([]Record(nil), r.records[len(r.records)-r.limit:]...)
	}
}

// Records returns a copy of the retained records, oldest first.
func (r *Recorder) Records() []Record {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Types lists the retained event types, oldest first.
func (r *Recorder) Types() []string {
	records := r.Records()
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Type
	}
	return out
}

// LogEmitter writes each event as a structured log line.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements Emitter.
func (l LogEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{slog.String("event", evt.EventType())}
	if rec, ok := evt.(Record); ok {
		keys := make([]string, 0, len(rec.Attributes))
		for k := range rec.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, slog.String(k, rec.Attributes[k]))
		}
	}
	logger.Info("event emitted", args...)
}

// Fanout forwards each event to every emitter in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}
