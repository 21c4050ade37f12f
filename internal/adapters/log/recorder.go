// Package log provides logger adapters for the application layer.
package log

import (
	"strings"
	"sync"

	"github.com/bft-labs/walfp/internal/ports"
)

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields []ports.Field
}

// Field returns the value of the named field, if present.
func (e Entry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Recorder implements ports.Logger by keeping every entry in memory.
// It is used to assert on diagnostics in tests and is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ ports.Logger = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level, msg string, fields []ports.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Fields: append([]ports.Field(nil), fields...)})
}

// Debug records the message.
func (r *Recorder) Debug(msg string, fields ...ports.Field) { r.record("debug", msg, fields) }

// Info records the message.
func (r *Recorder) Info(msg string, fields ...ports.Field) { r.record("info", msg, fields) }

// Warn records the message.
func (r *Recorder) Warn(msg string, fields ...ports.Field) { r.record("warn", msg, fields) }

// Error records the message.
func (r *Recorder) Error(msg string, fields ...ports.Field) { r.record("error", msg, fields) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Find returns the entries whose message contains substr.
func (r *Recorder) Find(substr string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if strings.Contains(e.Msg, substr) {
			out = append(out, e)
		}
	}
	return out
}
