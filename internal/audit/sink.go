// Package audit records messages that needed human review: unclassifiable
// bodies, exclusion hits, missing amounts and unusable timestamps.
//
// The log is append-only and human readable. Nothing in the pipeline reads
// it back.
package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Reasons used by the pipeline.
const (
	ReasonExclusion       = "Explicit exclusion keyword found"
	ReasonNoCategory      = "No matching category"
	ReasonAmountNotFound  = "Amount not found"
	ReasonDateParsePrefix = "Date parsing error"
)

var separator = strings.Repeat("-", 40)

// Entry is one audit record.
type Entry struct {
	Reason  string
	Message string
}

// Sink receives audit entries. Implementations must be safe for concurrent use.
type Sink interface {
	Record(e Entry)
}

// Format renders an entry in the on-disk layout.
func Format(e Entry) string {
	return fmt.Sprintf("Reason: %s\nMessage: %s\n%s\n", e.Reason, e.Message, separator)
}

// WriterSink appends formatted entries to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, Format(e)); err != nil {
		slog.Error("Failed to write audit entry", "reason", e.Reason, "error", err)
	}
}

// FileSink is a WriterSink backed by a file opened in append mode.
type FileSink struct {
	*WriterSink
	f *os.File
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileSink{WriterSink: NewWriterSink(f), f: f}, nil
}

func (s *FileSink) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// Collector keeps entries in memory.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Entries returns a copy of everything recorded so far.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of recorded entries.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counts groups recorded entries by reason.
func (c *Collector) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	for _, e := range c.entries {
		out[e.Reason]++
	}
	return out
}

// Tee fans entries out to several sinks.
type Tee []Sink

func (t Tee) Record(e Entry) {
	for _, s := range t {
		if s != nil {
			s.Record(e)
		}
	}
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Entry) {}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}
