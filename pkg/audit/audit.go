// Package audit records one event per anonymize/detect request: which
// cascade stages ran, which detection method and redaction strategy won,
// and how many spans were applied. Events never contain input text or
// matched substrings; the trail is PII-free by construction.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"` // "anonymize" or "detect"
	Method    string    `json:"method"`    // detection method that produced the result
	Strategy  string    `json:"strategy,omitempty"`
	SpanCount int       `json:"span_count"`
	States    []string  `json:"states,omitempty"` // cascade stages visited
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh request ID and timestamp.
func NewEvent(operation string) Event {
	return Event{
		ID:        uuid.NewString(),
		Time:      time.Now().UTC(),
		Operation: operation,
	}
}

// Sink receives audit events. Record must not block request handling on
// failure: sinks absorb and log their own errors.
type Sink interface {
	Record(event Event)
	Close() error
}

// FileSink appends events as JSON lines to a file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileSink opens (or creates) the audit file in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return &FileSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Record writes one JSONL line. Write errors are logged, never surfaced.
func (s *FileSink) Record(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil {
		log.Printf("[AUDIT] file sink write failed: %v", err)
	}
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// MultiSink fans one event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks; nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record forwards the event to every sink.
func (m *MultiSink) Record(event Event) {
	for _, s := range m.sinks {
		s.Record(event)
	}
}

// Close closes all sinks, returning the first error seen.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len reports how many sinks are attached.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// NopSink discards all events. Used when auditing is disabled.
type NopSink struct{}

func (NopSink) Record(Event) {}
func (NopSink) Close() error { return nil }
