package audit

import (
	"errors"
	"sync"
	"time"
)

// Sink receives every event appended to a Log.
type Sink interface {
	Append(e Event) error
}

// Source is a store the chain reconstructor can query.
type Source interface {
	ByCorrelation(correlationID string) ([]Event, error)
	Since(t time.Time) ([]Event, error)
}

// Log is the in-memory append-only event log. Appended events are also
// forwarded to every sink; a sink failure does not undo the in-memory append.
type Log struct {
	mu     sync.RWMutex
	events []Event
	sinks  []Sink
}

// NewLog creates an empty log forwarding to sinks.
func NewLog(sinks ...Sink) *Log {
	return &Log{sinks: sinks}
}

// Append records e and forwards it to sinks. The returned error joins any
// sink failures.
func (l *Log) Append(e Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	sinks := l.sinks
	l.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Append(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// All returns a copy of every event in append order.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

// Len returns the number of events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *Log) ByCorrelation(correlationID string) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if e.Meta().CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *Log) Since(t time.Time) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if !e.Meta().Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}
