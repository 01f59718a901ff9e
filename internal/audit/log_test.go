package audit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Append(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestLogForwardsToSinks(t *testing.T) {
	sink := &recordingSink{}
	l := NewLog(sink)
	l.Append(NewRevocationAccessDenied("c1", "user", "bob", "login"))
	if len(sink.events) != 1 || l.Len() != 1 {
		t.Fatalf("expected event in log and sink, got %d/%d", l.Len(), len(sink.events))
	}
}

func TestLogSinkFailureKeepsEvent(t *testing.T) {
	l := NewLog(&recordingSink{err: errors.New("disk full")})
	err := l.Append(NewRevocationAccessDenied("c1", "user", "bob", "login"))
	if err == nil {
		t.Fatal("expected sink error to be returned")
	}
	if l.Len() != 1 {
		t.Fatal("in-memory append must survive sink failure")
	}
}

func TestLogByCorrelationAndSince(t *testing.T) {
	l := NewLog()
	a := NewRevocationAccessDenied("c1", "user", "bob", "login")
	b := NewRevocationAccessDenied("c2", "user", "bob", "login")
	a.Timestamp = time.Now().Add(-2 * time.Hour)
	l.Append(a)
	l.Append(b)

	got, _ := l.ByCorrelation("c1")
	if len(got) != 1 || got[0] != Event(a) {
		t.Fatalf("ByCorrelation returned %v", got)
	}
	recent, _ := l.Since(time.Now().Add(-time.Hour))
	if len(recent) != 1 || recent[0] != Event(b) {
		t.Fatalf("Since returned %v", recent)
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(NewRevocationAccessDenied("c1", "user", "bob", "login"))
		}()
	}
	wg.Wait()
	if l.Len() != 100 {
		t.Fatalf("expected 100 events, got %d", l.Len())
	}
}
