package confirm

import (
	"fmt"
	"sync"
	"time"
)

// Log is the append-only communication log of one subscription attempt. It is
// diagnostic narration for the caller, not part of the state machine: entries
// may still be appended after the outcome is resolved (e.g. a late "connection
// closed") without affecting the result.
type Log struct {
	mu      sync.Mutex
	entries []string
	now     func() time.Time
}

// NewLog returns an empty log stamping entries with the wall clock.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append records a timestamped entry.
func (l *Log) Append(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UTC().Format(time.RFC3339)
	l.entries = append(l.entries, fmt.Sprintf("[%s] %s", ts, fmt.Sprintf(format, args...)))
}

// Entries returns a snapshot of the log.
func (l *Log) Entries() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
