package store

import (
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

type eventRecord struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Gallons   *float64 `json:"gallons,omitempty"`
	Value     float64  `json:"value,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

// EventLog is the append-only audit log of state events.
type EventLog struct {
	mu   sync.Mutex
	path string
}

// NewEventLog appends to path, creating it on first write.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Append writes one event.
func (l *EventLog) Append(e logic.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, eventRecord{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(e.Type),
		Gallons:   e.Gallons,
		Value:     e.Value,
		Detail:    e.Detail,
	})
}
