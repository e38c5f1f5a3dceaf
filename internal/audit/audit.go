// Package audit keeps a bounded in-memory trail of file operations and
// mirrors each event to a pluggable writer.
package audit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType classifies an audit event.
type EventType string

const (
	EventTypeWrite  EventType = "write"
	EventTypeRead   EventType = "read"
	EventTypeForget EventType = "forget"
	EventTypeCopy   EventType = "copy"
	EventTypeMove   EventType = "move"
)

// Event is a single audit record.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   EventType `json:"event_type"`
	Path        string    `json:"path"`
	Destination string    `json:"destination,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Bytes       int64     `json:"bytes,omitempty"`
	Segments    int       `json:"segments,omitempty"`
	Encrypted   bool      `json:"encrypted"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}

// Logger records audit events.
type Logger interface {
	Log(event *Event)
	Events() []*Event
}

// EventWriter receives each event as it is logged.
type EventWriter interface {
	WriteEvent(event *Event) error
}

// EventWriterFunc adapts a function to the EventWriter interface.
type EventWriterFunc func(event *Event) error

func (f EventWriterFunc) WriteEvent(event *Event) error { return f(event) }

type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	writer    EventWriter
}

// NewLogger creates a logger keeping at most maxEvents in memory. A nil
// writer falls back to structured log output.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &logrusWriter{logger: logrus.StandardLogger()}
	}

	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// NewLogrusLogger creates a logger mirroring events to the given logrus
// logger.
func NewLogrusLogger(maxEvents int, logger *logrus.Logger) Logger {
	return NewLogger(maxEvents, &logrusWriter{logger: logger})
}

func (l *auditLogger) Log(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Writer failures must never block the operation being audited.
	_ = l.writer.WriteEvent(event)

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

// Events returns a copy of the retained trail.
func (l *auditLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

type logrusWriter struct {
	logger *logrus.Logger
}

func (w *logrusWriter) WriteEvent(event *Event) error {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"path":        event.Path,
		"success":     event.Success,
		"duration_ms": event.DurationMs,
	}
	if event.Destination != "" {
		fields["destination"] = event.Destination
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Bytes > 0 {
		fields["bytes"] = event.Bytes
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}

	w.logger.WithFields(fields).Info("Audit event")
	return nil
}
