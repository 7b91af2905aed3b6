package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventLogin        EventType = "LOGIN"
	EventAccess       EventType = "ACCESS"
	EventUnauthorized EventType = "UNAUTHORIZED_ACCESS"
)

// Event is one access-audit record. Subject and Email are empty for
// unauthorized-access events.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	Subject    string
	Email      string
	Path       string
	OccurredAt time.Time
}

// Sink receives audit events for durable storage.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Logger is an async audit writer. Events always go to the structured log;
// when a sink is configured they are stored there too. A full buffer drops
// the event rather than blocking the request path.
type Logger struct {
	sink   Sink
	logger zerolog.Logger
	ch     chan Event
	done   chan struct{}
}

func NewLogger(sink Sink, logger zerolog.Logger) *Logger {
	l := &Logger{
		sink:   sink,
		logger: logger,
		ch:     make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

func (l *Logger) drain() {
	defer close(l.done)
	for e := range l.ch {
		evt := l.logger.Info().
			Str("audit_event", string(e.Type)).
			Str("path", e.Path).
			Time("occurred_at", e.OccurredAt)
		if e.Subject != "" {
			evt = evt.Str("subject", e.Subject).Str("email", e.Email)
		}
		evt.Msg("audit")

		if l.sink == nil {
			continue
		}
		if err := l.sink.Write(context.Background(), e); err != nil {
			l.logger.Error().Err(err).Msg("failed to write audit event")
		}
	}
}

// Close flushes buffered events and stops the writer.
func (l *Logger) Close() {
	close(l.ch)
	<-l.done
}

func (l *Logger) Login(subject, email string) {
	l.record(Event{Type: EventLogin, Subject: subject, Email: email})
}

func (l *Logger) Access(subject, email, path string) {
	l.record(Event{Type: EventAccess, Subject: subject, Email: email, Path: path})
}

func (l *Logger) Unauthorized(path string) {
	l.record(Event{Type: EventUnauthorized, Path: path})
}

func (l *Logger) record(e Event) {
	e.ID = uuid.New()
	e.OccurredAt = time.Now().UTC()

	select {
	case l.ch <- e:
	default:
		l.logger.Warn().Str("audit_event", string(e.Type)).
			Msg("audit buffer full, dropping event")
	}
}
