package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Write(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestLoggerWritesToSink(t *testing.T) {
	sink := &recordingSink{}
	l := NewLogger(sink, zerolog.Nop())

	l.Login("user123", "user@example.com")
	l.Access("user123", "user@example.com", "/protected")
	l.Unauthorized("/protected")
	l.Close()

	events := sink.all()
	require.Len(t, events, 3)

	assert.Equal(t, EventLogin, events[0].Type)
	assert.Equal(t, "user123", events[0].Subject)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.False(t, events[0].OccurredAt.IsZero())

	assert.Equal(t, EventAccess, events[1].Type)
	assert.Equal(t, "/protected", events[1].Path)

	assert.Equal(t, EventUnauthorized, events[2].Type)
	assert.Empty(t, events[2].Subject)
}

func TestLoggerWithoutSink(t *testing.T) {
	l := NewLogger(nil, zerolog.Nop())

	l.Login("user123", "user@example.com")
	l.Close()
}
