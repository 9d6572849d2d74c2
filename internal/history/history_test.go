package history

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestRecorderStampsEvents(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink, "shop", nil)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	r.now = func() time.Time { return at }

	r.Record(context.Background(), EventTransition, 42, "running", "negotiating -> running")
	require.Len(t, sink.events, 1)
	assert.Equal(t, Event{
		Type:       EventTransition,
		OccurredAt: at.UTC(),
		App:        "shop",
		Pid:        42,
		State:      "running",
		Detail:     "negotiating -> running",
	}, sink.events[0])

	require.NoError(t, r.Close())
	assert.True(t, sink.closed)
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	var buf bytes.Buffer
	sink := &memSink{err: errors.New("db down")}
	r := NewRecorder(sink, "shop", slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, EventLaunch, 1, "", "")
	assert.Contains(t, buf.String(), "db down")
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), EventShutdown, 0, "", "")
	assert.NoError(t, r.Close())

	r = NewRecorder(nil, "x", nil)
	r.Record(context.Background(), EventShutdown, 0, "", "")
	assert.NoError(t, r.Close())
}
