// Package history exports lifecycle events of the managed runtime to
// external stores for auditing.
package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch     EventType = "launch"
	EventTransition EventType = "transition"
	EventShutdown   EventType = "shutdown"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	App        string    `json:"app"`
	Pid        int       `json:"pid"`
	State      string    `json:"state"`
	Detail     string    `json:"detail"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// DefaultTable holds events in every backend.
const DefaultTable = "rtctl_history"

// Recorder stamps events and forwards them to a sink. Sink failures are
// logged and never reach the caller. A nil sink records nothing.
type Recorder struct {
	sink    Sink
	app     string
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(sink Sink, app string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:    sink,
		app:     app,
		logger:  logger.With("component", "history"),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

func (r *Recorder) Record(ctx context.Context, typ EventType, pid int, state, detail string) {
	if r == nil || r.sink == nil {
		return
	}
	e := Event{
		Type:       typ,
		OccurredAt: r.now().UTC(),
		App:        r.app,
		Pid:        pid,
		State:      state,
		Detail:     detail,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.sink.Send(ctx, e); err != nil {
		r.logger.Warn("history event not recorded", "type", string(typ), "error", err)
	}
}

func (r *Recorder) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
