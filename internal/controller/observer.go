package controller

import (
	"context"
	"fmt"

	"github.com/loykin/rtctl/internal/history"
	"github.com/loykin/rtctl/internal/metrics"
	"github.com/loykin/rtctl/internal/orchestrator"
)

// observer feeds orchestrator events into metrics and the history sink.
type observer struct {
	app      string
	recorder *history.Recorder
	pid      func() int
}

func (o *observer) Transition(from, to orchestrator.State) {
	metrics.RecordStateTransition(o.app, from.String(), to.String())
	if from == to {
		return
	}
	ctx := context.Background()
	if from == orchestrator.Launching {
		detail := "launched"
		if to == orchestrator.Fatal {
			detail = "launch failed"
		}
		o.recorder.Record(ctx, history.EventLaunch, o.pid(), to.String(), detail)
	}
	o.recorder.Record(ctx, history.EventTransition, o.pid(), to.String(), fmt.Sprintf("%s -> %s", from, to))
}

func (o *observer) StartRound(_ int, result string) {
	metrics.IncStartRound(o.app, result)
}

func (o *observer) ShutdownTier(a orchestrator.ShutdownAttempt) {
	metrics.IncShutdownAttempt(o.app, a.Tier.String(), a.Stopped)
	detail := "still running"
	if a.Stopped {
		detail = "stopped"
	}
	o.recorder.Record(context.Background(), history.EventShutdown, o.pid(), a.Tier.String(), detail)
}

func (o *observer) Liveness(l orchestrator.Liveness) {
	metrics.SetLiveness(o.app, l.PidAlive, l.AdminAlive)
	if l.PidAlive && !l.AdminAlive {
		metrics.IncInconsistent(o.app)
	}
}
