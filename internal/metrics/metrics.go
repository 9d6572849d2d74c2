package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtctl",
			Subsystem: "supervisor",
			Name:      "launches_total",
			Help:      "Launch attempts by outcome (ready or launch error kind).",
		}, []string{"app", "outcome"},
	)
	launchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rtctl",
			Subsystem: "supervisor",
			Name:      "launch_duration_seconds",
			Help:      "Time from launch request to readiness or failure.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"app"},
	)
	startRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtctl",
			Subsystem: "orchestrator",
			Name:      "start_rounds_total",
			Help:      "Admin start calls by classified result.",
		}, []string{"app", "result"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtctl",
			Subsystem: "orchestrator",
			Name:      "state_transitions_total",
			Help:      "Startup state machine transitions.",
		}, []string{"app", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rtctl",
			Subsystem: "orchestrator",
			Name:      "current_state",
			Help:      "Current startup state (1 = active state, 0 = inactive).",
		}, []string{"app", "state"},
	)
	shutdownAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtctl",
			Subsystem: "orchestrator",
			Name:      "shutdown_attempts_total",
			Help:      "Shutdown escalation tiers tried and whether the process went away.",
		}, []string{"app", "tier", "outcome"},
	)
	inconsistent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtctl",
			Subsystem: "monitor",
			Name:      "inconsistent_state_total",
			Help:      "Detections of a live pid with an unreachable admin API.",
		}, []string{"app"},
	)
	pidAlive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rtctl",
			Subsystem: "monitor",
			Name:      "pid_alive",
			Help:      "1 when the tracked pid is alive.",
		}, []string{"app"},
	)
	adminAlive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rtctl",
			Subsystem: "monitor",
			Name:      "admin_alive",
			Help:      "1 when the admin API answers echo.",
		}, []string{"app"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, launchDuration, startRounds, stateTransitions, currentState, shutdownAttempts, inconsistent, pidAlive, adminAlive}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered with this registry: keep existing
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(app, outcome string) {
	if regOK.Load() {
		launches.WithLabelValues(app, outcome).Inc()
	}
}

func ObserveLaunchDuration(app string, seconds float64) {
	if regOK.Load() {
		launchDuration.WithLabelValues(app).Observe(seconds)
	}
}

func IncStartRound(app, result string) {
	if regOK.Load() {
		startRounds.WithLabelValues(app, result).Inc()
	}
}

// RecordStateTransition counts the transition and moves the current state gauge.
func RecordStateTransition(app, from, to string) {
	if !regOK.Load() {
		return
	}
	stateTransitions.WithLabelValues(app, from, to).Inc()
	if from != "" {
		currentState.WithLabelValues(app, from).Set(0)
	}
	currentState.WithLabelValues(app, to).Set(1)
}

func IncShutdownAttempt(app, tier string, stopped bool) {
	if regOK.Load() {
		outcome := "failed"
		if stopped {
			outcome = "stopped"
		}
		shutdownAttempts.WithLabelValues(app, tier, outcome).Inc()
	}
}

func IncInconsistent(app string) {
	if regOK.Load() {
		inconsistent.WithLabelValues(app).Inc()
	}
}

func SetLiveness(app string, pid, admin bool) {
	if regOK.Load() {
		pidAlive.WithLabelValues(app).Set(b2f(pid))
		adminAlive.WithLabelValues(app).Set(b2f(admin))
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
