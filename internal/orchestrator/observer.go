package orchestrator

// Observer receives state machine events. Implementations must not block.
type Observer interface {
	Transition(from, to State)
	StartRound(round int, result string)
	ShutdownTier(attempt ShutdownAttempt)
	Liveness(l Liveness)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Transition(State, State)      {}
func (NopObserver) StartRound(int, string)       {}
func (NopObserver) ShutdownTier(ShutdownAttempt) {}
func (NopObserver) Liveness(Liveness)            {}
