package orchestrator

// State is a step of the startup state machine.
type State int

const (
	NotStarted State = iota
	Launching
	ConfigSent
	Negotiating
	NeedsDbCreation
	NeedsSchemaSync
	NeedsConstantFix
	NeedsCredentialReset
	Running
	Aborted
	Fatal
)

var stateNames = [...]string{
	NotStarted:           "not_started",
	Launching:            "launching",
	ConfigSent:           "config_sent",
	Negotiating:          "negotiating",
	NeedsDbCreation:      "needs_db_creation",
	NeedsSchemaSync:      "needs_schema_sync",
	NeedsConstantFix:     "needs_constant_fix",
	NeedsCredentialReset: "needs_credential_reset",
	Running:              "running",
	Aborted:              "aborted",
	Fatal:                "fatal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition follows within a Start call.
func (s State) Terminal() bool {
	return s == Running || s == Aborted || s == Fatal
}

// Tier is a shutdown escalation step.
type Tier int

const (
	TierGraceful Tier = iota
	TierTerminate
	TierKill
)

func (t Tier) String() string {
	switch t {
	case TierGraceful:
		return "graceful"
	case TierTerminate:
		return "terminate"
	case TierKill:
		return "kill"
	default:
		return "unknown"
	}
}

// ShutdownAttempt is the outcome of one Shutdown call: the last tier tried,
// whether the process is gone, and whether the policy halted escalation.
type ShutdownAttempt struct {
	Tier    Tier
	Stopped bool
	Halted  bool
}
