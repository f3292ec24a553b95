package control

// Mode is the authoritative robot mode. Exactly one mode is active at any
// instant; it is owned by the StateMachine and changes only inside Step or
// ForceEStop, both of which run on the control goroutine.
type Mode int

const (
	ModeIdle Mode = iota
	ModeStanding
	ModeTeleopWalk
	ModePolicyWalk
	ModeEStopped
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeStanding:
		return "STANDING"
	case ModeTeleopWalk:
		return "TELEOP_WALK"
	case ModePolicyWalk:
		return "POLICY_WALK"
	case ModeEStopped:
		return "ESTOPPED"
	default:
		return "UNKNOWN"
	}
}

// Signals carries the edge-triggered control events decoded for one tick.
// Each field is a pulse: it fires on the tick a button goes down and never
// while it is held.
type Signals struct {
	ModeSwitch bool
	EStop      bool
	EStopClear bool
}

// Condition names a non-fatal fault surfaced by the supervisory logic.
// Conditions are absorbed into a mode transition or fallback and reported,
// never propagated as process-terminating errors.
type Condition string

const (
	CondTelemetryStale    Condition = "telemetry_stale"
	CondLinkFailure       Condition = "link_failure"
	CondTickOverrun       Condition = "tick_overrun"
	CondPolicyUnavailable Condition = "policy_unavailable"
	CondTeleopTimeout     Condition = "teleop_timeout"
)
