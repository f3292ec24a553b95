package control

import (
	"time"

	customlog "github.com/open-quad/controller/pkg/log"
)

// StepInput is everything the state machine may consult for one tick.
type StepInput struct {
	Teleop    Command
	Signals   Signals
	Telemetry Telemetry
	Now       time.Time
}

// StateMachine owns the authoritative robot mode and arbitrates between the
// teleop and policy command sources. It has no goroutines and no hidden
// timers; every transition is a function of (mode, signals, estop state) and
// the telemetry staleness check is a pure function of now - timestamp.
type StateMachine struct {
	mode       Mode
	policy     PolicySource
	staleAfter time.Duration
	monitor    Monitor
	logger     customlog.Logger
}

// NewStateMachine creates a state machine starting in Idle. policy may be an
// unloaded source; PolicyWalk is then skipped in the mode cycle.
func NewStateMachine(policy PolicySource, staleAfter time.Duration, monitor Monitor, logger customlog.Logger) *StateMachine {
	if monitor == nil {
		monitor = NopMonitor{}
	}
	return &StateMachine{
		mode:       ModeIdle,
		policy:     policy,
		staleAfter: staleAfter,
		monitor:    monitor,
		logger:     logger,
	}
}

// Mode returns the current mode. Only the control goroutine may call this
// concurrently with Step.
func (m *StateMachine) Mode() Mode {
	return m.mode
}

// Step advances the machine by one tick and returns the single command to
// transmit. It must be called exactly once per control period.
//
// While e-stopped every input except the clear pulse is ignored and the
// output is always the zero-velocity hold command.
func (m *StateMachine) Step(in StepInput) Command {
	if m.mode == ModeEStopped {
		if in.Signals.EStopClear {
			m.transition(ModeIdle, "estop cleared")
		}
	} else if in.Signals.EStop {
		m.transition(ModeEStopped, "estop pulse")
	} else if in.Signals.ModeSwitch {
		m.transition(m.nextMode(), "mode switch")
	}

	// Fail-safe: policy mode cannot trust stale state. Fall back to
	// Standing and report once; the report does not repeat while stale
	// because the mode has already left PolicyWalk.
	if m.mode == ModePolicyWalk && in.Telemetry.Age(in.Now) > m.staleAfter {
		m.monitor.ConditionReported(CondTelemetryStale)
		m.transition(ModeStanding, "telemetry stale")
	}

	return m.output(in)
}

// ForceEStop drives the machine into EStopped regardless of inputs. The
// control loop uses it when the hardware link is considered lost.
func (m *StateMachine) ForceEStop(cause string) {
	if m.mode == ModeEStopped {
		return
	}
	m.transition(ModeEStopped, cause)
}

// nextMode implements the mode-switch cycle
// Idle -> Standing -> TeleopWalk -> PolicyWalk -> Standing, skipping
// PolicyWalk when no policy is loaded.
func (m *StateMachine) nextMode() Mode {
	switch m.mode {
	case ModeIdle:
		return ModeStanding
	case ModeStanding:
		return ModeTeleopWalk
	case ModeTeleopWalk:
		if m.policy != nil && m.policy.Loaded() {
			return ModePolicyWalk
		}
		return ModeStanding
	case ModePolicyWalk:
		return ModeStanding
	default:
		return m.mode
	}
}

func (m *StateMachine) output(in StepInput) Command {
	var cmd Command
	switch m.mode {
	case ModeTeleopWalk:
		cmd = in.Teleop
	case ModePolicyWalk:
		out, err := m.policy.Evaluate(in.Telemetry)
		if err != nil {
			// Unreachable when the mode cycle is honored; degrade
			// to Standing rather than emit an undefined command.
			m.monitor.ConditionReported(CondPolicyUnavailable)
			m.transition(ModeStanding, "policy unavailable")
			cmd = Command{}
		} else {
			cmd = out
		}
	default:
		// Idle, Standing and EStopped all hold.
		cmd = Command{}
	}
	cmd.TargetMode = m.mode
	return cmd
}

func (m *StateMachine) transition(to Mode, cause string) {
	if to == m.mode {
		return
	}
	from := m.mode
	m.mode = to
	if m.logger != nil {
		m.logger.Infof("Mode transition %s -> %s (%s)", from, to, cause)
	}
	m.monitor.ModeChanged(from, to, cause)
}
