package control

import "time"

// Command is the fixed-shape actuator command handed to the hardware link.
// Exactly one command is emitted per control tick; the zero value is the
// safe hold command (zero velocity).
type Command struct {
	LinearX    float64 `json:"linear_x"`
	LinearY    float64 `json:"linear_y"`
	LinearZ    float64 `json:"linear_z"`
	AngularZ   float64 `json:"angular_z"`
	TargetMode Mode    `json:"target_mode"`
}

// IsZeroVelocity reports whether the command holds all velocities at zero.
func (c Command) IsZeroVelocity() bool {
	return c.LinearX == 0 && c.LinearY == 0 && c.LinearZ == 0 && c.AngularZ == 0
}

// Hold returns the zero-velocity command for the given mode.
func Hold(mode Mode) Command {
	return Command{TargetMode: mode}
}

// NumJoints is the actuator count of the quadruped: three servos per leg.
const NumJoints = 12

// Telemetry is the most recent state frame received from the
// microcontroller. It is an ephemeral latest-wins snapshot; only the newest
// frame is ever retained.
type Telemetry struct {
	JointAngles    [NumJoints]float64 `json:"joint_angles"`
	Roll           float64            `json:"roll"`
	Pitch          float64            `json:"pitch"`
	Yaw            float64            `json:"yaw"`
	BatteryVoltage float64            `json:"battery_voltage"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Age returns how old the telemetry snapshot is relative to now.
func (t Telemetry) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}

// PolicySource produces candidate actuator commands from robot state. The
// zero-value "no policy loaded" state must report Loaded() == false; the
// state machine never routes through an unloaded policy.
type PolicySource interface {
	Loaded() bool
	Evaluate(t Telemetry) (Command, error)
}

// Link is the hardware link contract consumed by the control loop. Send
// transmits one command; Receive is a non-blocking latest-wins poll.
type Link interface {
	Send(cmd Command) error
	Receive() (Telemetry, bool)
}

// TeleopFrame is the per-tick teleop reading: the freshest translated
// command, the signal pulses since the previous tick, and the time the
// underlying sample was produced.
type TeleopFrame struct {
	Command    Command
	Signals    Signals
	SampleTime time.Time
	Seen       bool
}

// TeleopInput supplies the teleop frame for a tick. Tick is called exactly
// once per control period, on the control goroutine.
type TeleopInput interface {
	Tick(now time.Time) TeleopFrame
}

// Monitor receives supervisory events. Implementations must not block; the
// control loop calls these inline on every tick.
type Monitor interface {
	ModeChanged(from, to Mode, cause string)
	ConditionReported(c Condition)
	TickCompleted(mode Mode, overrun bool)
}

// NopMonitor discards all events.
type NopMonitor struct{}

func (NopMonitor) ModeChanged(from, to Mode, cause string) {}
func (NopMonitor) ConditionReported(c Condition)           {}
func (NopMonitor) TickCompleted(mode Mode, overrun bool)   {}

// MultiMonitor fans events out to several monitors.
type MultiMonitor []Monitor

func (m MultiMonitor) ModeChanged(from, to Mode, cause string) {
	for _, mon := range m {
		mon.ModeChanged(from, to, cause)
	}
}

func (m MultiMonitor) ConditionReported(c Condition) {
	for _, mon := range m {
		mon.ConditionReported(c)
	}
}

func (m MultiMonitor) TickCompleted(mode Mode, overrun bool) {
	for _, mon := range m {
		mon.TickCompleted(mode, overrun)
	}
}
