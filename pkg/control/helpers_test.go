package control

import "time"

// nopLogger satisfies the log interface without output noise in tests.
type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

// stubPolicy is a scriptable PolicySource.
type stubPolicy struct {
	loaded bool
	cmd    Command
	err    error
}

func (p stubPolicy) Loaded() bool { return p.loaded }

func (p stubPolicy) Evaluate(t Telemetry) (Command, error) { return p.cmd, p.err }

// recordingMonitor captures supervisory events for assertions.
type recordingMonitor struct {
	transitions []string
	conditions  []Condition
	ticks       int
	overruns    int
}

func (m *recordingMonitor) ModeChanged(from, to Mode, cause string) {
	m.transitions = append(m.transitions, from.String()+"->"+to.String())
}

func (m *recordingMonitor) ConditionReported(c Condition) {
	m.conditions = append(m.conditions, c)
}

func (m *recordingMonitor) TickCompleted(mode Mode, overrun bool) {
	m.ticks++
	if overrun {
		m.overruns++
	}
}

func (m *recordingMonitor) count(c Condition) int {
	n := 0
	for _, got := range m.conditions {
		if got == c {
			n++
		}
	}
	return n
}

// freshTelemetry returns a telemetry snapshot stamped at now.
func freshTelemetry(now time.Time) Telemetry {
	return Telemetry{Timestamp: now}
}
