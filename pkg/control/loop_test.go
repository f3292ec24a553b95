package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptLink records sends and fails on demand.
type scriptLink struct {
	failAll   bool
	failFirst int // fail this many initial Send calls, then succeed
	attempts  int
	sent      []Command
	telem     *Telemetry
}

func (l *scriptLink) Send(cmd Command) error {
	l.attempts++
	if l.failAll || l.attempts <= l.failFirst {
		return errors.New("write timeout")
	}
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *scriptLink) Receive() (Telemetry, bool) {
	if l.telem == nil {
		return Telemetry{}, false
	}
	return *l.telem, true
}

// stubTeleop returns a fixed frame each tick.
type stubTeleop struct {
	frame TeleopFrame
}

func (s stubTeleop) Tick(now time.Time) TeleopFrame { return s.frame }

func newTestLoop(lnk Link, input TeleopInput, mon Monitor, policy PolicySource) (*Loop, *StateMachine) {
	if mon == nil {
		mon = NopMonitor{}
	}
	machine := NewStateMachine(policy, 500*time.Millisecond, mon, nopLogger{})
	loop := NewLoop(LoopConfig{
		Period:               20 * time.Millisecond,
		TeleopTimeout:        500 * time.Millisecond,
		LinkFailureThreshold: 3,
	}, machine, lnk, input, mon, nopLogger{})
	return loop, machine
}

func TestLinkFailureThresholdForcesEStop(t *testing.T) {
	mon := &recordingMonitor{}
	lnk := &scriptLink{failAll: true}
	loop, machine := newTestLoop(lnk, stubTeleop{}, mon, nil)

	now := t0
	for i := 0; i < 5; i++ {
		loop.tick(now)
		now = now.Add(20 * time.Millisecond)
		if i == 1 {
			// Two failed ticks: not yet past the threshold.
			assert.NotEqual(t, ModeEStopped, machine.Mode())
		}
		if i == 2 {
			// Third consecutive failure trips the threshold.
			assert.Equal(t, ModeEStopped, machine.Mode())
		}
	}
	assert.Equal(t, ModeEStopped, machine.Mode())
	assert.Equal(t, 5, mon.count(CondLinkFailure))
}

func TestSendRetriedOncePerTick(t *testing.T) {
	mon := &recordingMonitor{}
	lnk := &scriptLink{failFirst: 1}
	loop, machine := newTestLoop(lnk, stubTeleop{}, mon, nil)

	loop.tick(t0)

	// First attempt failed, the single retry succeeded: no failure
	// recorded and exactly one command made it out.
	assert.Equal(t, 2, lnk.attempts)
	assert.Len(t, lnk.sent, 1)
	assert.Equal(t, 0, mon.count(CondLinkFailure))
	assert.NotEqual(t, ModeEStopped, machine.Mode())
}

func TestEStopIndependentOfButtonInput(t *testing.T) {
	// Even with the operator actively driving, a dead link must stop the
	// robot.
	lnk := &scriptLink{failAll: true}
	input := stubTeleop{frame: TeleopFrame{
		Command:    Command{LinearX: 0.6},
		SampleTime: t0,
		Seen:       true,
	}}
	loop, machine := newTestLoop(lnk, input, nil, nil)

	now := t0
	for i := 0; i < 3; i++ {
		loop.tick(now)
		now = now.Add(20 * time.Millisecond)
	}
	assert.Equal(t, ModeEStopped, machine.Mode())
}

func TestTeleopTimeoutNeutralizesInput(t *testing.T) {
	mon := &recordingMonitor{}
	lnk := &scriptLink{}
	input := stubTeleop{frame: TeleopFrame{
		Command:    Command{LinearX: 0.9},
		SampleTime: t0.Add(-time.Second),
		Seen:       true,
	}}
	loop, machine := newTestLoop(lnk, input, mon, nil)

	// Walk into TeleopWalk with fresh input first.
	machine.Step(StepInput{Signals: Signals{ModeSwitch: true}, Telemetry: freshTelemetry(t0), Now: t0})
	machine.Step(StepInput{Signals: Signals{ModeSwitch: true}, Telemetry: freshTelemetry(t0), Now: t0})
	require.Equal(t, ModeTeleopWalk, machine.Mode())

	now := t0
	for i := 0; i < 4; i++ {
		loop.tick(now)
		now = now.Add(20 * time.Millisecond)
	}

	// The stale sample must not drive the robot.
	for _, cmd := range lnk.sent {
		assert.True(t, cmd.IsZeroVelocity())
	}
	// Reported once at the transition into silence, not per tick.
	assert.Equal(t, 1, mon.count(CondTeleopTimeout))
}

func TestFreshTeleopPassesThrough(t *testing.T) {
	lnk := &scriptLink{}
	input := stubTeleop{frame: TeleopFrame{
		Command:    Command{LinearX: 0.3, AngularZ: -0.5},
		SampleTime: t0,
		Seen:       true,
	}}
	loop, machine := newTestLoop(lnk, input, nil, nil)
	machine.Step(StepInput{Signals: Signals{ModeSwitch: true}, Telemetry: freshTelemetry(t0), Now: t0})
	machine.Step(StepInput{Signals: Signals{ModeSwitch: true}, Telemetry: freshTelemetry(t0), Now: t0})
	require.Equal(t, ModeTeleopWalk, machine.Mode())

	loop.tick(t0.Add(time.Millisecond))

	require.Len(t, lnk.sent, 1)
	assert.Equal(t, 0.3, lnk.sent[0].LinearX)
	assert.Equal(t, -0.5, lnk.sent[0].AngularZ)
}

func TestStaleTelemetryFlowsThroughTick(t *testing.T) {
	mon := &recordingMonitor{}
	stale := Telemetry{Timestamp: t0.Add(-2 * time.Second)}
	lnk := &scriptLink{telem: &stale}
	loop, machine := newTestLoop(lnk, stubTeleop{}, mon, stubPolicy{loaded: true, cmd: Command{LinearX: 1}})

	for i := 0; i < 3; i++ {
		machine.Step(StepInput{Signals: Signals{ModeSwitch: true}, Telemetry: freshTelemetry(t0), Now: t0})
	}
	require.Equal(t, ModePolicyWalk, machine.Mode())

	loop.tick(t0)

	assert.Equal(t, ModeStanding, machine.Mode())
	assert.Equal(t, 1, mon.count(CondTelemetryStale))
	require.Len(t, lnk.sent, 1)
	assert.True(t, lnk.sent[0].IsZeroVelocity())
}

func TestExactlyOneCommandPerTick(t *testing.T) {
	lnk := &scriptLink{}
	loop, _ := newTestLoop(lnk, stubTeleop{}, nil, nil)

	for i := 0; i < 10; i++ {
		loop.tick(t0.Add(time.Duration(i) * 20 * time.Millisecond))
		assert.Len(t, lnk.sent, i+1)
	}
}

func TestTickOverrunReported(t *testing.T) {
	mon := &recordingMonitor{}
	lnk := &scriptLink{}
	machine := NewStateMachine(nil, 500*time.Millisecond, mon, nopLogger{})
	loop := NewLoop(LoopConfig{
		Period:               time.Nanosecond, // any processing overruns
		TeleopTimeout:        500 * time.Millisecond,
		LinkFailureThreshold: 3,
	}, machine, lnk, stubTeleop{}, mon, nopLogger{})

	loop.tick(t0)
	assert.GreaterOrEqual(t, mon.count(CondTickOverrun), 1)
	assert.Equal(t, 1, mon.overruns)
	assert.NotEqual(t, ModeEStopped, machine.Mode())
}

func TestShutdownSendsFinalHold(t *testing.T) {
	lnk := &scriptLink{}
	loop, _ := newTestLoop(lnk, stubTeleop{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := loop.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, lnk.sent)
	last := lnk.sent[len(lnk.sent)-1]
	assert.True(t, last.IsZeroVelocity())
}
