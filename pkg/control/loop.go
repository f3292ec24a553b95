package control

import (
	"context"
	"time"

	customlog "github.com/open-quad/controller/pkg/log"
)

// LoopConfig holds the timing and fail-safe parameters of the control loop.
type LoopConfig struct {
	Period               time.Duration
	TeleopTimeout        time.Duration
	LinkFailureThreshold int
}

// Loop is the periodic driver of the state machine. A single goroutine owns
// the machine and all per-tick state; input producers only ever touch the
// latest-value slots behind the TeleopInput and Link interfaces, so no lock
// is held across a tick.
type Loop struct {
	cfg     LoopConfig
	machine *StateMachine
	link    Link
	teleop  TeleopInput
	monitor Monitor
	logger  customlog.Logger

	telemetry  Telemetry
	failures   int
	teleopLost bool
}

// NewLoop wires a control loop. The loop takes exclusive ownership of the
// link for sending.
func NewLoop(cfg LoopConfig, machine *StateMachine, link Link, teleop TeleopInput, monitor Monitor, logger customlog.Logger) *Loop {
	if monitor == nil {
		monitor = NopMonitor{}
	}
	return &Loop{
		cfg:     cfg,
		machine: machine,
		link:    link,
		teleop:  teleop,
		monitor: monitor,
		logger:  logger,
	}
}

// Run drives the loop until ctx is cancelled. On shutdown one final
// zero-velocity command is sent so the robot is left holding, then Run
// returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Infof("Control loop started, period %s (%.1f Hz)",
		l.cfg.Period, float64(time.Second)/float64(l.cfg.Period))

	// time.Ticker drops ticks for slow receivers, which is exactly the
	// no-backlog policy: an overrun tick is reported and the loop resumes
	// at the next boundary instead of queueing catch-up ticks.
	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			l.tick(now)
		}
	}
}

// tick executes one control period: poll inputs, advance the state machine,
// transmit the resulting command.
func (l *Loop) tick(now time.Time) {
	started := time.Now()

	if t, ok := l.link.Receive(); ok {
		l.telemetry = t
	}

	frame := l.teleop.Tick(now)
	var teleopCmd Command
	var signals Signals
	if frame.Seen {
		signals = frame.Signals
		if now.Sub(frame.SampleTime) > l.cfg.TeleopTimeout {
			// Operator input went silent: treat teleop as neutral
			// rather than running away on the last held command.
			if !l.teleopLost {
				l.teleopLost = true
				l.monitor.ConditionReported(CondTeleopTimeout)
				l.logger.Warnf("Teleop input silent for over %s, holding neutral", l.cfg.TeleopTimeout)
			}
		} else {
			l.teleopLost = false
			teleopCmd = frame.Command
		}
	}

	cmd := l.machine.Step(StepInput{
		Teleop:    teleopCmd,
		Signals:   signals,
		Telemetry: l.telemetry,
		Now:       now,
	})

	l.dispatch(cmd)

	overrun := time.Since(started) > l.cfg.Period
	if overrun {
		l.monitor.ConditionReported(CondTickOverrun)
		l.logger.Warnf("Tick overrun: processing took %s, period is %s", time.Since(started), l.cfg.Period)
	}
	l.monitor.TickCompleted(l.machine.Mode(), overrun)
}

// dispatch sends the command with a single retry. Consecutive failures past
// the threshold mean the hardware link cannot be trusted and the machine is
// forced into EStopped.
func (l *Loop) dispatch(cmd Command) {
	err := l.link.Send(cmd)
	if err != nil {
		err = l.link.Send(cmd)
	}
	if err == nil {
		l.failures = 0
		return
	}

	l.failures++
	l.monitor.ConditionReported(CondLinkFailure)
	l.logger.Errorf("Link send failed (%d consecutive): %v", l.failures, err)
	if l.failures >= l.cfg.LinkFailureThreshold {
		l.machine.ForceEStop("link failure threshold")
	}
}

func (l *Loop) shutdown() {
	// Leave the robot in a safe state: one last hold command before the
	// link is closed by the caller.
	if err := l.link.Send(Hold(l.machine.Mode())); err != nil {
		l.logger.Errorf("Failed to send final hold command: %v", err)
	}
	l.logger.Infof("Control loop stopped in mode %s", l.machine.Mode())
}
