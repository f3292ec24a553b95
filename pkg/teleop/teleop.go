// Package teleop converts raw joystick samples into actuator commands and
// edge-triggered control signals. Device polling itself is external: any
// producer (a native joystick reader, the operator websocket) pushes raw
// samples and the control loop pulls one translated frame per tick.
package teleop

import (
	"time"

	"github.com/open-quad/controller/pkg/config"
	"github.com/open-quad/controller/pkg/control"
)

// RawSample is one polled frame of the input device: axis values as read
// from the driver and the pressed state of every button.
type RawSample struct {
	Axes    []float64
	Buttons []bool
	Time    time.Time
}

// Translator maps raw axis/button state onto a command per the configured
// axis indices and scale factors, and derives signal pulses from button
// rising edges. It keeps the previous button state so a held button fires
// exactly once.
type Translator struct {
	cfg  config.TeleopConfig
	prev []bool
}

// NewTranslator creates a translator for the given mapping.
func NewTranslator(cfg config.TeleopConfig) *Translator {
	return &Translator{cfg: cfg}
}

// Translate converts a raw sample into a command and the signals that fired
// since the previous call. Axis values are clamped to [-1, 1] and snapped to
// zero inside the deadzone before scaling, so output magnitude never exceeds
// the configured scale.
func (t *Translator) Translate(s RawSample) (control.Command, control.Signals) {
	cmd := control.Command{
		LinearX:  t.axis(s, t.cfg.AxisLinearX) * t.cfg.ScaleLinear,
		LinearY:  t.axis(s, t.cfg.AxisLinearY) * t.cfg.ScaleLinear,
		LinearZ:  t.axis(s, t.cfg.AxisLinearZ) * t.cfg.ScaleLinear,
		AngularZ: t.axis(s, t.cfg.AxisAngular) * t.cfg.ScaleAngular,
	}

	sig := control.Signals{
		ModeSwitch: t.risingEdge(s, t.cfg.ButtonSwitch),
		EStop:      t.risingEdge(s, t.cfg.ButtonEStop),
		EStopClear: t.risingEdge(s, t.cfg.ButtonEStopClear),
	}

	t.rememberButtons(s.Buttons)
	return cmd, sig
}

func (t *Translator) axis(s RawSample, idx int) float64 {
	if idx < 0 || idx >= len(s.Axes) {
		return 0
	}
	v := s.Axes[idx]
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < t.cfg.JoystickDeadzone && v > -t.cfg.JoystickDeadzone {
		return 0
	}
	return v
}

// risingEdge reports whether the button transitioned released -> pressed
// since the previous sample.
func (t *Translator) risingEdge(s RawSample, idx int) bool {
	if idx < 0 || idx >= len(s.Buttons) {
		return false
	}
	pressed := s.Buttons[idx]
	wasPressed := idx < len(t.prev) && t.prev[idx]
	return pressed && !wasPressed
}

func (t *Translator) rememberButtons(buttons []bool) {
	if cap(t.prev) < len(buttons) {
		t.prev = make([]bool, len(buttons))
	}
	t.prev = t.prev[:len(buttons)]
	copy(t.prev, buttons)
}

// Adapter owns the latest-value input slot and the translator. Producers
// call Push from their own goroutines; the control loop calls Tick once per
// period on the control goroutine.
type Adapter struct {
	slot       control.Slot[RawSample]
	translator *Translator
}

// NewAdapter creates an adapter for the given teleop mapping.
func NewAdapter(cfg config.TeleopConfig) *Adapter {
	return &Adapter{translator: NewTranslator(cfg)}
}

// Push stores a raw sample, overwriting any unconsumed one. Samples arriving
// faster than the tick rate are collapsed to the latest; that is intentional.
func (a *Adapter) Push(s RawSample) {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	a.slot.Put(s)
}

// Tick translates the freshest sample into the frame for this control
// period. With no new sample since the last tick the previous button state
// matches the sample, so no spurious pulses fire and the last command is
// naturally held.
func (a *Adapter) Tick(now time.Time) control.TeleopFrame {
	s, ok := a.slot.Latest()
	if !ok {
		return control.TeleopFrame{}
	}
	cmd, sig := a.translator.Translate(s)
	return control.TeleopFrame{
		Command:    cmd,
		Signals:    sig,
		SampleTime: s.Time,
		Seen:       true,
	}
}
