// Package diagnostic aggregates supervisory statistics from the control
// loop and serves them to the HTTP status API. It is a passive observer:
// the control loop pushes events, readers take snapshots.
package diagnostic

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-quad/controller/pkg/control"
)

// LoopStats is a snapshot of controller health for the status API.
type LoopStats struct {
	Timestamp      time.Time            `json:"timestamp"`
	SessionID      string               `json:"session_id"`
	RobotID        string               `json:"robot_id"`
	Mode           string               `json:"mode"`
	Ticks          uint64               `json:"ticks"`
	Overruns       uint64               `json:"overruns"`
	ModeChanges    uint64               `json:"mode_changes"`
	LastTransition string               `json:"last_transition,omitempty"`
	Conditions     map[string]uint64    `json:"conditions"`
}

// DiagnosticService collects control loop events. It implements
// control.Monitor; all methods are cheap and never block the tick.
type DiagnosticService struct {
	mu             sync.RWMutex
	sessionID      string
	robotID        string
	mode           control.Mode
	ticks          uint64
	overruns       uint64
	modeChanges    uint64
	lastTransition string
	conditions     map[control.Condition]uint64
}

var _ control.Monitor = (*DiagnosticService)(nil)

// NewDiagnosticService creates a diagnostic service for one controller
// session.
func NewDiagnosticService(sessionID, robotID string) *DiagnosticService {
	return &DiagnosticService{
		sessionID:  sessionID,
		robotID:    robotID,
		mode:       control.ModeIdle,
		conditions: make(map[control.Condition]uint64),
	}
}

// ModeChanged implements control.Monitor.
func (s *DiagnosticService) ModeChanged(from, to control.Mode, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = to
	s.modeChanges++
	s.lastTransition = from.String() + " -> " + to.String() + " (" + cause + ")"
}

// ConditionReported implements control.Monitor.
func (s *DiagnosticService) ConditionReported(c control.Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditions[c]++
}

// TickCompleted implements control.Monitor.
func (s *DiagnosticService) TickCompleted(mode control.Mode, overrun bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.ticks++
	if overrun {
		s.overruns++
	}
}

// Snapshot returns a copy of the current statistics.
func (s *DiagnosticService) Snapshot() LoopStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conditions := make(map[string]uint64, len(s.conditions))
	for c, n := range s.conditions {
		conditions[string(c)] = n
	}
	return LoopStats{
		Timestamp:      time.Now(),
		SessionID:      s.sessionID,
		RobotID:        s.robotID,
		Mode:           s.mode.String(),
		Ticks:          s.ticks,
		Overruns:       s.overruns,
		ModeChanges:    s.modeChanges,
		LastTransition: s.lastTransition,
		Conditions:     conditions,
	}
}

// Mode returns the mode as last observed by the monitor.
func (s *DiagnosticService) Mode() control.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// GetStatusHandler handles API requests for the loop statistics.
func (s *DiagnosticService) GetStatusHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "success",
		"stats":  s.Snapshot(),
	})
}
