package zeromq

import (
	"github.com/open-quad/controller/pkg/control"
	customlog "github.com/open-quad/controller/pkg/log"
)

// Publish topics
const (
	TopicMode      = "robot.mode"
	TopicCondition = "robot.condition"
	TopicTelemetry = "robot.telemetry"
)

// StatePublisher pushes supervisory events onto the PUB socket. It
// implements control.Monitor; every call is a non-blocking enqueue.
type StatePublisher struct {
	service *Service
	logger  customlog.Logger
}

var _ control.Monitor = (*StatePublisher)(nil)

// NewStatePublisher creates a publisher on the given service.
func NewStatePublisher(service *Service, logger customlog.Logger) *StatePublisher {
	return &StatePublisher{service: service, logger: logger}
}

// ModeChanged implements control.Monitor.
func (p *StatePublisher) ModeChanged(from, to control.Mode, cause string) {
	err := p.service.PublishJSON(TopicMode, MsgTypeModeChange, map[string]interface{}{
		"from":  from.String(),
		"to":    to.String(),
		"cause": cause,
	})
	if err != nil {
		p.logger.Errorf("Failed to publish mode change: %v", err)
	}
}

// ConditionReported implements control.Monitor.
func (p *StatePublisher) ConditionReported(c control.Condition) {
	err := p.service.PublishJSON(TopicCondition, MsgTypeCondition, map[string]interface{}{
		"condition": string(c),
	})
	if err != nil {
		p.logger.Errorf("Failed to publish condition: %v", err)
	}
}

// TickCompleted implements control.Monitor. Per-tick events are not
// published; mode changes and conditions carry the interesting signal.
func (p *StatePublisher) TickCompleted(mode control.Mode, overrun bool) {}

// PublishTelemetry pushes one telemetry snapshot, used by the sampler in
// main at a rate far below the control frequency.
func (p *StatePublisher) PublishTelemetry(t control.Telemetry) {
	if err := p.service.PublishJSON(TopicTelemetry, MsgTypeTelemetry, t); err != nil {
		p.logger.Errorf("Failed to publish telemetry: %v", err)
	}
}
