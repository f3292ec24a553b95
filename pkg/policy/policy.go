// Package policy wraps a pre-trained locomotion policy bundle behind the
// control.PolicySource contract. A bundle is selected by agent number at
// start-up; agent 0 means no policy and the robot stays teleop-only.
package policy

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/open-quad/controller/pkg/config"
	"github.com/open-quad/controller/pkg/control"
	customlog "github.com/open-quad/controller/pkg/log"
)

// ErrPolicyUnavailable is returned by Evaluate when no policy bundle is
// loaded. The state machine never enters PolicyWalk in that case, so in
// normal operation this error is never observed.
var ErrPolicyUnavailable = errors.New("no locomotion policy loaded")

// Handle identifies a loaded policy bundle. The zero Handle means no policy.
type Handle struct {
	agent int
}

// ForAgent returns the handle for a positive agent number; any other value
// yields the absent handle.
func ForAgent(n int) Handle {
	if n <= 0 {
		return Handle{}
	}
	return Handle{agent: n}
}

// Loaded reports whether the handle denotes a loaded policy.
func (h Handle) Loaded() bool {
	return h.agent > 0
}

// Agent returns the agent number, 0 when absent.
func (h Handle) Agent() int {
	return h.agent
}

func (h Handle) String() string {
	if !h.Loaded() {
		return "none"
	}
	return fmt.Sprintf("agent_%d", h.agent)
}

// Bundle is the gait parameter set of one trained agent, stored as
// agent_<n>.yaml in the bundle directory.
type Bundle struct {
	Agent           int     `yaml:"agent"`
	ForwardVelocity float64 `yaml:"forward_velocity"`
	LateralVelocity float64 `yaml:"lateral_velocity"`
	YawRate         float64 `yaml:"yaw_rate"`
	// MaxLeanDeg is the roll/pitch magnitude at which the policy output
	// is fully damped to a hold.
	MaxLeanDeg float64 `yaml:"max_lean_deg"`
}

// Source evaluates the loaded bundle against robot telemetry. It is
// immutable after Load; re-selecting an agent requires a restart.
type Source struct {
	handle Handle
	bundle Bundle
	logger customlog.Logger
}

var _ control.PolicySource = (*Source)(nil)

// None returns an unloaded source.
func None(logger customlog.Logger) *Source {
	return &Source{logger: logger}
}

// Load resolves the configured agent number to a bundle. A zero agent number
// yields an unloaded source with no error. A positive agent number whose
// bundle cannot be read yields an unloaded source and the load error: the
// caller logs it and continues teleop-only, never fatally.
func Load(cfg config.PolicyConfig, logger customlog.Logger) (*Source, error) {
	if cfg.AgentNum == 0 {
		return None(logger), nil
	}

	path := filepath.Join(cfg.BundleDir, fmt.Sprintf("agent_%d.yaml", cfg.AgentNum))
	data, err := os.ReadFile(path)
	if err != nil {
		return None(logger), fmt.Errorf("error reading policy bundle '%s': %w", path, err)
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return None(logger), fmt.Errorf("error parsing policy bundle '%s': %w", path, err)
	}
	if b.Agent != 0 && b.Agent != cfg.AgentNum {
		return None(logger), fmt.Errorf("policy bundle '%s' declares agent %d, want %d", path, b.Agent, cfg.AgentNum)
	}
	if b.MaxLeanDeg <= 0 {
		b.MaxLeanDeg = 30
	}

	logger.Infof("Loaded policy bundle %s (forward=%.2f yaw=%.2f)", path, b.ForwardVelocity, b.YawRate)
	return &Source{handle: ForAgent(cfg.AgentNum), bundle: b, logger: logger}, nil
}

// Handle returns the policy handle held by this source.
func (s *Source) Handle() Handle {
	return s.handle
}

// Loaded implements control.PolicySource.
func (s *Source) Loaded() bool {
	return s.handle.Loaded()
}

// Evaluate produces the candidate command for the current telemetry. The
// bundle velocities are damped linearly as the body lean approaches the
// bundle's limit, reaching a full hold at the limit.
func (s *Source) Evaluate(t control.Telemetry) (control.Command, error) {
	if !s.handle.Loaded() {
		return control.Command{}, ErrPolicyUnavailable
	}

	damp := s.leanDamping(t.Roll, t.Pitch)
	return control.Command{
		LinearX:  s.bundle.ForwardVelocity * damp,
		LinearY:  s.bundle.LateralVelocity * damp,
		AngularZ: s.bundle.YawRate * damp,
	}, nil
}

// leanDamping maps the larger of |roll|, |pitch| (radians) onto [0, 1],
// 1 when level and 0 at MaxLeanDeg.
func (s *Source) leanDamping(roll, pitch float64) float64 {
	lean := math.Max(math.Abs(roll), math.Abs(pitch)) * 180 / math.Pi
	if lean >= s.bundle.MaxLeanDeg {
		return 0
	}
	return 1 - lean/s.bundle.MaxLeanDeg
}
