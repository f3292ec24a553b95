package policy

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-quad/controller/pkg/config"
	"github.com/open-quad/controller/pkg/control"
)

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Fatalf(format string, args ...interface{}) {}

func writeBundle(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
}

func TestHandleForAgent(t *testing.T) {
	assert.False(t, ForAgent(0).Loaded())
	assert.False(t, ForAgent(-1).Loaded())
	assert.True(t, ForAgent(7).Loaded())
	assert.Equal(t, 7, ForAgent(7).Agent())
	assert.Equal(t, "none", ForAgent(0).String())
	assert.Equal(t, "agent_7", ForAgent(7).String())
}

func TestLoadAgentZeroIsUnloaded(t *testing.T) {
	src, err := Load(config.PolicyConfig{AgentNum: 0}, nopLogger{})
	require.NoError(t, err)
	assert.False(t, src.Loaded())

	_, err = src.Evaluate(control.Telemetry{})
	assert.ErrorIs(t, err, ErrPolicyUnavailable)
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "agent_3.yaml", `
agent: 3
forward_velocity: 0.5
lateral_velocity: 0.1
yaw_rate: 0.25
max_lean_deg: 20
`)

	src, err := Load(config.PolicyConfig{AgentNum: 3, BundleDir: dir}, nopLogger{})
	require.NoError(t, err)
	require.True(t, src.Loaded())
	assert.Equal(t, 3, src.Handle().Agent())

	cmd, err := src.Evaluate(control.Telemetry{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cmd.LinearX, 1e-9)
	assert.InDelta(t, 0.1, cmd.LinearY, 1e-9)
	assert.InDelta(t, 0.25, cmd.AngularZ, 1e-9)
}

func TestLoadMissingBundleDegrades(t *testing.T) {
	src, err := Load(config.PolicyConfig{AgentNum: 9, BundleDir: t.TempDir()}, nopLogger{})
	assert.Error(t, err)
	assert.False(t, src.Loaded())
}

func TestLoadAgentMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "agent_2.yaml", "agent: 5\nforward_velocity: 0.5\n")

	src, err := Load(config.PolicyConfig{AgentNum: 2, BundleDir: dir}, nopLogger{})
	assert.Error(t, err)
	assert.False(t, src.Loaded())
}

func TestLeanDampingScalesOutput(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "agent_1.yaml", `
agent: 1
forward_velocity: 1.0
max_lean_deg: 30
`)
	src, err := Load(config.PolicyConfig{AgentNum: 1, BundleDir: dir}, nopLogger{})
	require.NoError(t, err)

	// Level body: full output.
	cmd, err := src.Evaluate(control.Telemetry{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cmd.LinearX, 1e-9)

	// Half the lean limit: output halved.
	cmd, err = src.Evaluate(control.Telemetry{Roll: 15 * math.Pi / 180})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cmd.LinearX, 1e-6)

	// At or past the limit: full hold.
	cmd, err = src.Evaluate(control.Telemetry{Pitch: 45 * math.Pi / 180})
	require.NoError(t, err)
	assert.True(t, cmd.IsZeroVelocity())
}
