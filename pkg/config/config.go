package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values applied when the robot config leaves them unset.
// The launch descriptor historically never pinned these, so they are fixed
// here and can be overridden per robot.
const (
	DefaultSerialBaud           = 115200
	DefaultTelemetryStalenessMs = 500
	DefaultTeleopTimeoutMs      = 500
	DefaultLinkFailureThreshold = 3
	DefaultPublishQueueSize     = 256
)

// Config is the immutable start-up snapshot for the controller. It is loaded
// once in main and never mutated afterwards; changing the policy selection or
// the serial endpoint requires a restart.
type Config struct {
	RobotID     string        `yaml:"robot_id" json:"robot_id"`
	FrequencyHz float64       `yaml:"frequency_hz" json:"frequency_hz"`
	Teleop      TeleopConfig  `yaml:"teleop" json:"teleop"`
	Policy      PolicyConfig  `yaml:"policy" json:"policy"`
	Serial      SerialConfig  `yaml:"serial" json:"serial"`
	Safety      SafetyConfig  `yaml:"safety" json:"safety"`
	Logging     LoggingConfig `yaml:"logging" json:"logging"`
	Server      ServerConfig  `yaml:"server" json:"server"`
	ZeroMQ      ZeroMQConfig  `yaml:"zeromq" json:"zeromq"`
}

// TeleopConfig maps joystick axes and buttons onto the command fields.
type TeleopConfig struct {
	JoystickDevice   string  `yaml:"joystick_device" json:"joystick_device"`
	JoystickDeadzone float64 `yaml:"joystick_deadzone" json:"joystick_deadzone"`
	AxisLinearX      int     `yaml:"axis_linear_x" json:"axis_linear_x"`
	AxisLinearY      int     `yaml:"axis_linear_y" json:"axis_linear_y"`
	AxisLinearZ      int     `yaml:"axis_linear_z" json:"axis_linear_z"`
	AxisAngular      int     `yaml:"axis_angular" json:"axis_angular"`
	ScaleLinear      float64 `yaml:"scale_linear" json:"scale_linear"`
	ScaleAngular     float64 `yaml:"scale_angular" json:"scale_angular"`
	ButtonSwitch     int     `yaml:"button_switch" json:"button_switch"`
	ButtonEStop      int     `yaml:"button_estop" json:"button_estop"`
	ButtonEStopClear int     `yaml:"button_estop_clear" json:"button_estop_clear"`
}

// PolicyConfig selects the locomotion policy bundle. AgentNum 0 means no
// policy: the robot stays teleop-only.
type PolicyConfig struct {
	AgentNum  int    `yaml:"agent_num" json:"agent_num"`
	BundleDir string `yaml:"bundle_dir" json:"bundle_dir"`
}

// SerialConfig names the microcontroller endpoint.
type SerialConfig struct {
	Port string `yaml:"serial_port" json:"serial_port"`
	Baud int    `yaml:"serial_baud" json:"serial_baud"`
}

// SafetyConfig holds the fail-safe tuning knobs of the control loop.
type SafetyConfig struct {
	TelemetryStalenessMs int `yaml:"telemetry_staleness_ms" json:"telemetry_staleness_ms"`
	TeleopTimeoutMs      int `yaml:"teleop_timeout_ms" json:"teleop_timeout_ms"`
	LinkFailureThreshold int `yaml:"link_failure_threshold" json:"link_failure_threshold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	LogPath string `yaml:"log_path,omitempty" json:"log_path,omitempty"`
}

// ServerConfig holds the HTTP status server settings.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" json:"http_port"`
}

// ZeroMQConfig holds the offboard monitoring endpoints. Empty addresses
// disable the corresponding socket.
type ZeroMQConfig struct {
	PublishBindAddress string `yaml:"publish_bind_address" json:"publish_bind_address"`
	RequestBindAddress string `yaml:"request_bind_address" json:"request_bind_address"`
	PublishQueueSize   int    `yaml:"publish_queue_size" json:"publish_queue_size"`
}

// Load reads and validates the controller configuration. Any validation
// failure is fatal at start-up; the caller must not start the control loop
// with a partially valid snapshot.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file '%s': %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Period returns the control tick period derived from frequency_hz.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.FrequencyHz)
}

// StalenessBound returns the maximum telemetry age trusted in policy mode.
func (s SafetyConfig) StalenessBound() time.Duration {
	return time.Duration(s.TelemetryStalenessMs) * time.Millisecond
}

// TeleopTimeout returns the age after which a teleop sample is treated as
// neutral input.
func (s SafetyConfig) TeleopTimeout() time.Duration {
	return time.Duration(s.TeleopTimeoutMs) * time.Millisecond
}

func (c *Config) applyDefaults() {
	if c.Serial.Baud == 0 {
		c.Serial.Baud = DefaultSerialBaud
	}
	if c.Safety.TelemetryStalenessMs == 0 {
		c.Safety.TelemetryStalenessMs = DefaultTelemetryStalenessMs
	}
	if c.Safety.TeleopTimeoutMs == 0 {
		c.Safety.TeleopTimeoutMs = DefaultTeleopTimeoutMs
	}
	if c.Safety.LinkFailureThreshold == 0 {
		c.Safety.LinkFailureThreshold = DefaultLinkFailureThreshold
	}
	if c.ZeroMQ.PublishQueueSize == 0 {
		c.ZeroMQ.PublishQueueSize = DefaultPublishQueueSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("invalid config: frequency_hz must be > 0, got %v", c.FrequencyHz)
	}
	if c.Serial.Port == "" {
		return fmt.Errorf("missing required config field: serial.serial_port")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid config: serial.serial_baud must be > 0, got %d", c.Serial.Baud)
	}
	if c.Teleop.JoystickDeadzone < 0 || c.Teleop.JoystickDeadzone >= 1 {
		return fmt.Errorf("invalid config: teleop.joystick_deadzone must be in [0,1), got %v", c.Teleop.JoystickDeadzone)
	}
	if c.Teleop.ScaleLinear < 0 || c.Teleop.ScaleAngular < 0 {
		return fmt.Errorf("invalid config: teleop scale factors must be >= 0")
	}
	if c.Policy.AgentNum < 0 {
		return fmt.Errorf("invalid config: policy.agent_num must be >= 0, got %d", c.Policy.AgentNum)
	}
	if c.Policy.AgentNum > 0 && c.Policy.BundleDir == "" {
		return fmt.Errorf("missing required config field: policy.bundle_dir (required when agent_num > 0)")
	}
	if c.Safety.LinkFailureThreshold < 1 {
		return fmt.Errorf("invalid config: safety.link_failure_threshold must be >= 1, got %d", c.Safety.LinkFailureThreshold)
	}
	return nil
}
