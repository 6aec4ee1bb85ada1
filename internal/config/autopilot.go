package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "AUTOPILOT_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "config/autopilot.yaml"

// Autopilot holds all configuration for the autopilot daemon.
type Autopilot struct {
	LogLevel string `yaml:"log_level"`

	// Cadence of the standalone privileged tick loop
	TickInterval time.Duration `yaml:"tick_interval"`

	Paths    PathsConfig    `yaml:"paths"`
	Follower FollowerConfig `yaml:"follower"`
	Recorder RecorderConfig `yaml:"recorder"`
	Archive  ArchiveConfig  `yaml:"archive"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sim      SimConfig      `yaml:"sim"`
}

// PathsConfig locates the path files.
type PathsConfig struct {
	Dir string `yaml:"dir"`
}

// FollowerConfig tunes the path follower.
type FollowerConfig struct {
	StepInterval  time.Duration `yaml:"step_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	ReachRadius   float64       `yaml:"reach_radius"`
}

// RecorderConfig tunes the path recorder.
type RecorderConfig struct {
	Interval time.Duration `yaml:"interval"`
	MinStep  float64       `yaml:"min_step"`
}

// ArchiveConfig selects the revision archive database. Empty driver disables it.
type ArchiveConfig struct {
	Driver string `yaml:"driver"` // sqlite | pgx
	DSN    string `yaml:"dsn"`
}

// Enabled reports whether an archive driver is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Driver != ""
}

// HTTPConfig holds the control API listener.
type HTTPConfig struct {
	BindAddress    string        `yaml:"bind_address"`
	Port           int           `yaml:"port"`
	StatusInterval time.Duration `yaml:"status_interval"` // websocket push period
}

// Addr returns host:port for net/http.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.BindAddress, h.Port)
}

// SimConfig parametrizes the simulated world oracle.
type SimConfig struct {
	AgentID  uint64  `yaml:"agent_id"`
	MoveStep float32 `yaml:"move_step"`
}

// Default returns Autopilot config with sensible defaults.
func Default() Autopilot {
	return Autopilot{
		LogLevel:     "info",
		TickInterval: 50 * time.Millisecond,
		Paths: PathsConfig{
			Dir: "paths",
		},
		Follower: FollowerConfig{
			StepInterval:  300 * time.Millisecond,
			RetryInterval: 100 * time.Millisecond,
			ReachRadius:   3.0,
		},
		Recorder: RecorderConfig{
			Interval: 500 * time.Millisecond,
			MinStep:  1.0,
		},
		Archive: ArchiveConfig{
			Driver: "sqlite",
			DSN:    "paths/archive.db",
		},
		HTTP: HTTPConfig{
			BindAddress:    "127.0.0.1",
			Port:           8089,
			StatusInterval: time.Second,
		},
		Sim: SimConfig{
			AgentID:  1,
			MoveStep: 2.5,
		},
	}
}

// Load loads config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Autopilot, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// PathFromEnv returns the config path from AUTOPILOT_CONFIG or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Validate rejects values the daemon cannot run with.
func (c Autopilot) Validate() error {
	switch {
	case c.TickInterval <= 0:
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	case c.Follower.StepInterval <= 0:
		return fmt.Errorf("follower.step_interval must be positive, got %s", c.Follower.StepInterval)
	case c.Follower.RetryInterval <= 0:
		return fmt.Errorf("follower.retry_interval must be positive, got %s", c.Follower.RetryInterval)
	case c.Follower.ReachRadius <= 0:
		return fmt.Errorf("follower.reach_radius must be positive, got %v", c.Follower.ReachRadius)
	case c.Recorder.Interval <= 0:
		return fmt.Errorf("recorder.interval must be positive, got %s", c.Recorder.Interval)
	case c.Recorder.MinStep < 0:
		return fmt.Errorf("recorder.min_step must not be negative, got %v", c.Recorder.MinStep)
	case c.HTTP.StatusInterval <= 0:
		return fmt.Errorf("http.status_interval must be positive, got %s", c.HTTP.StatusInterval)
	}

	switch c.Archive.Driver {
	case "", "sqlite", "pgx":
	default:
		return fmt.Errorf("archive.driver must be sqlite, pgx or empty, got %q", c.Archive.Driver)
	}
	if c.Archive.Enabled() && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn is required when archive.driver is set")
	}
	return nil
}
