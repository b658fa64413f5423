package config

import (
	"fmt"
	"strings"
	"time"

	"delaykit/internal/services/timer"
	"delaykit/internal/services/workpool"
	"delaykit/pkg/logx"
)

// Config is the on-disk configuration for delayd.
//
// All durations are Go duration strings (e.g. "100ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Timer    TimerConfig    `json:"timer"`
	Workpool WorkpoolConfig `json:"workpool"`
	Stats    StatsConfig    `json:"stats,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`

	// WarnRatePerSec caps warn/error log volume. 0 = uncapped.
	WarnRatePerSec int `json:"warn_rate_per_sec,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TimerConfig is fixed at service construction; changing it requires a
// restart (the wheel's geometry cannot change while it is running).
//
// Defaults (when fields are omitted/zero):
//   - tick_duration: "100ms"
//   - ticks_per_wheel: 1024
type TimerConfig struct {
	TickDuration  string `json:"tick_duration,omitempty"`
	TicksPerWheel int    `json:"ticks_per_wheel,omitempty"`
}

type WorkpoolConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// StatsConfig controls the optional periodic snapshot log line.
type StatsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Spec    string `json:"spec,omitempty"` // cron spec, default "@every 1m"
}

// ---- Mapping to service configs ----

func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
		WarnRatePerSec: c.Logging.WarnRatePerSec,
	}
}

func (c *Config) TimerConfig() (timer.Config, error) {
	tick, err := parseDuration("timer.tick_duration", c.Timer.TickDuration)
	if err != nil {
		return timer.Config{}, err
	}
	if c.Timer.TicksPerWheel < 0 {
		return timer.Config{}, fmt.Errorf("timer.ticks_per_wheel: must be >= 1")
	}
	return timer.Config{
		TickDuration: tick,
		WheelSize:    c.Timer.TicksPerWheel,
	}, nil
}

func (c *Config) WorkpoolConfig() workpool.Config {
	return workpool.Config{
		Workers:   c.Workpool.Workers,
		QueueSize: c.Workpool.QueueSize,
	}
}

// Validate rejects configs the services would refuse at construction time, so
// a hot reload never commits a config that cannot be applied.
func (c *Config) Validate() error {
	if _, err := c.TimerConfig(); err != nil {
		return err
	}
	if c.Workpool.Workers < 0 {
		return fmt.Errorf("workpool.workers: must be >= 0")
	}
	if c.Workpool.QueueSize < 0 {
		return fmt.Errorf("workpool.queue_size: must be >= 0")
	}
	return nil
}

// parseDuration reads a duration-string config field. Empty means "omitted"
// and maps to zero so the owning service applies its own default; negatives
// are a config error here rather than a construction failure later.
func parseDuration(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// StatsSpec returns the stats heartbeat spec with its default applied.
func (c *Config) StatsSpec() string {
	if c.Stats.Spec == "" {
		return "@every 1m"
	}
	return c.Stats.Spec
}
