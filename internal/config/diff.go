package config

import (
	"strings"

	"delaykit/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus structured
// attrs for logging the reload. The timer section is called out separately
// because it cannot be applied without a restart.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", strings.TrimSpace(newCfg.Logging.Level)),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Timer != newCfg.Timer {
		changed = append(changed, "timer")
		attrs = append(attrs,
			logx.String("timer.tick_duration", strings.TrimSpace(newCfg.Timer.TickDuration)),
			logx.Int("timer.ticks_per_wheel", newCfg.Timer.TicksPerWheel),
		)
	}

	if oldCfg.Workpool != newCfg.Workpool {
		changed = append(changed, "workpool")
		attrs = append(attrs,
			logx.Int("workpool.workers", newCfg.Workpool.Workers),
			logx.Int("workpool.queue_size", newCfg.Workpool.QueueSize),
		)
	}

	if oldCfg.Stats != newCfg.Stats {
		changed = append(changed, "stats")
		attrs = append(attrs,
			logx.Bool("stats.enabled", newCfg.Stats.Enabled),
			logx.String("stats.spec", newCfg.StatsSpec()),
		)
	}

	return changed, attrs
}
