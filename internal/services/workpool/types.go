package workpool

// Config controls the worker pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
type Config struct {
	Workers   int
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	Executed uint64
	Dropped  uint64
}
