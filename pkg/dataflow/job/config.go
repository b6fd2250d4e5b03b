package job

import (
	"errors"
	"flag"
)

// Config holds settings shared by every task of a job.
type Config struct {
	// OutboxCapacity bounds the number of chunks a transformation may emit in
	// a single cycle. Emitting is refused once the outbox is full, which
	// keeps the output buffered by a task bounded while consumers apply
	// backpressure.
	OutboxCapacity int `yaml:"outbox_capacity"`
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.OutboxCapacity, prefix+"outbox-capacity", 1024, "Maximum number of chunks a transformation may emit per task cycle.")
}

// RegisterFlags registers flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("job.", f)
}

// Validate validates the Config.
func (cfg *Config) Validate() error {
	if cfg.OutboxCapacity <= 0 {
		return errors.New("OutboxCapacity must be greater than 0")
	}
	return nil
}
