package pipeline

import (
	"errors"
	"flag"
)

// Config configures how a plan is instantiated.
type Config struct {
	QueueCapacity int `yaml:"queue_capacity"`
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.QueueCapacity, prefix+"queue-capacity", 64, "Number of chunks buffered on every edge between two tasks.")
}

// RegisterFlags registers flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("pipeline.", f)
}

// Validate validates the Config.
func (cfg *Config) Validate() error {
	if cfg.QueueCapacity <= 0 {
		return errors.New("QueueCapacity must be greater than 0")
	}
	return nil
}
