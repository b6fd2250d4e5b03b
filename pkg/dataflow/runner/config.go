package runner

import (
	"errors"
	"flag"
	"time"
)

// Config configures a [Runner].
type Config struct {
	// Workers is the number of threads stepping tasks concurrently.
	Workers int `yaml:"workers"`

	// MinIdleBackoff and MaxIdleBackoff bound how long a thread waits after
	// a full sweep over the ready tasks made no progress.
	MinIdleBackoff time.Duration `yaml:"min_idle_backoff"`
	MaxIdleBackoff time.Duration `yaml:"max_idle_backoff"`
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.Workers, prefix+"workers", 4, "Number of threads stepping tasks concurrently.")
	f.DurationVar(&cfg.MinIdleBackoff, prefix+"min-idle-backoff", time.Millisecond, "Minimum time a thread waits when no task made progress.")
	f.DurationVar(&cfg.MaxIdleBackoff, prefix+"max-idle-backoff", 50*time.Millisecond, "Maximum time a thread waits when no task made progress.")
}

// RegisterFlags registers flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("runner.", f)
}

// Validate validates the Config.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Workers <= 0 {
		errs = append(errs, errors.New("Workers must be greater than 0"))
	}
	if cfg.MinIdleBackoff <= 0 {
		errs = append(errs, errors.New("MinIdleBackoff must be greater than 0"))
	}
	if cfg.MaxIdleBackoff < cfg.MinIdleBackoff {
		errs = append(errs, errors.New("MaxIdleBackoff must not be less than MinIdleBackoff"))
	}
	return errors.Join(errs...)
}
