package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/grafana/dskit/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v2"

	"github.com/grafana/dataflow/pkg/cfg"
	"github.com/grafana/dataflow/pkg/dataflow/job"
	"github.com/grafana/dataflow/pkg/dataflow/pipeline"
	"github.com/grafana/dataflow/pkg/dataflow/runner"
	"github.com/grafana/dataflow/pkg/dataflow/task"
	utillog "github.com/grafana/dataflow/pkg/util/log"
)

// Config is the root config of the dataflow binary.
type Config struct {
	ConfigFile  string `yaml:"-"`
	VerifyOnly  bool   `yaml:"-"`
	PrintConfig bool   `yaml:"-"`

	JobFile     string       `yaml:"job_file"`
	MetricsAddr string       `yaml:"metrics_addr"`
	LogLevel    dslog.Level  `yaml:"log_level"`
	LogFormat   dslog.Format `yaml:"log_format"`

	Job      job.Config      `yaml:"job"`
	Pipeline pipeline.Config `yaml:"pipeline"`
	Runner   runner.Config   `yaml:"runner"`
}

// RegisterFlags registers flags.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ConfigFile, "config.file", "", "YAML file to load configuration from.")
	f.BoolVar(&c.VerifyOnly, "verify-config", false, "Verify config file and job file, then exit.")
	f.BoolVar(&c.PrintConfig, "print-config-stderr", false, "Dump the resolved config to stderr.")

	f.StringVar(&c.JobFile, "job.file", "", "YAML file describing the job to run.")
	f.StringVar(&c.MetricsAddr, "metrics.addr", "", "Address to serve /metrics and /log_level on. Empty disables the endpoint.")
	c.LogLevel.RegisterFlags(f)
	c.LogFormat.RegisterFlags(f)

	c.Job.RegisterFlags(f)
	c.Pipeline.RegisterFlags(f)
	c.Runner.RegisterFlags(f)
}

// Validate validates the config.
func (c *Config) Validate() error {
	var errs []error
	if c.JobFile == "" {
		errs = append(errs, errors.New("-job.file is required"))
	}
	if err := c.Job.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid job config: %w", err))
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid pipeline config: %w", err))
	}
	if err := c.Runner.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid runner config: %w", err))
	}
	return errors.Join(errs...)
}

func main() {
	var config Config
	if err := cfg.Parse(&config, flag.CommandLine, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	logger := utillog.NewLogger(config.LogFormat, config.LogLevel, os.Stderr)

	if err := config.Validate(); err != nil {
		level.Error(logger).Log("msg", "validating config", "err", err.Error())
		os.Exit(1)
	}

	if config.PrintConfig {
		if out, err := yaml.Marshal(&config); err != nil {
			level.Error(logger).Log("msg", "failed to print config to stderr", "err", err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "---\n# Dataflow Config\n%s\n", out)
		}
	}

	spec, err := LoadJobSpec(config.JobFile)
	if err != nil {
		level.Error(logger).Log("msg", "loading job", "err", err.Error())
		os.Exit(1)
	}

	if config.VerifyOnly {
		level.Info(logger).Log("msg", "config is valid", "job", spec.Name)
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, config, spec, logger, os.Stdout); err != nil {
		level.Error(logger).Log("msg", "job failed", "job", spec.Name, "err", err)
		cancel()
		os.Exit(1)
	}
}

// run executes the job on a fresh runner and writes a report to out.
func run(ctx context.Context, config Config, spec *JobSpec, logger *utillog.Logger, out io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if config.MetricsAddr != "" {
		srv := serveMetrics(config.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	r, err := runner.New(config.Runner, logger, reg)
	if err != nil {
		return err
	}
	if err := services.StartAndAwaitRunning(ctx, r); err != nil {
		return fmt.Errorf("starting runner: %w", err)
	}
	defer func() {
		_ = services.StopAndAwaitTerminated(context.Background(), r)
	}()

	jobCtx := job.NewContext(job.Params{
		Name:   spec.Name,
		Config: config.Job,
		Logger: logger,
	})

	plan, results, err := spec.Plan(memory.DefaultAllocator)
	if err != nil {
		return err
	}

	processors, err := pipeline.Build(jobCtx, plan, task.NewFactory[arrow.RecordBatch](), config.Pipeline)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	tasks := make([]runner.Task, 0, len(processors))
	for _, p := range processors {
		tasks = append(tasks, p)
	}

	level.Info(logger).Log("msg", "starting job", "job", spec.Name, "job_id", jobCtx.ID(), "tasks", len(tasks))
	exec, err := r.Submit(ctx, tasks...)
	if err != nil {
		return err
	}

	// Canceling ctx cancels the execution, so waiting without a deadline
	// always returns.
	if err := exec.Wait(context.Background()); err != nil {
		return err
	}

	counters := jobCtx.Counters().Snapshot()
	level.Info(logger).Log(
		"msg", "job completed",
		"job", spec.Name,
		"duration", exec.Duration(),
		"cycles", counters.Cycles,
		"pulled", counters.Pulled,
		"pushed", counters.Pushed,
		"dropped", counters.Dropped,
		"backpressure", counters.Backpressure,
	)

	return results.Report(out)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *utillog.Logger) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.HandleFunc("/log_level", utillog.LevelHandler(logger)).Methods(http.MethodGet, http.MethodPost)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(log.With(logger, "addr", addr)).Log("msg", "metrics server failed", "err", err)
		}
	}()
	return srv
}
