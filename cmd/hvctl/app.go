package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jbweber/hvctl/internal/config"
	"github.com/jbweber/hvctl/internal/inventory"
	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
	"github.com/jbweber/hvctl/internal/output"
	"github.com/jbweber/hvctl/internal/runner"
	"github.com/jbweber/hvctl/internal/telemetry"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	connect       string
	readOnly      bool
	configPath    string
	jobs          int
	failFast      bool
	idempotent    bool
	failIfNoMatch bool
	logLevel      string
	logFormat     string
	metricsFile   string
	trace         bool
	output        string
}

func (f *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.connect, "connect", "c", "", "libvirt connection URI (default $LIBVIRT_DEFAULT_URI or qemu:///system)")
	pf.BoolVar(&f.readOnly, "read-only", false, "open read-only connections and refuse every change")
	pf.StringVar(&f.configPath, "config", "", "config file (default $HVCTL_CONFIG or $XDG_CONFIG_HOME/hvctl/config.yaml)")
	pf.IntVarP(&f.jobs, "jobs", "j", 0, "parallel operations, 0 picks a default")
	pf.BoolVar(&f.failFast, "fail-fast", false, "stop at the first failure")
	pf.BoolVar(&f.idempotent, "idempotent", true, "treat objects already in the requested state as success")
	pf.BoolVar(&f.failIfNoMatch, "fail-if-no-match", false, "fail when a selection matches nothing")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&f.logFormat, "log-format", "", "log format: console, json")
	pf.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.BoolVar(&f.trace, "trace", false, "print trace spans to stderr")
	pf.StringVarP(&f.output, "output", "o", "table", "output format: table, yaml, json")
}

// apply copies the flags that were set on the command line over cfg.
func (f *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("connect") {
		cfg.URI = f.connect
	}
	if changed("read-only") {
		cfg.ReadOnly = f.readOnly
	}
	if changed("jobs") {
		cfg.Jobs = f.jobs
	}
	if changed("fail-fast") {
		cfg.FailFast = f.failFast
	}
	if changed("idempotent") {
		cfg.Idempotent = f.idempotent
	}
	if changed("fail-if-no-match") {
		cfg.FailIfNoMatch = f.failIfNoMatch
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("metrics-file") {
		cfg.Metrics.Textfile = f.metricsFile
	}
	if changed("trace") {
		cfg.Tracing.Exporter = "none"
		if f.trace {
			cfg.Tracing.Exporter = "stdout"
		}
	}
}

// hypervisor is a started connection source.
type hypervisor struct {
	runner.Connector
	info hvlibvirt.ServerInfo
}

// app is the state shared by every command of one invocation.
type app struct {
	stdout, stderr io.Writer
	flags          globalFlags

	cfg     *config.Config
	log     zerolog.Logger
	metrics *telemetry.Metrics
	format  output.Format

	hv      *hypervisor
	closers []func(context.Context) error

	// connect starts a hypervisor connection; tests replace it.
	connect func(ctx context.Context, cfg *config.Config) (*hypervisor, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		connect: connectLibvirt,
	}
}

func connectLibvirt(ctx context.Context, cfg *config.Config) (*hypervisor, error) {
	desc, err := cfg.Descriptor()
	if err != nil {
		return nil, err
	}
	c := hvlibvirt.NewConnector(desc)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", desc, err)
	}
	return &hypervisor{Connector: runner.LibvirtConnector(c), info: c.Info()}, nil
}

// setup loads configuration and the ambient stack. It runs before every
// command.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	a.flags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := output.ValidateFormat(a.flags.output); err != nil {
		return err
	}
	a.cfg = cfg
	a.format = output.Format(a.flags.output)

	a.log, err = telemetry.NewLogger(telemetry.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: a.stderr,
	})
	if err != nil {
		return err
	}
	ctx := a.log.WithContext(cmd.Context())

	shutdown, err := telemetry.SetupTracing(cfg.Tracing.Exporter, a.stderr)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	if cfg.Metrics.Textfile != "" {
		a.metrics = telemetry.NewMetrics()
		path := cfg.Metrics.Textfile
		a.closers = append(a.closers, func(context.Context) error {
			return a.metrics.WriteTextfile(path)
		})
	}

	cmd.SetContext(ctx)
	return nil
}

// close flushes traces and metrics. It runs after the command, whether it
// failed or not.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// conn starts the hypervisor connection on first use.
func (a *app) conn(ctx context.Context) (*hypervisor, error) {
	if a.hv != nil {
		return a.hv, nil
	}
	hv, err := a.connect(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.hv = hv
	return hv, nil
}

// withLister runs fn with a read view of the hypervisor on a short-lived
// session.
func (a *app) withLister(ctx context.Context, fn func(inventory.Lister) error) error {
	hv, err := a.conn(ctx)
	if err != nil {
		return err
	}
	s, err := hv.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("failed to close session")
		}
	}()

	l, ok := s.Backend().(inventory.Lister)
	if !ok {
		return fmt.Errorf("backend %T cannot enumerate objects", s.Backend())
	}
	return fn(l)
}

func (a *app) formatter() output.Formatter {
	f, err := output.NewFormatter(output.Options{Format: a.format})
	if err != nil {
		// setup validated the format
		return &output.TableFormatter{}
	}
	return f
}

func (a *app) print(s string, err error) error {
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, s)
	return err
}
