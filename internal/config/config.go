// Package config loads hvctl settings from a YAML or TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/hvctl/internal/batch"
	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
)

// Environment variables read by Load.
const (
	EnvConfig   = "HVCTL_CONFIG"
	EnvURI      = "HVCTL_URI"
	EnvJobs     = "HVCTL_JOBS"
	EnvLogLevel = "HVCTL_LOG_LEVEL"
)

// DefaultShutdownTimeout is how long a graceful shutdown is waited for.
const DefaultShutdownTimeout = 60 * time.Second

// Config is the complete hvctl configuration.
type Config struct {
	// URI is the libvirt connection URI. Empty means LIBVIRT_DEFAULT_URI,
	// then qemu:///system.
	URI      string        `yaml:"uri" toml:"uri"`
	Socket   string        `yaml:"socket" toml:"socket"`
	ReadOnly bool          `yaml:"read_only" toml:"read_only"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout" validate:"gte=0"`

	// Jobs is the worker pool size, 0 picks a default.
	Jobs            int           `yaml:"jobs" toml:"jobs" validate:"gte=0,lte=256"`
	FailFast        bool          `yaml:"fail_fast" toml:"fail_fast"`
	Idempotent      bool          `yaml:"idempotent" toml:"idempotent"`
	FailIfNoMatch   bool          `yaml:"fail_if_no_match" toml:"fail_if_no_match"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" validate:"gte=0"`

	Log     LogConfig     `yaml:"log" toml:"log"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=console json"`
}

// MetricsConfig controls metrics output.
type MetricsConfig struct {
	// Textfile is written in the node-exporter textfile format after
	// every command.
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Exporter string `yaml:"exporter" toml:"exporter" validate:"omitempty,oneof=none stdout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timeout:         hvlibvirt.DefaultTimeout,
		Idempotent:      true,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load reads path, or $HVCTL_CONFIG, or the user config file when
// present, then applies the environment and validates the result. With no
// file at all it returns the defaults with the environment applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	path, explicit := resolvePath(path)
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				path = ""
			} else {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolvePath picks the config file. explicit is false for the implicit
// per-user file, which may be missing.
func resolvePath(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, true
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "hvctl", "config.yaml"), false
}

// decodeFile decodes over the current values, so keys missing from the
// file keep their defaults.
func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse TOML %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvURI); v != "" {
		c.URI = v
	}
	if v := os.Getenv(EnvJobs); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvJobs, v, err)
		}
		c.Jobs = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their file keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fieldPath(fe), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// fieldPath turns "Config.log.level" into "log.level".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// Descriptor builds the connection descriptor.
func (c *Config) Descriptor() (hvlibvirt.Descriptor, error) {
	d, err := hvlibvirt.ParseDescriptor(c.URI)
	if err != nil {
		return hvlibvirt.Descriptor{}, err
	}
	if c.Socket != "" {
		if d.Remote() {
			return hvlibvirt.Descriptor{}, fmt.Errorf("socket %s cannot be used with remote URI %s", c.Socket, d.URI)
		}
		d.Socket = c.Socket
	}
	if c.Timeout > 0 {
		d.Timeout = c.Timeout
	}
	d.ReadOnly = c.ReadOnly
	return d, nil
}

// Policy returns the batch policy.
func (c *Config) Policy() batch.Policy {
	return batch.Policy{
		Jobs:          c.Jobs,
		FailFast:      c.FailFast,
		Idempotent:    c.Idempotent,
		FailIfNoMatch: c.FailIfNoMatch,
	}
}
