package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/aradilov/quorumlog"
)

// Config drives one simulation run.
type Config struct {
	// Quorum is the retention threshold and the maximum reader count.
	Quorum int `yaml:"quorum"`

	// Capacity is the number of slots in the ring.
	Capacity int `yaml:"capacity"`

	// Messages is the number of messages the writer produces.
	Messages int `yaml:"messages"`

	// Readers is the number of reader goroutines. Readers beyond the
	// quorum are refused by the log.
	Readers int `yaml:"readers"`

	// Policy is "overwrite" (default) or "backpressure".
	Policy string `yaml:"policy"`

	// Start is "oldest" (default) or "latest".
	Start string `yaml:"start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Timeout bounds the whole run.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig is the demo scenario: three readers, a
// hundred slots, ten messages.
func DefaultConfig() Config {
	return Config{
		Quorum:   3,
		Capacity: 100,
		Messages: 10,
		Readers:  3,
		Policy:   "overwrite",
		Start:    "oldest",
		LogLevel: "info",
		Timeout:  10 * time.Second,
	}
}

// LoadConfig reads a YAML file over the defaults. Keys absent from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Quorum <= 0 {
		errs = append(errs, fmt.Errorf("quorum must be > 0, got %d", c.Quorum))
	}
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be > 0, got %d", c.Capacity))
	}
	if c.Messages < 0 {
		errs = append(errs, fmt.Errorf("messages must be >= 0, got %d", c.Messages))
	}
	if c.Readers < 0 {
		errs = append(errs, fmt.Errorf("readers must be >= 0, got %d", c.Readers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0, got %s", c.Timeout))
	}
	if _, err := quorumlog.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := quorumlog.ParseStart(c.Start); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// Options converts the config into log options.
func (c Config) Options(logger *slog.Logger) []quorumlog.Option {
	policy, _ := quorumlog.ParsePolicy(c.Policy)
	start, _ := quorumlog.ParseStart(c.Start)
	return []quorumlog.Option{
		quorumlog.WithPolicy(policy),
		quorumlog.WithStart(start),
		quorumlog.WithSlog(logger.With("component", "quorumlog")),
	}
}

// flagValues holds flag destinations; only flags the user set override the
// config file.
type flagValues struct {
	configPath string
	cfg        Config
}

func (f *flagValues) register(flagSet *pflag.FlagSet) {
	d := DefaultConfig()
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	flagSet.IntVar(&f.cfg.Quorum, "quorum", d.Quorum, "distinct readers required before a message may be evicted")
	flagSet.IntVar(&f.cfg.Capacity, "capacity", d.Capacity, "number of slots in the ring")
	flagSet.IntVarP(&f.cfg.Messages, "messages", "n", d.Messages, "number of messages to write")
	flagSet.IntVarP(&f.cfg.Readers, "readers", "r", d.Readers, "number of reader goroutines")
	flagSet.StringVar(&f.cfg.Policy, "policy", d.Policy, "write policy: overwrite or backpressure")
	flagSet.StringVar(&f.cfg.Start, "start", d.Start, "where new readers begin: oldest or latest")
	flagSet.StringVar(&f.cfg.LogLevel, "log-level", d.LogLevel, "log level: debug, info, warn, error")
	flagSet.DurationVar(&f.cfg.Timeout, "timeout", d.Timeout, "overall run timeout")
}

// resolve loads the config file, if any, and applies explicitly set flags.
func (f *flagValues) resolve(flagSet *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = LoadConfig(f.configPath); err != nil {
			return Config{}, err
		}
	}

	if flagSet.Changed("quorum") {
		cfg.Quorum = f.cfg.Quorum
	}
	if flagSet.Changed("capacity") {
		cfg.Capacity = f.cfg.Capacity
	}
	if flagSet.Changed("messages") {
		cfg.Messages = f.cfg.Messages
	}
	if flagSet.Changed("readers") {
		cfg.Readers = f.cfg.Readers
	}
	if flagSet.Changed("policy") {
		cfg.Policy = f.cfg.Policy
	}
	if flagSet.Changed("start") {
		cfg.Start = f.cfg.Start
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = f.cfg.LogLevel
	}
	if flagSet.Changed("timeout") {
		cfg.Timeout = f.cfg.Timeout
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
