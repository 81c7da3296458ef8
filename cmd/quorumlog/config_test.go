package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quorumlog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
quorum: 5
policy: backpressure
timeout: 250ms
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Quorum != 5 || cfg.Policy != "backpressure" || cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	d := DefaultConfig()
	if cfg.Capacity != d.Capacity || cfg.Messages != d.Messages || cfg.Start != d.Start {
		t.Fatalf("expected defaults for absent keys, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}

	path := writeConfig(t, "quorum: [not an int]\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quorum = 0
	cfg.Capacity = -1
	cfg.Policy = "block"
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"quorum", "capacity", "write policy", "log level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got: %v", want, err)
		}
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "quorum: 5\ncapacity: 7\n")

	var flags flagValues
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.register(flagSet)
	if err := flagSet.Parse([]string{"--config", path, "--capacity", "9", "-n", "4"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := flags.resolve(flagSet)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Quorum != 5 {
		t.Fatalf("expected quorum from file, got %d", cfg.Quorum)
	}
	if cfg.Capacity != 9 || cfg.Messages != 4 {
		t.Fatalf("expected flag overrides, got capacity=%d messages=%d", cfg.Capacity, cfg.Messages)
	}
}
