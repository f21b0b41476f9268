package client

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Binary != "mu" || cfg.Subcommand != "server" || cfg.HomeFlag != "--home" {
		t.Fatalf("unexpected launch defaults: %+v", cfg)
	}
	if cfg.Timeout != 500*time.Millisecond || cfg.BufSize != 4096 || cfg.MaxTries != 0 {
		t.Fatalf("unexpected read defaults: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Binary = "  " },
		func(c *Config) { c.Timeout = 0 },
		func(c *Config) { c.BufSize = -1 },
		func(c *Config) { c.MaxTries = -1 },
		func(c *Config) { c.MaxFrameBytes = -1 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestConfigSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Binary = " /usr/local/bin/mu "
	cfg.HomeDir = "/tmp/mu-home"
	cfg.MailDir = "/tmp/Maildir"
	spec := cfg.spec()
	if spec.Binary != "/usr/local/bin/mu" {
		t.Fatalf("binary not trimmed: %q", spec.Binary)
	}
	if !reflect.DeepEqual(spec.Args(), []string{"server", "--home=/tmp/mu-home"}) {
		t.Fatalf("unexpected args: %v", spec.Args())
	}
	if spec.MailDir != "/tmp/Maildir" {
		t.Fatalf("unexpected maildir %q", spec.MailDir)
	}
}
