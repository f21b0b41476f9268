package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/mupipe/client"
)

const (
	envMailDir = "MAILDIR"
	envHome    = "MUPIPE_HOME"

	outputJSON = "json"
	outputYAML = "yaml"
)

type fileConfig struct {
	Binary        string   `toml:"binary"`
	Subcommand    string   `toml:"subcommand"`
	Home          string   `toml:"home"`
	HomeFlag      string   `toml:"home_flag"`
	MailDir       string   `toml:"maildir"`
	Env           []string `toml:"env"`
	Timeout       string   `toml:"timeout"`
	BufSize       int      `toml:"bufsize"`
	MaxTries      int      `toml:"max_tries"`
	ShutdownGrace string   `toml:"shutdown_grace"`
	Output        string   `toml:"output"`
}

type cliConfig struct {
	Client client.Config
	Output string
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Client: client.DefaultConfig(),
		Output: outputJSON,
	}
}

// loadCLIConfig overlays the file at path on the defaults. An empty path
// keeps the defaults.
func loadCLIConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load muctl config: %w", err)
	}

	if meta.IsDefined("binary") {
		cfg.Client.Binary = strings.TrimSpace(raw.Binary)
	}
	if meta.IsDefined("subcommand") {
		cfg.Client.Subcommand = strings.TrimSpace(raw.Subcommand)
	}
	if meta.IsDefined("home") {
		cfg.Client.HomeDir = strings.TrimSpace(raw.Home)
	}
	if meta.IsDefined("home_flag") {
		cfg.Client.HomeFlag = strings.TrimSpace(raw.HomeFlag)
	}
	if meta.IsDefined("maildir") {
		cfg.Client.MailDir = strings.TrimSpace(raw.MailDir)
	}
	if meta.IsDefined("env") {
		cfg.Client.Env = raw.Env
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Client.Timeout = d
	}
	if meta.IsDefined("bufsize") {
		cfg.Client.BufSize = raw.BufSize
	}
	if meta.IsDefined("max_tries") {
		cfg.Client.MaxTries = raw.MaxTries
	}
	if meta.IsDefined("shutdown_grace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownGrace))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse shutdown_grace: %w", err)
		}
		cfg.Client.ShutdownGrace = d
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.ToLower(strings.TrimSpace(raw.Output))
	}

	if err := cfg.validate(); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

// applyEnv fills the mail store and home locations from the environment
// when they are set there. The worker only ever sees them through Spec.
func (cfg *cliConfig) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(envMailDir)); v != "" {
		cfg.Client.MailDir = v
	}
	if v := strings.TrimSpace(getenv(envHome)); v != "" {
		cfg.Client.HomeDir = v
	}
}

func (cfg cliConfig) validate() error {
	switch cfg.Output {
	case outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", cfg.Output)
	}
	return cfg.Client.Validate()
}
