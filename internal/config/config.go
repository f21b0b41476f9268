package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

// GatewayConfig is the mugate file format.
type GatewayConfig struct {
	Name        string       `toml:"name"`
	Addr        string       `toml:"addr"`
	CorsOrigins []string     `toml:"cors_origins"`
	Worker      WorkerConfig `toml:"worker"`
	SSH         *SSHConfig   `toml:"ssh"`
}

// WorkerConfig describes the worker launch and read tuning. Durations are
// Go duration strings ("500ms", "5s").
type WorkerConfig struct {
	Binary           string   `toml:"binary"`
	Subcommand       string   `toml:"subcommand"`
	HomeDir          string   `toml:"home"`
	HomeFlag         string   `toml:"home_flag"`
	MailDir          string   `toml:"maildir"`
	Env              []string `toml:"env"`
	Timeout          string   `toml:"timeout"`
	BufSize          int      `toml:"bufsize"`
	MaxTries         int      `toml:"max_tries"`
	ShutdownGrace    string   `toml:"shutdown_grace"`
	MaxSpawnAttempts int      `toml:"max_spawn_attempts"`
}

// SSHConfig runs the worker on a remote host when present.
type SSHConfig struct {
	Host       string `toml:"host"`
	Port       string `toml:"port"`
	User       string `toml:"user"`
	KeyPath    string `toml:"key_path"`
	KnownHosts string `toml:"known_hosts"`
	Insecure   bool   `toml:"insecure_skip_host_key_check"`
	Timeout    string `toml:"timeout"`
}

func LoadGatewayConfig(path string) (GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := ParseGatewayConfig(data)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseGatewayConfig decodes data, fills defaults and validates the result.
func ParseGatewayConfig(data []byte) (GatewayConfig, error) {
	var cfg GatewayConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	applyGatewayDefaults(&cfg)
	if err := ValidateGatewayConfig(cfg); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.Name == "" {
		cfg.Name = "mugate"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9300"
	}
	if cfg.Worker.Binary == "" {
		cfg.Worker.Binary = "mu"
	}
	if cfg.Worker.Subcommand == "" {
		cfg.Worker.Subcommand = "server"
	}
	if cfg.SSH != nil && cfg.SSH.Port == "" {
		cfg.SSH.Port = "22"
	}
}

func ValidateGatewayConfig(cfg GatewayConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: gateway config missing name", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("%w: gateway config missing addr", ErrInvalidConfig)
	}
	if err := ValidateWorkerConfig(cfg.Worker); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	if cfg.SSH != nil {
		if err := ValidateSSHConfig(*cfg.SSH); err != nil {
			return fmt.Errorf("ssh: %w", err)
		}
	}
	return nil
}

func ValidateWorkerConfig(cfg WorkerConfig) error {
	if strings.TrimSpace(cfg.Binary) == "" {
		return fmt.Errorf("%w: binary is required", ErrInvalidConfig)
	}
	if cfg.BufSize < 0 {
		return fmt.Errorf("%w: bufsize must not be negative", ErrInvalidConfig)
	}
	if cfg.MaxTries < 0 {
		return fmt.Errorf("%w: max_tries must not be negative", ErrInvalidConfig)
	}
	if cfg.MaxSpawnAttempts < 0 {
		return fmt.Errorf("%w: max_spawn_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := parseDuration("timeout", cfg.Timeout); err != nil {
		return err
	}
	if _, err := parseDuration("shutdown_grace", cfg.ShutdownGrace); err != nil {
		return err
	}
	for _, kv := range cfg.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("%w: env entry %q is not KEY=VALUE", ErrInvalidConfig, kv)
		}
	}
	return nil
}

func ValidateSSHConfig(cfg SSHConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.User) == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.KeyPath) == "" {
		return fmt.Errorf("%w: key_path is required", ErrInvalidConfig)
	}
	if _, err := parseDuration("timeout", cfg.Timeout); err != nil {
		return err
	}
	return nil
}

// parseDuration treats an empty value as unset.
func parseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, field)
	}
	return d, nil
}
