package config

import (
	"github.com/danmuck/mupipe/client"
)

// ClientConfig overlays the gateway's worker settings on client defaults.
func (cfg GatewayConfig) ClientConfig() (client.Config, error) {
	out := client.DefaultConfig()
	w := cfg.Worker
	out.Binary = w.Binary
	out.Subcommand = w.Subcommand
	out.HomeDir = w.HomeDir
	if w.HomeFlag != "" {
		out.HomeFlag = w.HomeFlag
	}
	out.MailDir = w.MailDir
	out.Env = w.Env
	if w.BufSize > 0 {
		out.BufSize = w.BufSize
	}
	out.MaxTries = w.MaxTries
	if w.MaxSpawnAttempts > 0 {
		out.MaxSpawnAttempts = w.MaxSpawnAttempts
	}

	timeout, err := parseDuration("timeout", w.Timeout)
	if err != nil {
		return client.Config{}, err
	}
	if timeout > 0 {
		out.Timeout = timeout
	}
	grace, err := parseDuration("shutdown_grace", w.ShutdownGrace)
	if err != nil {
		return client.Config{}, err
	}
	if grace > 0 {
		out.ShutdownGrace = grace
	}

	if cfg.SSH != nil {
		launcher, err := cfg.SSH.Launcher()
		if err != nil {
			return client.Config{}, err
		}
		out.Launcher = launcher
	}
	return out, nil
}

func (cfg SSHConfig) Launcher() (client.SSHLauncher, error) {
	timeout, err := parseDuration("timeout", cfg.Timeout)
	if err != nil {
		return client.SSHLauncher{}, err
	}
	return client.SSHLauncher{
		Host:                        cfg.Host,
		Port:                        cfg.Port,
		User:                        cfg.User,
		KeyPath:                     cfg.KeyPath,
		KnownHostsPath:              cfg.KnownHosts,
		InsecureSkipHostKeyChecking: cfg.Insecure,
		Timeout:                     timeout,
	}, nil
}
