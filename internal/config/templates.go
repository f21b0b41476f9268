package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "gateway":
		return gatewayTemplate, nil
	case "muctl":
		return muctlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const gatewayTemplate = `name = "mugate"
addr = ":9300"
cors_origins = ["http://localhost:3000"]

[worker]
binary = "mu"
subcommand = "server"
home = "/var/lib/mu"
maildir = "/var/mail/mu"
timeout = "500ms"
bufsize = 4096
max_tries = 0
shutdown_grace = "5s"
max_spawn_attempts = 5

# Run the worker on another host instead of locally.
# [ssh]
# host = "mail.lan"
# user = "mu"
# key_path = "/etc/mugate/id_ed25519"
# known_hosts = "/etc/mugate/known_hosts"
`

const muctlTemplate = `binary = "mu"
home = "/var/lib/mu"
maildir = "/var/mail/mu"
timeout = "500ms"
max_tries = 0
output = "json"
`
