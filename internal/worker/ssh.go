package worker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

// ErrSSHConfig reports an SSHLauncher that cannot be used as configured.
var ErrSSHConfig = errors.New("worker: ssh config")

// SSHLauncher runs the worker on a remote host over an SSH session.
type SSHLauncher struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func (l SSHLauncher) Launch(spec Spec) (Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	client, err := l.dial()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("worker: ssh session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("worker: ssh stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("worker: ssh stdout: %w", err)
	}
	if err := session.Start(remoteCommand(spec)); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("worker: ssh start: %w", err)
	}
	return &sshProcess{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

// remoteCommand renders spec as a shell line. Environment entries are
// passed through env(1) since servers commonly refuse SSH setenv requests.
func remoteCommand(spec Spec) string {
	parts := make([]string, 0, 8)
	if env := spec.Environ(); len(env) > 0 {
		parts = append(parts, "env")
		for _, kv := range env {
			parts = append(parts, shellEscape(kv))
		}
	}
	parts = append(parts, shellEscape(spec.Binary))
	for _, arg := range spec.Args() {
		parts = append(parts, shellEscape(arg))
	}
	return strings.Join(parts, " ")
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (p *sshProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *sshProcess) Stdout() io.Reader     { return p.stdout }
func (p *sshProcess) PID() int              { return 0 }

func (p *sshProcess) Wait() error {
	err := p.session.Wait()
	p.client.Close()
	return err
}

func (p *sshProcess) Kill() error {
	_ = p.session.Signal(ssh.SIGKILL)
	p.session.Close()
	return p.client.Close()
}

// dial opens the transport and completes the SSH handshake within Timeout.
func (l SSHLauncher) dial() (*ssh.Client, error) {
	target, err := l.target()
	if err != nil {
		return nil, err
	}
	cfg, err := l.clientConfig()
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: l.Timeout}
	conn, err := d.Dial("tcp", target)
	if err != nil {
		return nil, fmt.Errorf("worker: ssh connect %s: %w", target, err)
	}
	if l.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(l.Timeout))
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, target, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("worker: ssh handshake %s: %w", target, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(cc, chans, reqs), nil
}

// target is host:port, defaulting to port 22 unless Host already names one.
func (l SSHLauncher) target() (string, error) {
	host := strings.TrimSpace(l.Host)
	switch {
	case host == "":
		return "", fmt.Errorf("%w: host is required", ErrSSHConfig)
	case l.Port != "":
		return net.JoinHostPort(host, l.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, defaultSSHPort), nil
}

func (l SSHLauncher) clientConfig() (*ssh.ClientConfig, error) {
	if strings.TrimSpace(l.User) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrSSHConfig)
	}
	auth, err := loadSigner(l.KeyPath, l.Passphrase)
	if err != nil {
		return nil, err
	}
	verify := ssh.InsecureIgnoreHostKey()
	if !l.InsecureSkipHostKeyChecking {
		if verify, err = hostKeyVerifier(l.KnownHostsPath); err != nil {
			return nil, err
		}
	}
	return &ssh.ClientConfig{
		User:            l.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(auth)},
		HostKeyCallback: verify,
		Timeout:         l.Timeout,
	}, nil
}

func loadSigner(path string, passphrase []byte) (ssh.Signer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: key path is required", ErrSSHConfig)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("worker: ssh key: %w", err)
	}
	var signer ssh.Signer
	if len(passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("worker: ssh key %s: %w", path, err)
	}
	return signer, nil
}

// hostKeyVerifier checks server keys against path, or ~/.ssh/known_hosts.
func hostKeyVerifier(path string) (ssh.HostKeyCallback, error) {
	if path = strings.TrimSpace(path); path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: known_hosts unset and no home directory: %v", ErrSSHConfig, err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("worker: ssh known_hosts: %w", err)
	}
	return cb, nil
}
