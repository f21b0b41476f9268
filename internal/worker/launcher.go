package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

const (
	DefaultBinary     = "mu"
	DefaultSubcommand = "server"
	DefaultHomeFlag   = "--home"

	EnvMailDir = "MAILDIR"
)

var ErrInvalidSpec = errors.New("worker: invalid launch spec")

// Spec describes how to start one worker.
type Spec struct {
	Binary     string
	Subcommand string
	HomeDir    string
	HomeFlag   string
	// MailDir is forwarded to the worker as MAILDIR when set.
	MailDir string
	// Env holds extra KEY=VALUE entries for the worker environment.
	Env []string
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Binary) == "" {
		return fmt.Errorf("%w: missing binary", ErrInvalidSpec)
	}
	for _, kv := range s.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("%w: env entry %q is not KEY=VALUE", ErrInvalidSpec, kv)
		}
	}
	return nil
}

// Args returns the worker argument list: <subcommand> [<home-flag>=<dir>].
func (s Spec) Args() []string {
	args := make([]string, 0, 2)
	if sub := strings.TrimSpace(s.Subcommand); sub != "" {
		args = append(args, sub)
	}
	if home := strings.TrimSpace(s.HomeDir); home != "" {
		flag := strings.TrimSpace(s.HomeFlag)
		if flag == "" {
			flag = DefaultHomeFlag
		}
		args = append(args, flag+"="+home)
	}
	return args
}

// Environ returns the extra environment entries for the worker.
func (s Spec) Environ() []string {
	env := make([]string, 0, len(s.Env)+1)
	if dir := strings.TrimSpace(s.MailDir); dir != "" {
		env = append(env, EnvMailDir+"="+dir)
	}
	return append(env, s.Env...)
}

// Process is a running worker with owned pipes.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Wait blocks until the worker has exited and releases its resources.
	Wait() error
	Kill() error
	PID() int
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(spec Spec) (Process, error)
}

// LocalLauncher runs the worker as a child of this process.
type LocalLauncher struct {
	// Stderr receives the worker's standard error; nil discards it.
	Stderr io.Writer
}

func (l LocalLauncher) Launch(spec Spec) (Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cmd := exec.Command(spec.Binary, spec.Args()...)
	cmd.Env = append(os.Environ(), spec.Environ()...)
	if l.Stderr != nil {
		cmd.Stderr = l.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("worker: start %s: %w", spec.Binary, err)
	}
	return &localProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *localProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *localProcess) Stdout() io.Reader     { return p.stdout }
func (p *localProcess) Wait() error           { return p.cmd.Wait() }

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *localProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
