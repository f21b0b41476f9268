// Package fakeworker is an in-memory scripted worker for tests. It
// implements worker.Launcher over io.Pipe and speaks the framed wire
// protocol.
package fakeworker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/mupipe/internal/protocol/frame"
	"github.com/danmuck/mupipe/internal/sexp"
	"github.com/danmuck/mupipe/internal/worker"
)

const DefaultBanner = ";; fake worker ready\n"

var ErrLaunchRefused = errors.New("fakeworker: launch refused")

// Command is one parsed command line.
type Command struct {
	Name string
	Args map[string]string
	Line string
}

// Handler answers one command. Commands named quit are handled by the
// worker itself unless IgnoreQuit is set.
type Handler func(s *Session, cmd Command)

// Worker launches fake processes that share one Handler.
type Worker struct {
	Banner     string
	IgnoreQuit bool

	handle Handler

	mu        sync.Mutex
	launches  int
	refuse    int
	lines     []string
	specs     []worker.Spec
	processes []*process
}

func New(handle Handler) *Worker {
	return &Worker{Banner: DefaultBanner, handle: handle}
}

// RefuseLaunches makes the next n launches fail.
func (w *Worker) RefuseLaunches(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refuse = n
}

func (w *Worker) Launches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.launches
}

// Lines returns every command line received, across launches.
func (w *Worker) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

// LastSpec returns the spec of the most recent launch.
func (w *Worker) LastSpec() worker.Spec {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.specs) == 0 {
		return worker.Spec{}
	}
	return w.specs[len(w.specs)-1]
}

// Exited reports whether the process of launch i (0-based) has exited.
func (w *Worker) Exited(i int) bool {
	w.mu.Lock()
	p := w.processes[i]
	w.mu.Unlock()
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (w *Worker) Launch(spec worker.Spec) (worker.Process, error) {
	w.mu.Lock()
	if w.refuse > 0 {
		w.refuse--
		w.mu.Unlock()
		return nil, ErrLaunchRefused
	}
	w.launches++
	pid := 1000 + w.launches
	w.specs = append(w.specs, spec)
	w.mu.Unlock()

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	p := &process{
		pid:     pid,
		stdinR:  stdinR,
		stdinW:  stdinW,
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		done:    make(chan struct{}),
	}
	w.mu.Lock()
	w.processes = append(w.processes, p)
	w.mu.Unlock()

	go w.serve(p)
	return p, nil
}

func (w *Worker) serve(p *process) {
	defer close(p.done)
	defer p.stdoutW.Close()

	s := &Session{out: p.stdoutW}
	if w.Banner != "" {
		if _, err := io.WriteString(p.stdoutW, w.Banner); err != nil {
			return
		}
	}
	scanner := bufio.NewScanner(p.stdinR)
	for scanner.Scan() {
		line := scanner.Text()
		w.mu.Lock()
		w.lines = append(w.lines, line)
		w.mu.Unlock()

		cmd := ParseLine(line)
		if cmd.Name == "quit" && !w.IgnoreQuit {
			return
		}
		if w.handle != nil {
			w.handle(s, cmd)
		}
		if s.exited {
			return
		}
	}
}

// Session is the worker side of one launched process.
type Session struct {
	out    io.Writer
	exited bool
}

// Frame writes text as one framed payload.
func (s *Session) Frame(text string) error {
	_, err := s.out.Write(frame.Encode([]byte(text)))
	return err
}

// Reply encodes v as an expression and writes it as one frame.
func (s *Session) Reply(v any) error {
	text, err := sexp.Encode(v)
	if err != nil {
		return err
	}
	return s.Frame(text)
}

// Raw writes b unframed.
func (s *Session) Raw(b []byte) error {
	_, err := s.out.Write(b)
	return err
}

// Exit ends the process after the handler returns, closing its output.
func (s *Session) Exit() {
	s.exited = true
}

type process struct {
	pid     int
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	done    chan struct{}
	once    sync.Once
}

func (p *process) Stdin() io.WriteCloser { return p.stdinW }
func (p *process) Stdout() io.Reader     { return p.stdoutR }
func (p *process) PID() int              { return p.pid }

func (p *process) Wait() error {
	<-p.done
	return nil
}

func (p *process) Kill() error {
	p.once.Do(func() {
		p.stdinR.CloseWithError(fmt.Errorf("fakeworker: killed"))
		p.stdoutW.CloseWithError(io.EOF)
	})
	return nil
}

// ParseLine splits a command line into name and arguments, undoing the
// double-quoting applied to values.
func ParseLine(line string) Command {
	cmd := Command{Line: line, Args: map[string]string{}}
	tokens := tokenize(strings.TrimRight(line, "\r\n"))
	for i, tok := range tokens {
		key, value, _ := strings.Cut(tok, ":")
		if i == 0 && key == "cmd" {
			cmd.Name = value
			continue
		}
		cmd.Args[key] = value
	}
	return cmd
}

func tokenize(line string) []string {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && r == ' ':
			if started {
				tokens = append(tokens, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
