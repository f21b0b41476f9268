package client

import (
	"fmt"
	"sort"
	"strings"
)

// Policy is a command's response cardinality.
type Policy int

const (
	// PolicySingle reads one frame, unless that frame carries a
	// non-terminal status.
	PolicySingle Policy = iota
	// PolicyStream reads frames until one reports status "complete".
	PolicyStream
)

func (p Policy) String() string {
	switch p {
	case PolicySingle:
		return "single"
	case PolicyStream:
		return "stream"
	default:
		return "unknown"
	}
}

const (
	CmdAdd      = "add"
	CmdCompose  = "compose"
	CmdContacts = "contacts"
	CmdExtract  = "extract"
	CmdFind     = "find"
	CmdIndex    = "index"
	CmdMkdir    = "mkdir"
	CmdMove     = "move"
	CmdPing     = "ping"
	CmdRemove   = "remove"
	CmdView     = "view"
)

// Command maps a call name to its wire name and response policy.
type Command struct {
	Name   string
	Wire   string
	Policy Policy
}

// Registry stores commands by call name.
type Registry struct {
	items map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Command)}
}

// DefaultRegistry returns the worker's standard command table.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, name := range []string{
		CmdAdd, CmdCompose, CmdContacts, CmdExtract, CmdFind,
		CmdMkdir, CmdMove, CmdPing, CmdRemove, CmdView,
	} {
		r.mustRegister(Command{Name: name, Policy: PolicySingle})
	}
	r.mustRegister(Command{Name: CmdIndex, Policy: PolicyStream})
	return r
}

func (r *Registry) mustRegister(cmd Command) {
	if err := r.Register(cmd); err != nil {
		panic(err)
	}
}

// Register adds cmd. An empty Wire defaults to Name.
func (r *Registry) Register(cmd Command) error {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Wire = strings.TrimSpace(cmd.Wire)
	if cmd.Wire == "" {
		cmd.Wire = cmd.Name
	}
	if !isValidName(cmd.Name) || !isValidName(cmd.Wire) {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Name)
	}
	if cmd.Policy != PolicySingle && cmd.Policy != PolicyStream {
		return fmt.Errorf("%w: %q has unknown policy %d", ErrInvalidCommand, cmd.Name, cmd.Policy)
	}
	if _, ok := r.items[cmd.Name]; ok {
		return fmt.Errorf("%w: %q", ErrCommandExists, cmd.Name)
	}
	r.items[cmd.Name] = cmd
	return nil
}

func (r *Registry) Resolve(name string) (Command, bool) {
	cmd, ok := r.items[strings.TrimSpace(name)]
	return cmd, ok
}

// List returns commands ordered by name.
func (r *Registry) List() []Command {
	list := make([]Command, 0, len(r.items))
	for _, cmd := range r.items {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func isValidName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 && !isLower {
			return false
		}
	}
	return true
}
