package execs

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"
)

var (
	// ErrCommandExecution is returned when a process fails.
	ErrCommandExecution = errors.New("run")

	// ErrEmptyCommand is returned when a [Spec] has no executable.
	ErrEmptyCommand = errors.New("empty command")

	// ErrAmbiguousCommand is returned when a [Spec] sets both a command and a
	// shell command line.
	ErrAmbiguousCommand = errors.New("command and shell are mutually exclusive")
)

// Variables kept from the caller's environment for every process.
var essentialEnv = []string{"PATH", "HOME", "USER", "TERM", "COLORTERM", "TMPDIR"}

// EnvVar is an environment variable set for the process.
type EnvVar struct {
	// ValueFrom copies the value of another variable of the caller.
	ValueFrom *CallerRef `json:"valueFrom,omitempty" jsonschema:"title=Value From"`
	// Name is the variable name.
	Name string `json:"name" jsonschema:"title=Name,minLength=1"`
	// Value is a static value.
	Value string `json:"value,omitempty" jsonschema:"title=Value"`
}

// CallerRef selects variables from the caller's environment, by name or by
// regular expression.
type CallerRef struct {
	pattern *LazyRegexp

	// Pattern matches variable names to inherit.
	Pattern string `json:"pattern,omitempty" jsonschema:"title=Pattern,format=regex"`
	// Name is a single variable to inherit.
	Name string `json:"name,omitempty" jsonschema:"title=Name"`
}

// Validate compiles the pattern, if any.
func (c *CallerRef) Validate() error {
	_, err := c.regexp().Get()

	return err
}

func (c *CallerRef) regexp() *LazyRegexp {
	if c.pattern == nil {
		c.pattern = NewLazyRegexp(c.Pattern)
	}

	return c.pattern
}

func (c *CallerRef) matches(name string) bool {
	if c.Name != "" && c.Name == name {
		return true
	}

	return c.regexp().MatchString(name)
}

// Spec describes a process.
type Spec struct {
	// Command is the executable to run.
	Command string `json:"command,omitempty" jsonschema:"title=Command,pattern=^\\S+$"`
	// Shell is a command line split with shell quoting rules, used instead
	// of Command and Args.
	Shell string `json:"shell,omitempty" jsonschema:"title=Shell Command Line"`
	// Dir is the working directory. Empty means the caller's.
	Dir string `json:"dir,omitempty" jsonschema:"title=Working Directory"`
	// Args are passed to Command.
	Args []string `json:"args,omitempty" jsonschema:"title=Arguments" yaml:"args,flow,omitempty"`
	// Env sets variables for the process.
	Env []EnvVar `json:"env,omitempty" jsonschema:"title=Environment Variables"`
	// Inherit selects caller variables passed through unchanged.
	Inherit []CallerRef `json:"inherit,omitempty" jsonschema:"title=Inherited Environment Variables"`
}

// Validate checks that the spec describes exactly one executable and that
// all patterns compile.
func (s *Spec) Validate() error {
	if s.Command != "" && s.Shell != "" {
		return ErrAmbiguousCommand
	}

	if _, err := s.Argv(); err != nil {
		return err
	}

	for i := range s.Inherit {
		if err := s.Inherit[i].Validate(); err != nil {
			return fmt.Errorf("inherit[%d]: %w", i, err)
		}
	}

	for i := range s.Env {
		if s.Env[i].ValueFrom == nil {
			continue
		}

		if err := s.Env[i].ValueFrom.Validate(); err != nil {
			return fmt.Errorf("env[%d]: %w", i, err)
		}
	}

	return nil
}

// Argv returns the executable followed by its arguments.
func (s *Spec) Argv() ([]string, error) {
	if s.Shell != "" {
		argv, err := shellwords.Parse(s.Shell)
		if err != nil {
			return nil, fmt.Errorf("parse shell %q: %w", s.Shell, err)
		}

		if len(argv) == 0 {
			return nil, ErrEmptyCommand
		}

		return argv, nil
	}

	if s.Command == "" {
		return nil, ErrEmptyCommand
	}

	return append([]string{s.Command}, s.Args...), nil
}

// Environ builds the process environment from the caller's environment
// (in [os.Environ] form). Only essential and inherited variables are passed
// through. The result is sorted by name.
func (s *Spec) Environ(base []string) []string {
	caller := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			caller[k] = v
		}
	}

	env := make(map[string]string)
	for _, k := range essentialEnv {
		if v, ok := caller[k]; ok {
			env[k] = v
		}
	}

	for i := range s.Inherit {
		for k, v := range caller {
			if s.Inherit[i].matches(k) {
				env[k] = v
			}
		}
	}

	for _, ev := range s.Env {
		switch {
		case ev.Name == "":
			continue
		case ev.Value != "":
			env[ev.Name] = ev.Value
		case ev.ValueFrom != nil && ev.ValueFrom.Name != "":
			if v, ok := caller[ev.ValueFrom.Name]; ok {
				env[ev.Name] = v
			}
		}
	}

	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}

	return out
}

// String returns the command line the spec runs.
func (s Spec) String() string {
	if s.Shell != "" {
		return s.Shell
	}

	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}
