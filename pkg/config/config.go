package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/relay/api"
	"github.com/macropower/relay/api/v1beta1"
	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/execs"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/keys"
)

// Kind is the kind of relay's configuration document.
const Kind = "Configuration"

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	// ValidKinds contains the accepted kind values.
	ValidKinds = []string{Kind}

	// ErrDuplicateCommand is returned when two commands share a name.
	ErrDuplicateCommand = errors.New("duplicate command name")

	// ErrInvalidName is returned for command names that are not identifiers.
	ErrInvalidName = errors.New("invalid command name")

	// ErrUnknownCommand is returned when looking up a command that is not
	// configured.
	ErrUnknownCommand = errors.New("unknown command")

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)

	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// DefaultMinimumDelay is the default [UIConfig.MinimumDelay].
const DefaultMinimumDelay = 200 * time.Millisecond

// Config is relay's configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	v1beta1.TypeMeta `json:",inline"`
	// Commands are exposed by name to the UI and the MCP server.
	Commands []*CommandConfig `json:"commands" jsonschema:"title=Commands"`
	// UI configures the terminal UI.
	UI *UIConfig `json:"ui,omitempty" jsonschema:"title=UI"`
}

// CommandConfig declares a command that runs an external process.
type CommandConfig struct {
	// Name identifies the command.
	Name string `json:"name" jsonschema:"title=Name,pattern=^[a-z0-9][a-z0-9_-]*$"`
	// Description is shown next to the command.
	Description string `json:"description,omitempty" jsonschema:"title=Description"`

	execs.Spec `json:",inline"`

	// Timeout bounds each run. Zero means no timeout.
	Timeout *Duration `json:"timeout,omitempty" jsonschema:"title=Timeout"`
	// CanRun is a CEL expression deciding whether the command can run.
	// Variables: arg (dyn), state (map), running (bool).
	CanRun string `json:"canRun,omitempty" jsonschema:"title=Can Run Expression"`
	// Reentrancy controls overlapping runs: "block" (default) or "allow".
	Reentrancy string `json:"reentrancy,omitempty" jsonschema:"title=Reentrancy,enum=block,enum=allow"`
	// Cancellable makes a new run cancel the previous one.
	Cancellable bool `json:"cancellable,omitempty" jsonschema:"title=Cancellable"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	// MinimumDelay is how long the running indicator is shown at least.
	MinimumDelay *Duration `json:"minimumDelay,omitempty" jsonschema:"title=Minimum Delay"`
	// Title is shown in the header.
	Title string `json:"title,omitempty" jsonschema:"title=Title"`
	// KeyBinds override the default key bindings.
	KeyBinds *keys.KeyBinds `json:"keybinds,omitempty" jsonschema:"title=Key Bindings"`
	// Compact hides command descriptions.
	Compact bool `json:"compact,omitempty" jsonschema:"title=Compact"`
}

// New creates a [Config] with default values and no commands.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       Kind,
		},
		Commands: []*CommandConfig{},
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.UI == nil {
		c.UI = &UIConfig{}
	}

	c.UI.EnsureDefaults()

	if c.Commands == nil {
		c.Commands = []*CommandConfig{}
	}
}

// EnsureDefaults initializes nil fields to their default values.
func (u *UIConfig) EnsureDefaults() {
	if u.Title == "" {
		u.Title = api.AppName
	}

	if u.MinimumDelay == nil {
		u.MinimumDelay = &Duration{DefaultMinimumDelay}
	}

	if u.KeyBinds == nil {
		u.KeyBinds = &keys.KeyBinds{}
	}

	u.KeyBinds.EnsureDefaults()
}

// Validate checks rules the JSON schema cannot express. It compiles every
// canRun expression with env.
func (c *Config) Validate(env *expr.Environment) error {
	seen := make(map[string]bool, len(c.Commands))

	for i, cc := range c.Commands {
		if err := cc.Validate(env); err != nil {
			return fmt.Errorf("commands[%d]: %w", i, err)
		}

		if seen[cc.Name] {
			return fmt.Errorf("commands[%d]: %w: %q", i, ErrDuplicateCommand, cc.Name)
		}

		seen[cc.Name] = true
	}

	if c.UI != nil && c.UI.KeyBinds != nil {
		if err := c.UI.KeyBinds.Validate(); err != nil {
			return fmt.Errorf("ui.keybinds: %w", err)
		}
	}

	return nil
}

// Command returns the command named name.
func (c *Config) Command(name string) (*CommandConfig, error) {
	for _, cc := range c.Commands {
		if cc.Name == name {
			return cc, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c *Config) MarshalYAML() ([]byte, error) {
	type alias Config

	return api.MarshalYAML((*alias)(c))
}

// Validate checks the command's name, process spec, policy and predicate.
func (cc *CommandConfig) Validate(env *expr.Environment) error {
	if !namePattern.MatchString(cc.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, cc.Name)
	}

	if err := cc.Spec.Validate(); err != nil {
		return fmt.Errorf("%s: %w", cc.Name, err)
	}

	if _, err := cc.ReentrancyPolicy(); err != nil {
		return fmt.Errorf("%s: %w", cc.Name, err)
	}

	if _, err := cc.Predicate(env); err != nil {
		return fmt.Errorf("%s: canRun: %w", cc.Name, err)
	}

	return nil
}

// ReentrancyPolicy parses [CommandConfig.Reentrancy].
func (cc *CommandConfig) ReentrancyPolicy() (command.Reentrancy, error) {
	r, err := command.ParseReentrancy(cc.Reentrancy)
	if err != nil {
		return r, fmt.Errorf("reentrancy: %w", err)
	}

	return r, nil
}

// Predicate compiles [CommandConfig.CanRun]. It returns nil if no expression
// is set.
func (cc *CommandConfig) Predicate(env *expr.Environment) (*expr.Predicate, error) {
	if cc.CanRun == "" {
		return nil, nil //nolint:nilnil // No predicate means always runnable.
	}

	p, err := expr.NewPredicate(env, cc.CanRun)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	return p, nil
}

// TimeoutDuration returns the run timeout, or zero.
func (cc *CommandConfig) TimeoutDuration() time.Duration {
	if cc.Timeout == nil {
		return 0
	}

	return cc.Timeout.Duration
}

// DefaultYAML returns the default configuration file contents.
func DefaultYAML() []byte {
	return defaultConfigYAML
}

// WriteDefault writes the default configuration and its JSON schema to
// path's directory. With force, existing files are backed up and replaced.
func WriteDefault(path string, force bool) error {
	if _, err := api.WriteDefaultFile(path, defaultConfigYAML, force); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	schemaPath := filepath.Join(filepath.Dir(path), SchemaFileName)
	if err := os.WriteFile(schemaPath, Schema(), 0o600); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}

	return nil
}

// GetPath returns the default configuration file path.
func GetPath() string {
	return api.GetConfigPath("config.yaml")
}
