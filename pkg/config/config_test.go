package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/api/v1beta1"
	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/execs"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/keys"
)

func TestNew(t *testing.T) {
	t.Parallel()

	c := config.New()

	assert.Equal(t, v1beta1.APIVersion, c.APIVersion)
	assert.Equal(t, config.Kind, c.Kind)
	assert.Empty(t, c.Commands)
	require.NotNil(t, c.UI)
	assert.Equal(t, "relay", c.UI.Title)
	assert.Equal(t, config.DefaultMinimumDelay, c.UI.MinimumDelay.Duration)
	require.NotNil(t, c.UI.KeyBinds)
	assert.True(t, c.UI.KeyBinds.Quit.Match("q"))
}

func TestConfig_ValidateKeyBinds(t *testing.T) {
	t.Parallel()

	c := config.New()
	c.UI.KeyBinds.Cancel.Keys = []keys.Key{keys.New("q")}

	require.ErrorIs(t, c.Validate(expr.MustNewEnvironment()), keys.ErrDuplicateKey)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()
	echo := execs.Spec{Command: "echo"}

	tcs := map[string]struct {
		err      error
		commands []*config.CommandConfig
		wantErr  bool
	}{
		"valid": {
			commands: []*config.CommandConfig{
				{Name: "a", Spec: echo},
				{Name: "b", Spec: execs.Spec{Shell: "go test ./..."}, CanRun: `!running`, Reentrancy: "allow"},
			},
		},
		"duplicate": {
			commands: []*config.CommandConfig{{Name: "a", Spec: echo}, {Name: "a", Spec: echo}},
			err:      config.ErrDuplicateCommand,
		},
		"invalid name": {
			commands: []*config.CommandConfig{{Name: "Not Valid", Spec: echo}},
			err:      config.ErrInvalidName,
		},
		"empty command": {
			commands: []*config.CommandConfig{{Name: "a"}},
			err:      execs.ErrEmptyCommand,
		},
		"bad reentrancy": {
			commands: []*config.CommandConfig{{Name: "a", Spec: echo, Reentrancy: "sometimes"}},
			err:      command.ErrUnknownReentrancy,
		},
		"bad predicate": {
			commands: []*config.CommandConfig{{Name: "a", Spec: echo, CanRun: "arg =="}},
			wantErr:  true,
		},
		"non-bool predicate": {
			commands: []*config.CommandConfig{{Name: "a", Spec: echo, CanRun: `"yes"`}},
			err:      expr.ErrNotBool,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := config.New()
			c.Commands = tc.commands

			err := c.Validate(env)

			switch {
			case tc.err != nil:
				require.ErrorIs(t, err, tc.err)
			case tc.wantErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_Command(t *testing.T) {
	t.Parallel()

	c := config.New()
	c.Commands = []*config.CommandConfig{{Name: "build"}}

	cc, err := c.Command("build")
	require.NoError(t, err)
	assert.Equal(t, "build", cc.Name)

	_, err = c.Command("deploy")
	require.ErrorIs(t, err, config.ErrUnknownCommand)
}

func TestCommandConfig(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	cc := &config.CommandConfig{Name: "a"}

	r, err := cc.ReentrancyPolicy()
	require.NoError(t, err)
	assert.Equal(t, command.ReentrancyBlock, r)

	p, err := cc.Predicate(env)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Zero(t, cc.TimeoutDuration())

	cc.CanRun = `arg == "x"`
	cc.Timeout = &config.Duration{Duration: time.Minute}

	p, err = cc.Predicate(env)
	require.NoError(t, err)

	ok, err := p.Eval(expr.Input{Arg: "x"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, cc.TimeoutDuration())
}

func TestConfig_MarshalYAML(t *testing.T) {
	t.Parallel()

	c := config.New()
	c.Commands = []*config.CommandConfig{{
		Name:    "build",
		Spec:    execs.Spec{Command: "make", Args: []string{"build"}},
		Timeout: &config.Duration{Duration: 90 * time.Second},
	}}

	b, err := c.MarshalYAML()
	require.NoError(t, err)

	l, err := config.NewLoaderFromBytes(b)
	require.NoError(t, err)

	got, err := l.ValidateAndLoad()
	require.NoError(t, err)

	require.Len(t, got.Commands, 1)
	assert.Equal(t, "make", got.Commands[0].Command)
	assert.Equal(t, []string{"build"}, got.Commands[0].Args)
	assert.Equal(t, 90*time.Second, got.Commands[0].TimeoutDuration())
	assert.Equal(t, c.UI.Title, got.UI.Title)
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "relay", "config.yaml")

	require.NoError(t, config.WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML(), data)

	schemaData, err := os.ReadFile(filepath.Join(dir, "relay", config.SchemaFileName))
	require.NoError(t, err)
	assert.JSONEq(t, string(config.Schema()), string(schemaData))

	// Existing files are kept without force.
	require.NoError(t, os.WriteFile(path, []byte("custom"), 0o600))
	require.NoError(t, config.WriteDefault(path, false))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(data))
}

func TestDuration(t *testing.T) {
	t.Parallel()

	var d config.Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	require.Error(t, d.UnmarshalText([]byte("soon")))
	assert.Equal(t, "string", d.JSONSchema().Type)
}
