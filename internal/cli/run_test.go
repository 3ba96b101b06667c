package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/internal/cli"
	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
)

const testConfig = `apiVersion: relay.macropower.dev/v1beta1
kind: Configuration
commands:
  - name: greet
    description: Say hello
    command: echo
    args: [hello]
  - name: fields
    description: Print each argument
    command: printf
    args: ["%s|"]
  - name: fail
    command: "false"
  - name: never
    command: echo
    canRun: "false"
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := cli.NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(t.Context())

	return stdout.String(), err
}

func TestRun(t *testing.T) {
	path := writeConfig(t, testConfig)

	tcs := map[string]struct {
		err      error
		args     []string
		want     string
		contains []string
		wantErr  bool
	}{
		"run command": {
			args: []string{"greet"},
			want: "hello\n",
		},
		"run command with arguments": {
			args: []string{"greet", "--", "world"},
			want: "hello world\n",
		},
		"arguments keep their boundaries": {
			args: []string{"run", "fields", "--", "a b", "it's", "c"},
			want: "a b|it's|c|",
		},
		"failing command": {
			args:    []string{"fail"},
			wantErr: true,
		},
		"rejected command": {
			args: []string{"never"},
			err:  command.ErrRejected,
		},
		"unknown command": {
			args: []string{"nope"},
			err:  config.ErrUnknownCommand,
		},
		"list without a terminal": {
			args:     []string{},
			contains: []string{"greet   Say hello", "show", "copy", "fail"},
		},
		"list subcommand": {
			args:     []string{"list"},
			contains: []string{"fields  Print each argument"},
		},
		"show config": {
			args:     []string{"--show-config"},
			contains: []string{"name: greet", "kind: Configuration"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			args := append([]string{"--log-level", "error", "--config", path}, tc.args...)
			if len(tc.args) > 0 && (tc.args[0] == "run" || tc.args[0] == "list") {
				args = append([]string{tc.args[0], "--log-level", "error", "--config", path}, tc.args[1:]...)
			}

			out, err := execute(t, args...)

			switch {
			case tc.err != nil:
				require.ErrorIs(t, err, tc.err)

				return
			case tc.wantErr:
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			if tc.want != "" {
				assert.Equal(t, tc.want, out)
			}

			for _, s := range tc.contains {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestRun_WriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay", "config.yaml")

	_, err := execute(t, "--log-level", "error", "--config", path, "--write-config")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML(), data)

	assert.FileExists(t, filepath.Join(filepath.Dir(path), config.SchemaFileName))
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "apiVersion: relay.macropower.dev/v1beta1\nkind: Configuration\ncommands:\n  - name: x\n    reentrancy: sometimes\n")

	_, err := execute(t, "--log-level", "error", "--config", path, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
