package api_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/api"
)

//nolint:paralleltest // We need to set environment variables, so run tests sequentially.
func TestGetConfigPath(t *testing.T) {
	tcs := map[string]struct {
		xdg  string
		home string
		want string
	}{
		"XDG_CONFIG_HOME is set": {
			xdg:  "/custom/config",
			home: "/test/home",
			want: "/custom/config/relay/config.yaml",
		},
		"XDG_CONFIG_HOME is empty": {
			home: "/test/home",
			want: "/test/home/.config/relay/config.yaml",
		},
		"nothing is set": {
			want: filepath.Join(os.TempDir(), "relay", "config.yaml"), //nolint:usetesting // Needs to equal host.
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tc.xdg)
			t.Setenv("HOME", tc.home)

			assert.Equal(t, tc.want, api.GetConfigPath("config.yaml"))
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("kind: Configuration\n"), 0o600))

	data, err := api.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "kind: Configuration\n", string(data))

	_, err = api.ReadFile(dir)
	require.ErrorIs(t, err, api.ErrNotRegularFile)

	_, err = api.ReadFile(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalYAML(t *testing.T) {
	t.Parallel()

	b, err := api.MarshalYAML(map[string]any{"kind": "Configuration"})
	require.NoError(t, err)
	assert.Equal(t, "kind: Configuration\n", string(b))
}

func TestWriteDefaultFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	written, err := api.WriteDefaultFile(path, []byte("a: 1\n"), false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = api.WriteDefaultFile(path, []byte("a: 2\n"), false)
	require.NoError(t, err)
	assert.False(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(data))

	written, err = api.WriteDefaultFile(path, []byte("a: 3\n"), true)
	require.NoError(t, err)
	assert.True(t, written)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a: 3\n", string(data))

	backups, err := filepath.Glob(path + ".*.old")
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	_, err = api.WriteDefaultFile(dir, []byte("x"), true)
	require.ErrorIs(t, err, api.ErrNotRegularFile)
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	want := filepath.Join(root, "a", ".relay.yaml")
	require.NoError(t, os.WriteFile(want, []byte("kind: Configuration\n"), 0o600))

	got, err := api.FindConfigFile(deep, ".relay.yaml", ".relay.yml")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	file := filepath.Join(deep, "main.go")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	got, err = api.FindConfigFile(file, ".relay.yaml")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = api.FindConfigFile(deep, "nonexistent.yaml")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = api.FindConfigFile(filepath.Join(root, "missing"), ".relay.yaml")
	require.Error(t, err)
}
