// Package api holds relay's configuration API types and the file helpers
// shared by every configuration kind.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/macropower/relay/pkg/yaml"
)

// AppName names the configuration directory.
const AppName = "relay"

// ErrNotRegularFile is returned when a path exists but is not a regular file.
var ErrNotRegularFile = errors.New("not a regular file")

// GetConfigPath returns the path of filename in the user's config directory.
// It checks $XDG_CONFIG_HOME first, then ~/.config, and finally a temp
// directory.
func GetConfigPath(filename string) string {
	if xdgHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgHome != "" {
		return filepath.Join(xdgHome, AppName, filename)
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".config", AppName, filename)
	}

	tmpPath := filepath.Join(os.TempDir(), AppName, filename)

	slog.Warn("could not determine user config directory, using temp path",
		slog.String("path", tmpPath),
		slog.Any("error", fmt.Errorf("$XDG_CONFIG_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpPath
}

// ReadFile reads a regular file.
func ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// MarshalYAML serializes obj with the relay YAML encoder settings.
func MarshalYAML(obj any) ([]byte, error) {
	b, err := yaml.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	return b, nil
}

// FindConfigFile searches start and its parents for the first of fileNames.
// It returns an empty string if none is found.
func FindConfigFile(start string, fileNames ...string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		for _, name := range fileNames {
			candidate := filepath.Join(dir, name)
			if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}

		dir = parent
	}
}

// WriteDefaultFile writes data to path unless a file already exists there.
// With force, an existing file is renamed to a timestamped backup first.
// It reports whether the file was written.
func WriteDefaultFile(path string, data []byte, force bool) (bool, error) {
	info, err := os.Stat(path)

	switch {
	case err == nil && !info.Mode().IsRegular():
		return false, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	case err == nil && !force:
		slog.Debug("file already exists, skipping write", slog.String("path", path))

		return false, nil
	case err == nil:
		backup := fmt.Sprintf("%s.%d.old", path, time.Now().UnixNano())

		slog.Info("backing up existing file", slog.String("path", backup))

		if err := os.Rename(path, backup); err != nil {
			return false, fmt.Errorf("back up existing file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create directories: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("write file: %w", err)
	}

	slog.Info("wrote file", slog.String("path", path))

	return true, nil
}
