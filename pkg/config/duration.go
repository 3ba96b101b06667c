package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Duration is a [time.Duration] written as a Go duration string, e.g. "1m30s".
type Duration struct {
	time.Duration
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}

	d.Duration = v

	return nil
}

// JSONSchema describes [Duration] as a string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "string",
		Title:    "Duration",
		Pattern:  `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Examples: []any{"200ms", "1m30s"},
	}
}
