package config

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/macropower/relay/api"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/schema"
	"github.com/macropower/relay/pkg/yaml"
)

// Validator validates decoded configuration data.
type Validator interface {
	Validate(data any) error
}

// LoaderOpt configures a [Loader].
type LoaderOpt func(*Loader)

// WithValidator replaces the schema validator. A nil validator skips schema
// validation.
func WithValidator(v Validator) LoaderOpt {
	return func(l *Loader) {
		l.validator = v
	}
}

// WithEnvironment sets the CEL environment used to compile predicates.
func WithEnvironment(env *expr.Environment) LoaderOpt {
	return func(l *Loader) {
		l.env = env
	}
}

// WithColor renders error excerpts with ANSI colors.
func WithColor(color bool) LoaderOpt {
	return func(l *Loader) {
		l.color = color
	}
}

// Loader decodes and validates a configuration document.
type Loader struct {
	validator Validator
	env       *expr.Environment
	data      []byte
	color     bool
}

// NewLoaderFromBytes creates a [Loader] for data.
func NewLoaderFromBytes(data []byte, opts ...LoaderOpt) (*Loader, error) {
	l := &Loader{data: data}

	v, err := DefaultValidator()
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	l.validator = v

	for _, opt := range opts {
		opt(l)
	}

	if l.env == nil {
		l.env, err = expr.NewEnvironment()
		if err != nil {
			return nil, err
		}
	}

	return l, nil
}

// NewLoaderFromFile creates a [Loader] for the file at path.
func NewLoaderFromFile(path string, opts ...LoaderOpt) (*Loader, error) {
	data, err := api.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return NewLoaderFromBytes(data, opts...)
}

// Environment returns the CEL environment predicates are compiled with.
func (l *Loader) Environment() *expr.Environment {
	return l.env
}

// Validate checks the document against the JSON schema.
func (l *Loader) Validate() error {
	var doc any

	err := yaml.NewDecoder(bytes.NewReader(l.data), false).Decode(&doc)
	if err != nil {
		return l.wrap(err)
	}

	if l.validator == nil {
		return nil
	}

	err = l.validator.Validate(doc)
	if err != nil {
		return l.wrap(err)
	}

	return nil
}

// Load decodes the document, applies defaults and runs [Config.Validate].
// It does not validate against the schema; see [Loader.Validate].
func (l *Loader) Load() (*Config, error) {
	c := &Config{}

	err := yaml.NewDecoder(bytes.NewReader(l.data), true).Decode(c)
	if err != nil {
		return nil, l.wrap(err)
	}

	c.EnsureDefaults()

	err = c.Validate(l.env)
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// ValidateAndLoad runs [Loader.Validate] and then [Loader.Load].
func (l *Loader) ValidateAndLoad() (*Config, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	return l.Load()
}

func (l *Loader) wrap(err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return yaml.NewError(
			fmt.Errorf("%w: %s", schema.ErrSchemaValidation, verr.Detail),
			yaml.WithPath(verr.Path),
			yaml.WithSource(l.data),
			yaml.WithColor(l.color),
		)
	}

	return yaml.Wrap(err, yaml.WithSource(l.data), yaml.WithColor(l.color))
}
