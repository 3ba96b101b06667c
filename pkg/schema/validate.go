// Package schema validates decoded documents against a JSON schema and maps
// failures back to YAML paths.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrSchemaValidation is wrapped by every [ValidationError].
var ErrSchemaValidation = errors.New("schema validation")

// ValidationError is a schema failure located by a YAML path, which can be
// passed to [yaml.Path.AnnotateSource].
type ValidationError struct {
	Path   *yaml.Path // YAML path of the most specific failure.
	Detail string     // Validator message.
}

func (e *ValidationError) Error() string {
	if e.Path != nil {
		return fmt.Sprintf("error at %s: %s", e.Path.String(), e.Detail)
	}

	return "validation error: " + e.Detail
}

// Unwrap returns [ErrSchemaValidation].
func (e *ValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// Validator validates data against a JSON schema, using
// [github.com/santhosh-tekuri/jsonschema/v6].
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the JSON schema in schemaData, registered under id.
func NewValidator(id string, schemaData []byte) (*Validator, error) {
	var doc any
	if err := json.Unmarshal(schemaData, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	jss, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: jss}, nil
}

// Validate checks data, which must be a JSON-compatible value (as produced by
// decoding into any). Failures are returned as [*ValidationError].
func (v *Validator) Validate(data any) error {
	err := v.schema.Validate(data)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}

	return &ValidationError{
		Path:   pathOf(deepestLocation(verr)),
		Detail: verr.Error(),
	}
}

// deepestLocation returns the longest instance location among err and its
// causes.
func deepestLocation(err *jsonschema.ValidationError) []string {
	longest := err.InstanceLocation

	for _, cause := range err.Causes {
		if loc := deepestLocation(cause); len(loc) > len(longest) {
			longest = loc
		}
	}

	return longest
}

func pathOf(location []string) *yaml.Path {
	pb := &yaml.PathBuilder{}
	b := pb.Root()

	for _, part := range location {
		if i, err := strconv.ParseUint(part, 10, 0); err == nil {
			b = b.Index(uint(i))

			continue
		}

		b = b.Child(part)
	}

	return b.Build()
}
