package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/macropower/relay/pkg/schema"
)

const (
	// SchemaFileName is the file name the JSON schema is written under.
	SchemaFileName = "config.v1beta1.json"

	// SchemaID identifies the JSON schema.
	SchemaID = "https://github.com/macropower/relay/pkg/config/" + SchemaFileName
)

var (
	schemaOnce = sync.OnceValue(func() []byte {
		r := &jsonschema.Reflector{
			DoNotReference: true,
		}

		jss := r.Reflect(&Config{})
		jss.ID = SchemaID
		jss.Title = "relay configuration"

		b, err := json.MarshalIndent(jss, "", "  ")
		if err != nil {
			panic(fmt.Errorf("marshal schema: %w", err))
		}

		return b
	})

	validatorOnce = sync.OnceValues(func() (*schema.Validator, error) {
		return schema.NewValidator(SchemaID, Schema())
	})
)

// Schema returns the JSON schema of [Config].
func Schema() []byte {
	return schemaOnce()
}

// DefaultValidator returns a validator for the schema returned by [Schema].
func DefaultValidator() (*schema.Validator, error) {
	return validatorOnce()
}
