package yaml

import (
	"github.com/goccy/go-yaml"
)

// Marshal encodes v as one YAML document, indented by two spaces with
// sequences indented under their key, the layout of relay's config files.
func Marshal(v any) ([]byte, error) {
	return yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true)) //nolint:wrapcheck // Callers add context.
}
