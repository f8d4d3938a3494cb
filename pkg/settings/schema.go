package settings

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema generates the JSON Schema of the typed settings sections. Consumed by
// the config subcommand for editor integration.
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: false,
	}
	schema := reflector.Reflect(&Sections{})
	schema.Title = "prsentry settings"
	return json.MarshalIndent(schema, "", "  ")
}
