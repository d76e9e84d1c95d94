package extensions

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// schemaReflector builds flat, inline object schemas suitable for a tool's
// InputSchema — no $ref indirection and no top-level $schema/$id
// bookkeeping, since these are embedded directly in a tool definition, not
// published as standalone documents.
var schemaReflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// toolSchema reflects a Go struct into the map[string]any shape
// mcpclient.Tool.InputSchema expects (§4.3 extended: platform tool schemas
// are generated from Go structs, not hand-written maps).
func toolSchema(v any) map[string]any {
	schema := schemaReflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		panic(err) // programmer error: v must be a plain, reflectable struct
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		panic(err)
	}

	out := map[string]any{"type": "object"}
	if props, ok := raw["properties"]; ok {
		out["properties"] = props
	} else {
		out["properties"] = map[string]any{}
	}
	if required, ok := raw["required"]; ok {
		out["required"] = required
	}
	return out
}
