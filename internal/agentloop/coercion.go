package agentloop

import (
	"strconv"

	"github.com/corelane/agentrun/internal/extensions"
)

// coerceArguments converts string-valued primitives in args to the type
// declared by the tool's JSON schema — number/integer/boolean — leaving
// everything else (including nested objects/arrays) untouched, per §4.8 step
// 3a and §9's open-question resolution: only the first match of an
// array-typed schema is handled, nested objects/arrays pass through as-is.
func coerceArguments(args map[string]any, tool extensions.NamedTool) map[string]any {
	props, _ := tool.Tool.InputSchema["properties"].(map[string]any)
	if len(props) == 0 || len(args) == 0 {
		return args
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		schema, ok := props[k].(map[string]any)
		if !ok {
			out[k] = v
			continue
		}
		out[k] = coerceValue(v, schema)
	}
	return out
}

func coerceValue(v any, schema map[string]any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	switch t := schema["type"].(type) {
	case string:
		return coerceByType(s, t, v)
	case []any:
		// Array-typed schema (union of types): first match wins, per the
		// open-question resolution; anything else passes through unchanged.
		for _, entry := range t {
			name, _ := entry.(string)
			if name == "" {
				continue
			}
			coerced := coerceByType(s, name, v)
			if coerced != v {
				return coerced
			}
		}
		return v
	default:
		return v
	}
}

func coerceByType(s, typ string, original any) any {
	switch typ {
	case "number":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "integer":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "boolean":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return original
}
