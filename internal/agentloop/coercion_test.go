package agentloop

import (
	"testing"

	"github.com/corelane/agentrun/internal/extensions"
	"github.com/corelane/agentrun/internal/mcpclient"
)

func schemaTool(props map[string]any) extensions.NamedTool {
	return extensions.NamedTool{
		FullName: "dev__run",
		Tool: mcpclient.Tool{
			Name: "run",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": props,
			},
		},
	}
}

func TestCoerceArgumentsScalarTypes(t *testing.T) {
	tool := schemaTool(map[string]any{
		"count":   map[string]any{"type": "integer"},
		"ratio":   map[string]any{"type": "number"},
		"enabled": map[string]any{"type": "boolean"},
		"label":   map[string]any{"type": "string"},
	})

	args := map[string]any{
		"count":   "3",
		"ratio":   "1.5",
		"enabled": "true",
		"label":   "unchanged",
	}

	out := coerceArguments(args, tool)

	if v, ok := out["count"].(int64); !ok || v != 3 {
		t.Fatalf("expected count coerced to int64(3), got %#v", out["count"])
	}
	if v, ok := out["ratio"].(float64); !ok || v != 1.5 {
		t.Fatalf("expected ratio coerced to float64(1.5), got %#v", out["ratio"])
	}
	if v, ok := out["enabled"].(bool); !ok || v != true {
		t.Fatalf("expected enabled coerced to bool(true), got %#v", out["enabled"])
	}
	if out["label"] != "unchanged" {
		t.Fatalf("expected string-typed arg to pass through, got %#v", out["label"])
	}
}

func TestCoerceArgumentsUnionTypeFirstMatch(t *testing.T) {
	tool := schemaTool(map[string]any{
		"value": map[string]any{"type": []any{"integer", "string"}},
	})

	out := coerceArguments(map[string]any{"value": "42"}, tool)
	if v, ok := out["value"].(int64); !ok || v != 42 {
		t.Fatalf("expected first-match union coercion to int64(42), got %#v", out["value"])
	}

	out2 := coerceArguments(map[string]any{"value": "not-a-number"}, tool)
	if out2["value"] != "not-a-number" {
		t.Fatalf("expected non-numeric string to fall through union unchanged, got %#v", out2["value"])
	}
}

func TestCoerceArgumentsLeavesNestedAndUnknownUntouched(t *testing.T) {
	tool := schemaTool(map[string]any{
		"meta": map[string]any{"type": "object"},
	})

	nested := map[string]any{"nested": "1"}
	out := coerceArguments(map[string]any{"meta": nested, "undeclared": "5"}, tool)

	if got, ok := out["meta"].(map[string]any); !ok || got["nested"] != "1" {
		t.Fatalf("expected object-typed arg to pass through untouched, got %#v", out["meta"])
	}
	if out["undeclared"] != "5" {
		t.Fatalf("expected arg with no schema entry to pass through untouched, got %#v", out["undeclared"])
	}
}

func TestCoerceByTypeInvalidValuesPassThrough(t *testing.T) {
	tool := schemaTool(map[string]any{
		"count": map[string]any{"type": "integer"},
	})
	out := coerceArguments(map[string]any{"count": "not-an-int"}, tool)
	if out["count"] != "not-an-int" {
		t.Fatalf("expected unparseable integer string to pass through unchanged, got %#v", out["count"])
	}
}
