package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseToolArgs turns command arguments into MCP tool arguments. A single
// argument holding a JSON object is used as is; otherwise every argument must
// be key=value.
func parseToolArgs(args []string) (map[string]any, error) {
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(args[0]), &obj); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		return obj, nil
	}

	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimLeft(strings.TrimSpace(key), "-")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q: want key=value", arg)
		}
		out[key] = value
	}
	return out, nil
}

// coerceToolArgs converts string values to the types declared by the tool's
// input schema and checks required properties.
func coerceToolArgs(raw map[string]any, schema map[string]any) (map[string]any, error) {
	props, _ := schema["properties"].(map[string]any)

	out := make(map[string]any, len(raw))
	for key, value := range raw {
		prop, _ := props[key].(map[string]any)
		s, isString := value.(string)
		if prop == nil || !isString {
			out[key] = value
			continue
		}
		coerced, err := coerceString(s, schemaType(prop))
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		out[key] = coerced
	}

	var missing []string
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, ok := out[name]; name != "" && !ok {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func coerceString(s, typ string) (any, error) {
	switch typ {
	case "integer":
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("want integer, got %q", s)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("want number, got %q", s)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("want boolean, got %q", s)
		}
		return b, nil
	case "array":
		if !strings.HasPrefix(strings.TrimSpace(s), "[") {
			return splitList(s), nil
		}
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("want JSON array: %w", err)
		}
		return arr, nil
	case "object":
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("want JSON object: %w", err)
		}
		return obj, nil
	default:
		return s, nil
	}
}

func splitList(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func schemaType(schema map[string]any) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}
