package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports why an argument map does not satisfy a schema.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: argument %q: %s", e.Tool, e.Field, e.Reason)
}

// Validate checks args against the schema and returns a normalized copy:
// unknown keys dropped, absent optionals filled with defaults, values coerced
// to the declared type where a safe coercion exists. The input map is not
// modified. A missing required argument or an uncoercible value fails the
// whole call.
func Validate(schema Schema, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(schema.Args))

	for name, spec := range schema.Args {
		raw, present := args[name]
		if !present {
			if spec.Required {
				return nil, &ValidationError{Tool: schema.Name, Field: name, Reason: "missing required argument"}
			}
			if spec.Default != nil {
				out[name] = spec.Default
			}
			continue
		}
		val, err := coerce(spec.Type, raw)
		if err != nil {
			return nil, &ValidationError{Tool: schema.Name, Field: name, Reason: err.Error()}
		}
		out[name] = val
	}

	// Unknown extras are silently dropped; the planner sometimes pads calls
	// with keys the template does not take.
	return out, nil
}

func coerce(t ArgType, v any) (any, error) {
	switch t {
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case bool:
			return strconv.FormatBool(x), nil
		case float64:
			if x == math.Trunc(x) {
				return strconv.FormatInt(int64(x), 10), nil
			}
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		}
	case TypeInt:
		switch x := v.(type) {
		case int:
			return x, nil
		case float64:
			if x == math.Trunc(x) {
				return int(x), nil
			}
			return nil, fmt.Errorf("expected integer, got %v", x)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", x)
			}
			return n, nil
		}
	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(x)))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", x)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}
