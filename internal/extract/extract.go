// Package extract pulls structured tool calls out of free-form planner
// output. The planner is asked to emit a JSON array of {"name", "args"}
// objects, but models drift: code fences, single quotes, Python literals,
// stray prose. Recovery is limited to textual normalization feeding a strict
// JSON parse; nothing in here evaluates anything.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ansibot/ansibot/internal/tools"
)

// ErrNoSegment is returned when the text contains no bracketed list at all.
// This is the common case for plain conversational replies, not a fault.
var ErrNoSegment = errors.New("no tool-call segment in text")

// ParseError reports a bracketed segment that could not be parsed as a
// literal list by any recovery strategy.
type ParseError struct {
	Segment string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tool-call segment not parseable: %s", e.Reason)
}

// ShapeError reports a parsed element that is not a {"name", "args"} pair.
type ShapeError struct {
	Index  int
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tool call %d malformed: %s", e.Index, e.Reason)
}

// ToolCall is one validated call ready for presentation and execution.
// Args has been normalized against the schema; treat both as immutable.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Extractor turns planner text into validated tool calls against a registry.
type Extractor struct {
	registry *tools.Registry
}

// New creates an extractor bound to a tool registry.
func New(registry *tools.Registry) *Extractor {
	return &Extractor{registry: registry}
}

// Extract returns every well-formed, schema-valid tool call found in text.
// Failures are per-element where possible: a malformed element or a call that
// fails validation is dropped and reported, without discarding its siblings.
// An unparseable segment or absent segment yields no calls.
func (e *Extractor) Extract(text string) ([]ToolCall, []error) {
	segment, ok := FirstLiteralSegment(text)
	if !ok {
		return nil, []error{ErrNoSegment}
	}

	elements, err := parseLiteralList(segment)
	if err != nil {
		return nil, []error{err}
	}

	var calls []ToolCall
	var errs []error
	for i, el := range elements {
		name, args, shapeErr := callShape(i, el)
		if shapeErr != nil {
			errs = append(errs, shapeErr)
			continue
		}
		schema, known := e.registry.Get(name)
		if !known {
			errs = append(errs, &ShapeError{Index: i, Reason: fmt.Sprintf("unknown tool %q", name)})
			continue
		}
		normalized, valErr := tools.Validate(schema, args)
		if valErr != nil {
			errs = append(errs, valErr)
			continue
		}
		calls = append(calls, ToolCall{
			ID:   "call-" + uuid.NewString(),
			Name: name,
			Args: normalized,
		})
	}
	return calls, errs
}

// callShape checks that a parsed element is a mapping with exactly the two
// keys "name" (string) and "args" (mapping).
func callShape(idx int, el any) (string, map[string]any, error) {
	m, ok := el.(map[string]any)
	if !ok {
		return "", nil, &ShapeError{Index: idx, Reason: fmt.Sprintf("expected object, got %T", el)}
	}
	if len(m) != 2 {
		return "", nil, &ShapeError{Index: idx, Reason: fmt.Sprintf("expected exactly name and args keys, got %d keys", len(m))}
	}
	nameVal, ok := m["name"]
	if !ok {
		return "", nil, &ShapeError{Index: idx, Reason: "missing name key"}
	}
	name, ok := nameVal.(string)
	if !ok || name == "" {
		return "", nil, &ShapeError{Index: idx, Reason: "name is not a string"}
	}
	argsVal, ok := m["args"]
	if !ok {
		return "", nil, &ShapeError{Index: idx, Reason: "missing args key"}
	}
	args, ok := argsVal.(map[string]any)
	if !ok {
		return "", nil, &ShapeError{Index: idx, Reason: "args is not an object"}
	}
	return name, args, nil
}

// FirstLiteralSegment returns the first balanced top-level [...] block in
// text. The scan is string-aware so brackets inside quoted values do not
// unbalance it.
func FirstLiteralSegment(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	var quote byte
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			if depth > 0 {
				inString = true
				quote = c
			}
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// parseLiteralList applies the recovery strategies in order. Each strategy
// produces candidate text that must parse as a JSON array, or the next one is
// tried.
func parseLiteralList(segment string) ([]any, error) {
	strategies := []func(string) string{
		func(s string) string { return s },
		stripCodeFence,
		singleToDoubleQuotes,
		pythonLiterals,
		func(s string) string { return pythonLiterals(singleToDoubleQuotes(s)) },
	}

	var lastErr error
	for _, normalize := range strategies {
		candidate := strings.TrimSpace(normalize(segment))
		var parsed any
		dec := json.NewDecoder(strings.NewReader(candidate))
		dec.UseNumber()
		if err := dec.Decode(&parsed); err != nil {
			lastErr = err
			continue
		}
		arr, ok := parsed.([]any)
		if !ok {
			lastErr = fmt.Errorf("top level is not a list")
			continue
		}
		return decodeNumbers(arr), nil
	}
	reason := "all strategies failed"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return nil, &ParseError{Segment: segment, Reason: reason}
}

// decodeNumbers converts json.Number values back to int or float64 so
// downstream validation sees ordinary Go values.
func decodeNumbers(v []any) []any {
	out := make([]any, len(v))
	for i, el := range v {
		out[i] = decodeNumber(el)
	}
	return out
}

func decodeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = decodeNumber(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = decodeNumber(inner)
		}
		return out
	default:
		return v
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// singleToDoubleQuotes rewrites single-quoted strings as double-quoted ones.
// Double-quoted regions pass through untouched so mixed output survives.
func singleToDoubleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			b.WriteByte(c)
			escaped = true
		case '\'':
			if inDouble {
				b.WriteByte(c)
			} else {
				b.WriteByte('"')
				inSingle = !inSingle
			}
		case '"':
			if inSingle {
				// A bare double quote inside a single-quoted string must be
				// escaped once the delimiters become double quotes.
				b.WriteString(`\"`)
			} else {
				b.WriteByte(c)
				inDouble = !inDouble
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// pythonLiterals rewrites bare True/False/None to their JSON spellings,
// outside of strings only.
func pythonLiterals(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if replaced, n := matchBareWord(s[i:]); n > 0 {
			b.WriteString(replaced)
			i += n - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func matchBareWord(s string) (string, int) {
	for word, repl := range map[string]string{
		"True":  "true",
		"False": "false",
		"None":  "null",
	} {
		if strings.HasPrefix(s, word) {
			if len(s) == len(word) || !isWordByte(s[len(word)]) {
				return repl, len(word)
			}
		}
	}
	return "", 0
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
