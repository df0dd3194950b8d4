// Package template renders action parameters against the execution
// context. String leaves may embed {{ path }} expressions over trigger,
// vars and steps.<nodeId>.outputs; everything else passes through.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Model is the read-only view exposed to templates. Callers hand the
// engine a deep snapshot; the engine itself never mutates it.
type Model struct {
	Trigger map[string]any
	Vars    map[string]any
	Steps   map[string]map[string]any // nodeId -> outputs
}

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Position int
	Message  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at %d: %s", e.Position, e.Message)
}

// ReferenceError reports a missing path under the strict marker.
type ReferenceError struct {
	Path string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("template reference not found: %s", e.Path)
}

// Engine substitutes template expressions. Pure and deterministic:
// identical inputs always render identically.
type Engine struct{}

// NewEngine creates a template engine
func NewEngine() *Engine {
	return &Engine{}
}

// Render walks a JSON-shaped value and substitutes expressions in its
// string leaves. A string that is exactly one expression preserves the
// referenced value's JSON type.
func (e *Engine) Render(value any, model *Model) (any, error) {
	doc, err := model.encode()
	if err != nil {
		return nil, err
	}
	return e.renderValue(value, doc)
}

// encode flattens the model into one JSON document for path lookup.
func (m *Model) encode() ([]byte, error) {
	steps := make(map[string]any, len(m.Steps))
	for nodeID, outputs := range m.Steps {
		steps[nodeID] = map[string]any{"outputs": outputs}
	}

	doc, err := json.Marshal(map[string]any{
		"trigger": m.Trigger,
		"vars":    m.Vars,
		"steps":   steps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode template model: %w", err)
	}
	return doc, nil
}

func (e *Engine) renderValue(value any, doc []byte) (any, error) {
	switch v := value.(type) {
	case string:
		return e.renderString(v, doc)
	case map[string]any:
		rendered := make(map[string]any, len(v))
		for key, item := range v {
			out, err := e.renderValue(item, doc)
			if err != nil {
				return nil, fmt.Errorf("failed to render key %s: %w", key, err)
			}
			rendered[key] = out
		}
		return rendered, nil
	case []any:
		rendered := make([]any, len(v))
		for i, item := range v {
			out, err := e.renderValue(item, doc)
			if err != nil {
				return nil, err
			}
			rendered[i] = out
		}
		return rendered, nil
	default:
		// Primitives pass through untouched
		return value, nil
	}
}

type expression struct {
	raw    string // full {{ ... }} text
	path   string
	strict bool
	start  int
	end    int // index past the closing braces
}

// scan returns the expressions embedded in s in order of appearance.
func scan(s string) ([]expression, error) {
	var exprs []expression

	for i := 0; i < len(s); {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			break
		}
		open += i

		closing := strings.Index(s[open:], "}}")
		if closing < 0 {
			return nil, &SyntaxError{Position: open, Message: "unterminated expression"}
		}
		closing += open

		inner := strings.TrimSpace(s[open+2 : closing])
		strict := false
		if strings.HasPrefix(inner, "!") {
			strict = true
			inner = strings.TrimSpace(inner[1:])
		}
		if inner == "" {
			return nil, &SyntaxError{Position: open, Message: "empty expression"}
		}

		exprs = append(exprs, expression{
			raw:    s[open : closing+2],
			path:   inner,
			strict: strict,
			start:  open,
			end:    closing + 2,
		})
		i = closing + 2
	}

	return exprs, nil
}

// renderString substitutes every expression in s. When the whole string is
// one expression the referenced value is returned with its JSON type.
func (e *Engine) renderString(s string, doc []byte) (any, error) {
	exprs, err := scan(s)
	if err != nil {
		return nil, err
	}
	if len(exprs) == 0 {
		return s, nil
	}

	if len(exprs) == 1 && exprs[0].start == 0 && exprs[0].end == len(s) {
		return lookup(doc, exprs[0])
	}

	var b strings.Builder
	last := 0
	for _, ex := range exprs {
		b.WriteString(s[last:ex.start])
		val, err := lookup(doc, ex)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(val))
		last = ex.end
	}
	b.WriteString(s[last:])

	return b.String(), nil
}

func lookup(doc []byte, ex expression) (any, error) {
	result := gjson.GetBytes(doc, ex.path)
	if !result.Exists() {
		if ex.strict {
			return nil, &ReferenceError{Path: ex.path}
		}
		return "", nil
	}
	return result.Value(), nil
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
