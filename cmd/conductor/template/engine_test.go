package template

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() *Model {
	return &Model{
		Trigger: map[string]any{"text": "hello", "count": float64(3)},
		Vars:    map[string]any{"env": "staging"},
		Steps: map[string]map[string]any{
			"a": {"echo": "hi", "ok": true, "score": float64(42)},
		},
	}
}

func TestRender_PlainStringPassesThrough(t *testing.T) {
	out, err := NewEngine().Render("no expressions here", testModel())
	require.NoError(t, err)
	assert.Equal(t, "no expressions here", out)
}

func TestRender_Interpolation(t *testing.T) {
	out, err := NewEngine().Render("{{ steps.a.outputs.echo }}!", testModel())
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}

func TestRender_TriggerAndVars(t *testing.T) {
	out, err := NewEngine().Render("{{ trigger.text }} on {{ vars.env }}", testModel())
	require.NoError(t, err)
	assert.Equal(t, "hello on staging", out)
}

func TestRender_WholeStringPreservesType(t *testing.T) {
	e := NewEngine()

	out, err := e.Render("{{ steps.a.outputs.score }}", testModel())
	require.NoError(t, err)
	assert.Equal(t, float64(42), out)

	out, err = e.Render("{{ steps.a.outputs.ok }}", testModel())
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestRender_EmbeddedNumberStringifies(t *testing.T) {
	out, err := NewEngine().Render("score={{ steps.a.outputs.score }}", testModel())
	require.NoError(t, err)
	assert.Equal(t, "score=42", out)
}

func TestRender_MissingPathRendersEmpty(t *testing.T) {
	out, err := NewEngine().Render("[{{ steps.b.outputs.nothing }}]", testModel())
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRender_StrictMarkerRejectsMissingPath(t *testing.T) {
	_, err := NewEngine().Render("{{! steps.b.outputs.nothing }}", testModel())
	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "steps.b.outputs.nothing", refErr.Path)
}

func TestRender_UnterminatedExpression(t *testing.T) {
	_, err := NewEngine().Render("broken {{ trigger.text", testModel())
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, 7, synErr.Position)
}

func TestRender_EmptyExpression(t *testing.T) {
	_, err := NewEngine().Render("{{  }}", testModel())
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}

func TestRender_NestedStructure(t *testing.T) {
	params := map[string]any{
		"message": "{{ trigger.text }}",
		"meta": map[string]any{
			"env":   "{{ vars.env }}",
			"fixed": float64(7),
		},
		"tags": []any{"{{ steps.a.outputs.echo }}", "static"},
	}

	out, err := NewEngine().Render(params, testModel())
	require.NoError(t, err)

	rendered := out.(map[string]any)
	assert.Equal(t, "hello", rendered["message"])
	assert.Equal(t, "staging", rendered["meta"].(map[string]any)["env"])
	assert.Equal(t, float64(7), rendered["meta"].(map[string]any)["fixed"])
	assert.Equal(t, []any{"hi", "static"}, rendered["tags"])
}

func TestRender_Deterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("identical inputs render identically", prop.ForAll(
		func(text string, n int) bool {
			model := &Model{
				Trigger: map[string]any{"text": text, "n": float64(n)},
				Vars:    map[string]any{},
				Steps:   map[string]map[string]any{},
			}
			tpl := "t={{ trigger.text }} n={{ trigger.n }}"
			a, errA := NewEngine().Render(tpl, model)
			b, errB := NewEngine().Render(tpl, model)
			return errA == nil && errB == nil && a == b
		},
		gen.AlphaString(),
		gen.IntRange(0, 1_000_000),
	))

	properties.Property("unreferenced model paths do not affect output", prop.ForAll(
		func(noise string) bool {
			tpl := "{{ trigger.text }}"
			m1 := &Model{Trigger: map[string]any{"text": "fixed"}}
			m2 := &Model{
				Trigger: map[string]any{"text": "fixed", "noise": noise},
				Vars:    map[string]any{"noise": noise},
			}
			a, errA := NewEngine().Render(tpl, m1)
			b, errB := NewEngine().Render(tpl, m2)
			return errA == nil && errB == nil && a == b
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
