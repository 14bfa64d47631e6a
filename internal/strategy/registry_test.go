package strategy

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

func names(ts []Template) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name())
	}
	return out
}

func TestStrategiesForField(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		field string
		want  []string
	}{
		{"rising_sign", []string{"physical_appearance", "first_impression", "life_approach", "direct_confirmation"}},
		{"moon_sign", []string{"emotional_pattern", "direct_confirmation"}},
		{"authority", []string{"decision_making", "direct_confirmation"}},
		{"life_path", nil},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got := names(r.StrategiesForField(tt.field))
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("StrategiesForField(%q) mismatch (-want +got):\n%s", tt.field, diff)
			}
		})
	}
}

func TestRegister_IsIdempotent(t *testing.T) {
	r := NewRegistry()
	b := Builtin{StrategyName: "x", Fields: []string{"f"}, Type: domain.ProbeTypeSlider}

	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(b))

	assert.Equal(t, []string{"x"}, r.Names())
	assert.Len(t, r.StrategiesForField("f"), 1)
}

func TestRegister_Rejects(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(Builtin{Fields: []string{"f"}}), ErrStrategyNameMissing)
	assert.ErrorIs(t, r.Register(Builtin{StrategyName: "x"}), ErrStrategyNoFields)
}

func TestUnregister(t *testing.T) {
	r := NewDefaultRegistry()
	require.True(t, r.Unregister("physical_appearance"))
	assert.False(t, r.Unregister("physical_appearance"))

	_, ok := r.Get("physical_appearance")
	assert.False(t, ok)
	assert.NotContains(t, names(r.StrategiesForField("rising_sign")), "physical_appearance")
}

func TestBuiltinGeneratePrompt(t *testing.T) {
	r := NewDefaultRegistry()
	tmpl, ok := r.Get("physical_appearance")
	require.True(t, ok)

	h := &domain.Hypothesis{Field: "rising_sign", SuspectedValue: "Leo", Confidence: 0.25}
	prompt := tmpl.GeneratePrompt(h)

	assert.Contains(t, prompt, "rising sign")
	assert.Contains(t, prompt, `"Leo"`)
	assert.Contains(t, prompt, "fit Leo")
	assert.Contains(t, prompt, string(domain.ProbeTypeBinaryChoice))
	assert.False(t, strings.Contains(prompt, "%!"), "prompt has formatting errors: %s", prompt)
}

func TestBuiltinsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, b := range Builtins() {
		assert.False(t, seen[b.Name()], "duplicate builtin %s", b.Name())
		seen[b.Name()] = true
		assert.True(t, b.ProbeType().IsValid(), b.Name())
		assert.NotEmpty(t, b.ApplicableFields(), b.Name())
	}
}
