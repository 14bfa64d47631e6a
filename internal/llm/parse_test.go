package llm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"question":"Q?"}`,
			want:  `{"question":"Q?"}`,
		},
		{
			name:  "fenced json block",
			input: "Here you go:\n```json\n{\"question\": \"Q?\"}\n```\nThanks",
			want:  `{"question": "Q?"}`,
		},
		{
			name:  "fence without language",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "prose around object",
			input: `Sure! {"question": "Q?", "options": ["a", "b"]} Hope that helps.`,
			want:  `{"question": "Q?", "options": ["a", "b"]}`,
		},
		{
			name:  "nested objects",
			input: `x {"mappings": {"0": {"Leo": 0.2}}} y {"other": true}`,
			want:  `{"mappings": {"0": {"Leo": 0.2}}}`,
		},
		{
			name:  "braces inside strings",
			input: `{"question": "Pick {one} of \"these\"}"}`,
			want:  `{"question": "Pick {one} of \"these\"}"}`,
		},
		{
			name:    "no object",
			input:   "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			input:   `{"question": "Q?"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSONObject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProbeContent(t *testing.T) {
	raw := "```json\n" + `{
  "question": "  Which fits you better?  ",
  "options": ["Bold entrance", "Quiet observer"],
  "mappings": {"0": {"Leo": 0.2}, "1": {"Virgo": 0.15}},
  "analysis_hints": {"look_for": ["confidence"]}
}` + "\n```"

	c, err := ParseProbeContent(raw)
	require.NoError(t, err)

	assert.Equal(t, "Which fits you better?", c.Question)
	assert.Equal(t, []string{"Bold entrance", "Quiet observer"}, c.Options)
	want := map[string]map[string]float64{"0": {"Leo": 0.2}, "1": {"Virgo": 0.15}}
	if diff := cmp.Diff(want, c.DeltaTable()); diff != "" {
		t.Errorf("DeltaTable mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, c.AnalysisHints, "look_for")
}

func TestParseProbeContent_ConfidenceMappingsKey(t *testing.T) {
	c, err := ParseProbeContent(`{"question": "Q?", "confidence_mappings": {"yes": {"Leo": 0.3}}}`)
	require.NoError(t, err)
	assert.Equal(t, 0.3, c.DeltaTable()["yes"]["Leo"])
}

func TestParseProbeContent_Errors(t *testing.T) {
	_, err := ParseProbeContent(`{"options": ["a"]}`)
	assert.ErrorIs(t, err, ErrMissingQuestion)

	_, err = ParseProbeContent(`{"question": 12}`)
	assert.Error(t, err)

	_, err = ParseProbeContent("nothing here")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}
