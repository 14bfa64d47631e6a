package strategy

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// Builtin is a static strategy template.
type Builtin struct {
	StrategyName string
	Fields       []string
	Type         domain.ProbeType
	Description  string
	// Guidance is appended to the prompt. {field} and {value} are substituted.
	Guidance string
}

func (b Builtin) Name() string                { return b.StrategyName }
func (b Builtin) ApplicableFields() []string  { return b.Fields }
func (b Builtin) ProbeType() domain.ProbeType { return b.Type }

func (b Builtin) GeneratePrompt(h *domain.Hypothesis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Strategy: %s (%s).\n", b.StrategyName, b.Description)
	fmt.Fprintf(&sb, "We are trying to determine the user's %s. The candidate being tested is %q (current confidence %.2f).\n",
		humanField(h.Field), h.SuspectedValue, h.Confidence)
	if b.Guidance != "" {
		sb.WriteString(strings.NewReplacer("{field}", humanField(h.Field), "{value}", h.SuspectedValue).Replace(b.Guidance))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Ask a single %s question. Do not mention astrology or Human Design terms directly.", b.Type)
	return sb.String()
}

func humanField(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// Builtins returns the static strategy table registered at start-up.
func Builtins() []Template {
	return []Template{
		Builtin{
			StrategyName: "physical_appearance",
			Fields:       []string{"rising_sign"},
			Type:         domain.ProbeTypeBinaryChoice,
			Description:  "contrast two physical impressions",
			Guidance:     "Offer two descriptions of how people look or carry themselves; the first should fit {value}.",
		},
		Builtin{
			StrategyName: "first_impression",
			Fields:       []string{"rising_sign"},
			Type:         domain.ProbeTypeSlider,
			Description:  "how strangers read the user",
			Guidance:     "Ask how strongly a first-impression trait typical of {value} matches how others see them.",
		},
		Builtin{
			StrategyName: "life_approach",
			Fields:       []string{"rising_sign", "sun_sign"},
			Type:         domain.ProbeTypeReflection,
			Description:  "open reflection on approach to new situations",
			Guidance:     "Invite a short reflection on how they start new things.",
		},
		Builtin{
			StrategyName: "emotional_pattern",
			Fields:       []string{"moon_sign"},
			Type:         domain.ProbeTypeBinaryChoice,
			Description:  "contrast two emotional responses",
			Guidance:     "Offer two ways of reacting under stress; the first should fit a {value} moon.",
		},
		Builtin{
			StrategyName: "energy_pattern",
			Fields:       []string{"type"},
			Type:         domain.ProbeTypeSlider,
			Description:  "sustained energy across the day",
			Guidance:     "Ask how consistent their energy is when doing work they enjoy, as a {value} would describe it.",
		},
		Builtin{
			StrategyName: "decision_making",
			Fields:       []string{"authority"},
			Type:         domain.ProbeTypeBinaryChoice,
			Description:  "how the user arrives at good decisions",
			Guidance:     "Offer two ways of making an important decision; the first should fit {value} authority.",
		},
		Builtin{
			StrategyName: "role_pattern",
			Fields:       []string{"profile"},
			Type:         domain.ProbeTypeReflection,
			Description:  "recurring roles in groups",
			Guidance:     "Invite a reflection on the role they usually end up playing in groups.",
		},
		Builtin{
			StrategyName: "direct_confirmation",
			Fields:       []string{"rising_sign", "moon_sign", "sun_sign", "type", "profile", "authority"},
			Type:         domain.ProbeTypeConfirmation,
			Description:  "ask the user to confirm the candidate",
			Guidance:     "Briefly describe {value} as a {field} in everyday terms and ask whether it fits.",
		},
	}
}
