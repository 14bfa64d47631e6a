package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

const systemPrompt = `You write short, friendly self-discovery questions. You always answer with a single JSON object and nothing else.`

const probePrompt = `We are refining an uncertain profile field for a user.

Field: %s (module: %s)
Candidate being tested: %s (current confidence %.2f)
Other candidates: %s
Strategy: %s
Probe type: %s

%s

Respond ONLY with a JSON object. No markdown, no explanation. Shape:
{
  "question": "the question to show the user",
  "options": ["option A", "option B"],
  "mappings": {"<response_key>": {"<candidate value>": <confidence delta between -0.3 and 0.3>}},
  "analysis_hints": {"look_for": ["..."]}
}

Response keys by probe type:
- binary_choice: the option index as a string ("0", "1", ...)
- slider (0-10): "low" (0-3), "mid" (4-7), "high" (8-10)
- confirmation: "yes" or "no"
- reflection: "default"

Omit "options" unless the probe type is binary_choice.`

// BuildProbePrompt renders the default prompt for a hypothesis. strategyPrompt, when set, is
// inserted as strategy-specific guidance. siblings are the other candidate values of the field.
func BuildProbePrompt(h *domain.Hypothesis, siblings []string, strategyName string, probeType domain.ProbeType, strategyPrompt string) string {
	others := "none"
	if len(siblings) > 0 {
		sorted := append([]string(nil), siblings...)
		sort.Strings(sorted)
		others = strings.Join(sorted, ", ")
	}
	guidance := strategyPrompt
	if guidance == "" {
		guidance = fmt.Sprintf("Ask one %s question that helps tell %s apart from the other candidates.", probeType, h.SuspectedValue)
	}
	return fmt.Sprintf(probePrompt,
		h.Field, h.Module,
		h.SuspectedValue, h.Confidence,
		others,
		strategyName,
		probeType,
		guidance,
	)
}
