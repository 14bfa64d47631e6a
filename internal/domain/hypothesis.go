package domain

import (
	"time"
)

// DefaultMaxProbes is how many probes a single hypothesis may receive.
const DefaultMaxProbes = 3

// ResolutionMethod records how a hypothesis left the probing pool.
type ResolutionMethod string

const (
	ResolutionConfirmed  ResolutionMethod = "confirmed"
	ResolutionRefuted    ResolutionMethod = "refuted"
	ResolutionTimeout    ResolutionMethod = "timeout"
	ResolutionSuperseded ResolutionMethod = "superseded"
)

func ValidResolutionMethod(m string) bool {
	switch ResolutionMethod(m) {
	case ResolutionConfirmed, ResolutionRefuted, ResolutionTimeout, ResolutionSuperseded:
		return true
	}
	return false
}

// CoreFields are the fields whose hypotheses get a scheduling boost.
var CoreFields = map[string]bool{
	"rising_sign": true,
	"type":        true,
	"profile":     true,
	"authority":   true,
}

// Priority weights. Each term is capped at its weight.
const (
	closenessWeight = 0.4
	coreFieldWeight = 0.2
	freshnessWeight = 0.2
	evidenceWeight  = 0.2
)

// ClampConfidence bounds p to [0,1].
func ClampConfidence(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Evidence is one scored observation attached to a hypothesis.
type Evidence struct {
	ProbeID     string    `json:"probe_id"`
	ResponseKey string    `json:"response_key"`
	Delta       float64   `json:"delta"`
	Note        string    `json:"note,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Hypothesis is one candidate value for one uncertain field.
// Once Resolved is set, confidence and probing state no longer change.
type Hypothesis struct {
	ID             string `json:"id"`
	Field          string `json:"field"`
	Module         string `json:"module"`
	SuspectedValue string `json:"suspected_value"`
	UserID         string `json:"user_id"`
	SessionID      string `json:"session_id,omitempty"`

	Confidence          float64 `json:"confidence"`
	InitialConfidence   float64 `json:"initial_confidence"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	Evidence       []Evidence `json:"evidence"`
	Contradictions []Evidence `json:"contradictions"`

	ProbesAttempted      int        `json:"probes_attempted"`
	MaxProbes            int        `json:"max_probes"`
	StrategiesUsed       []string   `json:"strategies_used"`
	RefinementStrategies []string   `json:"refinement_strategies,omitempty"`
	LastProbed           *time.Time `json:"last_probed,omitempty"`

	Resolved         bool             `json:"resolved"`
	ResolutionMethod ResolutionMethod `json:"resolution_method,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewHypothesis seeds a hypothesis from a declared candidate.
func NewHypothesis(id string, decl *UncertaintyDeclaration, field UncertaintyField, c Candidate, now time.Time) *Hypothesis {
	module := field.Module
	if module == "" {
		module = decl.Module
	}
	conf := ClampConfidence(c.Probability)
	return &Hypothesis{
		ID:                   id,
		Field:                field.Field,
		Module:               module,
		SuspectedValue:       c.Value,
		UserID:               decl.UserID,
		SessionID:            decl.SessionID,
		Confidence:           conf,
		InitialConfidence:    conf,
		ConfidenceThreshold:  field.Threshold(),
		Evidence:             []Evidence{},
		Contradictions:       []Evidence{},
		MaxProbes:            DefaultMaxProbes,
		StrategiesUsed:       []string{},
		RefinementStrategies: append([]string(nil), field.RefinementStrategies...),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// FieldKey identifies the field a hypothesis competes in.
func (h *Hypothesis) FieldKey() string {
	return h.Module + "/" + h.Field
}

// NeedsProbing is true while the hypothesis is open, below threshold and within its probe budget.
func (h *Hypothesis) NeedsProbing() bool {
	return !h.Resolved && h.Confidence < h.ConfidenceThreshold && h.ProbesAttempted < h.MaxProbes
}

// Priority ranks hypotheses for probing. It is 0 for anything that does not need probing.
func (h *Hypothesis) Priority() float64 {
	if !h.NeedsProbing() {
		return 0
	}

	var p float64
	switch {
	case h.Confidence >= 0.6:
		p += closenessWeight
	case h.Confidence >= 0.4:
		p += 0.3
	case h.Confidence >= 0.2:
		p += 0.2
	default:
		p += 0.1
	}

	if CoreFields[h.Field] {
		p += coreFieldWeight
	}

	if h.MaxProbes > 0 {
		p += freshnessWeight * (1 - float64(h.ProbesAttempted)/float64(h.MaxProbes))
	}

	if total := len(h.Evidence) + len(h.Contradictions); total > 0 {
		p += evidenceWeight * float64(len(h.Evidence)) / float64(total)
	}

	if p > 1 {
		return 1
	}
	return p
}

// UpdateConfidence applies delta and clamps the result. Resolved hypotheses are left untouched.
func (h *Hypothesis) UpdateConfidence(delta float64, now time.Time) float64 {
	if h.Resolved {
		return h.Confidence
	}
	h.Confidence = ClampConfidence(h.Confidence + delta)
	h.UpdatedAt = now
	return h.Confidence
}

// RecordEvidence files e as supporting evidence when its delta is positive, as a contradiction otherwise.
func (h *Hypothesis) RecordEvidence(e Evidence) {
	if h.Resolved {
		return
	}
	if e.Delta > 0 {
		h.Evidence = append(h.Evidence, e)
		return
	}
	h.Contradictions = append(h.Contradictions, e)
}

// WasContradicted reports whether any answer lowered the hypothesis. Zero-delta contradictions do not count.
func (h *Hypothesis) WasContradicted() bool {
	for _, c := range h.Contradictions {
		if c.Delta < 0 {
			return true
		}
	}
	return false
}

// MarkProbed records that a probe built with strategy was sent.
func (h *Hypothesis) MarkProbed(strategy string, now time.Time) {
	if h.Resolved {
		return
	}
	h.ProbesAttempted++
	h.StrategiesUsed = append(h.StrategiesUsed, strategy)
	t := now
	h.LastProbed = &t
	h.UpdatedAt = now
}

// HasUsedStrategy reports whether a probe with the named strategy was already sent.
func (h *Hypothesis) HasUsedStrategy(name string) bool {
	for _, s := range h.StrategiesUsed {
		if s == name {
			return true
		}
	}
	return false
}

// Resolve closes the hypothesis. It returns false if it was already resolved.
func (h *Hypothesis) Resolve(method ResolutionMethod, now time.Time) bool {
	if h.Resolved {
		return false
	}
	h.Resolved = true
	h.ResolutionMethod = method
	t := now
	h.ResolvedAt = &t
	h.UpdatedAt = now
	return true
}

// IsConfirmed reports whether this hypothesis won its field.
func (h *Hypothesis) IsConfirmed() bool {
	return h.Resolved && h.ResolutionMethod == ResolutionConfirmed
}

// Clone returns a deep copy safe to hand outside the engine.
func (h *Hypothesis) Clone() *Hypothesis {
	c := *h
	c.Evidence = append([]Evidence{}, h.Evidence...)
	c.Contradictions = append([]Evidence{}, h.Contradictions...)
	c.StrategiesUsed = append([]string{}, h.StrategiesUsed...)
	c.RefinementStrategies = append([]string(nil), h.RefinementStrategies...)
	if h.LastProbed != nil {
		t := *h.LastProbed
		c.LastProbed = &t
	}
	if h.ResolvedAt != nil {
		t := *h.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
