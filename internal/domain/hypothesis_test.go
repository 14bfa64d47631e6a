package domain

import (
	"math"
	"testing"
	"time"
)

func newTestHypothesis(field string, confidence float64) *Hypothesis {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	decl := &UncertaintyDeclaration{Module: "astrology", UserID: "u1"}
	f := UncertaintyField{Field: field, Module: "astrology", Candidates: map[string]float64{"Leo": confidence}}
	return NewHypothesis("h1", decl, f, Candidate{Value: "Leo", Probability: confidence}, now)
}

func TestNewHypothesis_SeedsConfidence(t *testing.T) {
	h := newTestHypothesis("rising_sign", 0.25)

	if h.Confidence != 0.25 || h.InitialConfidence != 0.25 {
		t.Errorf("confidence = %v/%v, want 0.25/0.25", h.Confidence, h.InitialConfidence)
	}
	if h.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("threshold = %v, want %v", h.ConfidenceThreshold, DefaultConfidenceThreshold)
	}
	if h.MaxProbes != DefaultMaxProbes {
		t.Errorf("max probes = %d, want %d", h.MaxProbes, DefaultMaxProbes)
	}
	if h.Resolved || h.ResolutionMethod != "" {
		t.Error("new hypothesis should be unresolved")
	}
}

func TestNeedsProbing_AllCombinations(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		resolved := mask&1 != 0
		belowThreshold := mask&2 != 0
		underBudget := mask&4 != 0

		h := newTestHypothesis("moon_sign", 0.5)
		h.Resolved = resolved
		if belowThreshold {
			h.Confidence = 0.5
		} else {
			h.Confidence = 0.9
		}
		if underBudget {
			h.ProbesAttempted = 1
		} else {
			h.ProbesAttempted = h.MaxProbes
		}

		want := !resolved && belowThreshold && underBudget
		if got := h.NeedsProbing(); got != want {
			t.Errorf("resolved=%v below=%v budget=%v: NeedsProbing = %v, want %v",
				resolved, belowThreshold, underBudget, got, want)
		}
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name           string
		field          string
		confidence     float64
		probes         int
		evidence       int
		contradictions int
		want           float64
	}{
		{"core field fresh low", "rising_sign", 0.25, 0, 0, 0, 0.2 + 0.2 + 0.2},
		{"non-core fresh low", "moon_sign", 0.25, 0, 0, 0, 0.2 + 0.2},
		{"lowest bucket", "moon_sign", 0.1, 0, 0, 0, 0.1 + 0.2},
		{"mid bucket one probe", "moon_sign", 0.45, 1, 0, 0, 0.3 + 0.2*(2.0/3.0)},
		{"top bucket with mixed evidence", "type", 0.65, 2, 1, 1, 0.4 + 0.2 + 0.2*(1.0/3.0) + 0.1},
		{"all evidence supporting", "authority", 0.7, 0, 3, 0, 0.4 + 0.2 + 0.2 + 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHypothesis(tt.field, tt.confidence)
			h.ProbesAttempted = tt.probes
			for i := 0; i < tt.evidence; i++ {
				h.Evidence = append(h.Evidence, Evidence{Delta: 0.1})
			}
			for i := 0; i < tt.contradictions; i++ {
				h.Contradictions = append(h.Contradictions, Evidence{Delta: -0.1})
			}
			got := h.Priority()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Priority() = %v, want %v", got, tt.want)
			}
			if got > 1 {
				t.Errorf("Priority() = %v exceeds 1", got)
			}
		})
	}
}

func TestPriority_ZeroWhenNotProbeable(t *testing.T) {
	h := newTestHypothesis("rising_sign", 0.5)
	h.Resolve(ResolutionSuperseded, time.Now())
	if p := h.Priority(); p != 0 {
		t.Errorf("resolved priority = %v, want 0", p)
	}

	h = newTestHypothesis("rising_sign", 0.85)
	if p := h.Priority(); p != 0 {
		t.Errorf("above-threshold priority = %v, want 0", p)
	}
}

func TestPriority_MonotonicAcrossBuckets(t *testing.T) {
	prev := -1.0
	for _, c := range []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.79} {
		h := newTestHypothesis("moon_sign", c)
		p := h.Priority()
		if p < prev {
			t.Errorf("priority dropped from %v to %v at confidence %v", prev, p, c)
		}
		prev = p
	}
}

func TestUpdateConfidence_Clamps(t *testing.T) {
	now := time.Now()
	for _, delta := range []float64{-5, -1, -0.3, 0, 0.3, 1, 7} {
		h := newTestHypothesis("rising_sign", 0.5)
		got := h.UpdateConfidence(delta, now)
		if got < 0 || got > 1 {
			t.Errorf("delta %v: confidence %v out of [0,1]", delta, got)
		}
	}
}

func TestResolvedHypothesisIsFrozen(t *testing.T) {
	now := time.Now()
	h := newTestHypothesis("rising_sign", 0.5)
	if !h.Resolve(ResolutionConfirmed, now) {
		t.Fatal("first resolve should succeed")
	}
	if h.Resolve(ResolutionSuperseded, now) {
		t.Error("second resolve should be rejected")
	}

	h.UpdateConfidence(0.3, now)
	h.MarkProbed("physical_appearance", now)
	h.RecordEvidence(Evidence{Delta: 0.2})

	if h.Confidence != 0.5 {
		t.Errorf("confidence changed to %v after resolution", h.Confidence)
	}
	if h.ProbesAttempted != 0 || len(h.StrategiesUsed) != 0 {
		t.Error("probing state changed after resolution")
	}
	if len(h.Evidence) != 0 {
		t.Error("evidence recorded after resolution")
	}
	if h.ResolutionMethod != ResolutionConfirmed {
		t.Errorf("resolution method = %s, want confirmed", h.ResolutionMethod)
	}
}

func TestRecordEvidence_SplitsOnSign(t *testing.T) {
	h := newTestHypothesis("rising_sign", 0.5)
	h.RecordEvidence(Evidence{Delta: 0.2})
	h.RecordEvidence(Evidence{Delta: 0})
	h.RecordEvidence(Evidence{Delta: -0.1})

	if len(h.Evidence) != 1 {
		t.Errorf("evidence = %d, want 1", len(h.Evidence))
	}
	if len(h.Contradictions) != 2 {
		t.Errorf("contradictions = %d, want 2", len(h.Contradictions))
	}
}

func TestWasContradicted_IgnoresZeroDeltas(t *testing.T) {
	h := newTestHypothesis("rising_sign", 0.05)
	h.RecordEvidence(Evidence{Delta: 0})
	if h.WasContradicted() {
		t.Error("a zero delta should not count as a contradiction")
	}

	h.RecordEvidence(Evidence{Delta: -0.02})
	if !h.WasContradicted() {
		t.Error("a negative delta should count as a contradiction")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	h := newTestHypothesis("rising_sign", 0.5)
	h.MarkProbed("first_impression", time.Now())
	c := h.Clone()
	c.StrategiesUsed[0] = "changed"
	c.Evidence = append(c.Evidence, Evidence{Delta: 1})

	if h.StrategiesUsed[0] != "first_impression" {
		t.Error("clone shares StrategiesUsed backing array")
	}
	if len(h.Evidence) != 0 {
		t.Error("clone shares Evidence")
	}
}
