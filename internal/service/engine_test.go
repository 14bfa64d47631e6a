package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

func TestInitializeFromUncertainties(t *testing.T) {
	e := newTestEngine(nil)

	hs := initialize(t, e, risingSignDeclaration("u1"))

	require.Len(t, hs, 4)
	for _, h := range hs {
		assert.Equal(t, 0.25, h.Confidence)
		assert.Equal(t, 0.25, h.InitialConfidence)
		assert.Equal(t, 0.80, h.ConfidenceThreshold)
		assert.Equal(t, "astrology", h.Module)
		assert.Equal(t, "rising_sign", h.Field)
		assert.False(t, h.Resolved)
		assert.Equal(t, domain.DefaultMaxProbes, h.MaxProbes)
	}
	assert.Equal(t, []string{"Cancer", "Leo", "Libra", "Virgo"},
		[]string{hs[0].SuspectedValue, hs[1].SuspectedValue, hs[2].SuspectedValue, hs[3].SuspectedValue})
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.declarations))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.metrics.hypothesesCreated))
}

func TestInitializeFromUncertainties_OneHypothesisPerCandidate(t *testing.T) {
	e := newTestEngine(nil)
	decl := risingSignDeclaration("u1")
	decl.Fields = append(decl.Fields, moonSignField())

	hs := initialize(t, e, decl)

	require.Len(t, hs, 6)
	probabilities := map[string]float64{
		"Leo": 0.25, "Virgo": 0.25, "Libra": 0.25, "Cancer": 0.25, "Aries": 0.5, "Taurus": 0.3,
	}
	for _, h := range hs {
		assert.Equal(t, probabilities[h.SuspectedValue], h.Confidence, h.SuspectedValue)
		assert.Equal(t, h.Confidence, h.InitialConfidence)
	}
}

func TestInitializeFromUncertainties_EmptyDeclaration(t *testing.T) {
	e := newTestEngine(nil)

	hs := initialize(t, e, domain.UncertaintyDeclaration{Module: "astrology", UserID: "u1"})

	assert.Empty(t, hs)
	assert.Empty(t, e.GetHypothesesForUser(context.Background(), "u1"))
}

func TestInitializeFromUncertainties_InvalidDeclaration(t *testing.T) {
	e := newTestEngine(nil)

	_, err := e.InitializeFromUncertainties(context.Background(), []domain.UncertaintyDeclaration{
		{Module: "astrology"},
	})

	assert.ErrorIs(t, err, ErrInvalidDeclaration)
	assert.ErrorIs(t, err, domain.ErrDeclarationUserMissing)
}

func TestInitializeFromUncertainties_Redeclare(t *testing.T) {
	e := newTestEngine(nil)
	initialize(t, e, risingSignDeclaration("u1"))

	again := initialize(t, e, risingSignDeclaration("u1"))

	assert.Empty(t, again)
	assert.Len(t, e.GetHypothesesForUser(context.Background(), "u1"), 4)
}

func TestInitializeFromUncertainties_UsersAreIsolated(t *testing.T) {
	e := newTestEngine(nil)
	initialize(t, e, risingSignDeclaration("u1"), risingSignDeclaration("u2"))

	assert.Len(t, e.GetHypothesesForUser(context.Background(), "u1"), 4)
	assert.Len(t, e.GetHypothesesForUser(context.Background(), "u2"), 4)
	assert.Empty(t, e.GetHypothesesForUser(context.Background(), "u3"))
}

func TestSelectNextHypothesis(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	assert.Nil(t, e.SelectNextHypothesis(ctx, "u1"))

	decl := risingSignDeclaration("u1")
	decl.Fields = append(decl.Fields, moonSignField())
	initialize(t, e, decl)

	next := e.SelectNextHypothesis(ctx, "u1")

	require.NotNil(t, next)
	assert.Equal(t, "rising_sign", next.Field, "core fields outrank a closer non-core candidate")
	assert.Equal(t, "Cancer", next.SuspectedValue, "ties keep creation order")
}

func TestRankedCandidates_SkipsResolved(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	hs := initialize(t, e, risingSignDeclaration("u1"))
	owned(e, "u1", hs[0].ID).Resolve(domain.ResolutionRefuted, time.Now())

	ranked := e.RankedCandidates(ctx, "u1")

	require.Len(t, ranked, 3)
	for _, h := range ranked {
		assert.NotEqual(t, hs[0].ID, h.ID)
	}
}

func TestGenerateProbe_RotatesStrategies(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")

	var used []string
	for i := 0; i < domain.DefaultMaxProbes; i++ {
		p, err := e.GenerateProbe(ctx, leo, "")
		require.NoError(t, err)
		used = append(used, p.StrategyUsed)
		assert.Equal(t, domain.ProbeSourceTemplate, p.Source)
		assert.Equal(t, leo.ID, p.HypothesisID)
		assert.Equal(t, "u1", p.UserID)
	}
	assert.Equal(t, []string{"physical_appearance", "first_impression", "life_approach"}, used)

	got, err := e.GetHypothesis(ctx, "u1", leo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMaxProbes, got.ProbesAttempted)
	assert.Equal(t, used, got.StrategiesUsed)
	assert.NotNil(t, got.LastProbed)

	_, err = e.GenerateProbe(ctx, leo, "")
	assert.ErrorIs(t, err, ErrNotProbeable)
}

func TestGenerateProbe_PreferredType(t *testing.T) {
	e := newTestEngine(nil)
	leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")

	p, err := e.GenerateProbe(context.Background(), leo, domain.ProbeTypeConfirmation)

	require.NoError(t, err)
	assert.Equal(t, "direct_confirmation", p.StrategyUsed)
	assert.Equal(t, domain.ProbeTypeConfirmation, p.ProbeType)
	assert.Empty(t, p.Options)
}

func TestGenerateProbe_DeclaredStrategies(t *testing.T) {
	e := newTestEngine(nil)
	decl := risingSignDeclaration("u1")
	decl.Fields[0].RefinementStrategies = []string{"first_impression"}
	leo := byValue(initialize(t, e, decl), "Leo")

	p, err := e.GenerateProbe(context.Background(), leo, "")

	require.NoError(t, err)
	assert.Equal(t, "first_impression", p.StrategyUsed)
	assert.Equal(t, domain.ProbeTypeSlider, p.ProbeType)
}

func TestGenerateProbe_DefaultStrategy(t *testing.T) {
	e := newTestEngine(nil)
	hs := initialize(t, e, domain.UncertaintyDeclaration{
		Module: "bazi",
		UserID: "u1",
		Fields: []domain.UncertaintyField{{Field: "hour_pillar", Candidates: map[string]float64{"Zi": 0.5, "Chou": 0.5}}},
	})

	p, err := e.GenerateProbe(context.Background(), hs[0], "")

	require.NoError(t, err)
	assert.Equal(t, "default", p.StrategyUsed)
	assert.Equal(t, domain.ProbeTypeBinaryChoice, p.ProbeType)
	assert.Len(t, p.Options, 2)
}

func TestGenerateProbe_UnknownHypothesis(t *testing.T) {
	e := newTestEngine(nil)
	initialize(t, e, risingSignDeclaration("u1"))

	_, err := e.GenerateProbe(context.Background(), &domain.Hypothesis{ID: "missing", UserID: "u1"}, "")

	assert.ErrorIs(t, err, ErrHypothesisNotFound)
}

func TestProcessResponse_AppliesMappingsToSiblings(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(mappingProvider(`{"0": {"Leo": 0.2}, "1": {"Virgo": 0.15}}`))
	hs := initialize(t, e, risingSignDeclaration("u1"))
	leo, virgo := byValue(hs, "Leo"), byValue(hs, "Virgo")

	probe, err := e.GenerateProbe(ctx, leo, "")
	require.NoError(t, err)
	require.Equal(t, domain.ProbeSourceLLM, probe.Source)

	updated, err := e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	require.NoError(t, err)
	assert.Len(t, updated, 4, "every open sibling of the probed field is scored")

	gotLeo, _ := e.GetHypothesis(ctx, "u1", leo.ID)
	gotVirgo, _ := e.GetHypothesis(ctx, "u1", virgo.ID)
	assert.InDelta(t, 0.45, gotLeo.Confidence, 1e-9)
	assert.Equal(t, 0.25, gotVirgo.Confidence)
	require.Len(t, gotLeo.Evidence, 1)
	assert.Equal(t, "0", gotLeo.Evidence[0].ResponseKey)
	assert.Len(t, gotVirgo.Contradictions, 1, "a zero delta counts against the candidate")
}

func TestProcessResponse_DefaultRuleWithoutMappings(t *testing.T) {
	tests := []struct {
		name   string
		option int
		want   float64
	}{
		{"first option is affirmative", 0, 0.25 + DefaultAffirmativeDelta},
		{"second option is negative", 1, 0.25 + DefaultNegativeDelta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEngine(nil)
			leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")

			probe, err := e.GenerateProbe(ctx, leo, "")
			require.NoError(t, err)
			require.Empty(t, probe.ConfidenceMappings)

			updated, err := e.ProcessResponse(ctx, probe.ID, choose(probe.ID, tt.option))
			require.NoError(t, err)
			require.Len(t, updated, 1, "only the probed hypothesis moves without a mapping table")
			assert.Equal(t, leo.ID, updated[0].ID)
			assert.InDelta(t, tt.want, updated[0].Confidence, 1e-9)
		})
	}
}

func TestProcessResponse_Slider(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(mappingProvider(`{"high": {"Leo": 0.1}, "low": {"Leo": -0.1}}`))
	leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")

	probe, err := e.GenerateProbe(ctx, leo, domain.ProbeTypeSlider)
	require.NoError(t, err)
	require.Equal(t, domain.ProbeTypeSlider, probe.ProbeType)
	assert.Empty(t, probe.Options)

	_, err = e.ProcessResponse(ctx, probe.ID, domain.ProbeResponse{
		ResponseType: domain.ProbeTypeSlider,
		SliderValue:  floatPtr(9),
	})
	require.NoError(t, err)

	got, _ := e.GetHypothesis(ctx, "u1", leo.ID)
	assert.InDelta(t, 0.35, got.Confidence, 1e-9)
}

func TestProcessResponse_ReflectionMentions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	hs := initialize(t, e, risingSignDeclaration("u1"))
	leo := byValue(hs, "Leo")

	probe, err := e.GenerateProbe(ctx, leo, domain.ProbeTypeReflection)
	require.NoError(t, err)
	require.Equal(t, domain.ProbeTypeReflection, probe.ProbeType)
	assert.ElementsMatch(t, []string{"Leo", "Cancer", "Libra", "Virgo"}, probe.AnalysisHints["candidates"])

	updated, err := e.ProcessResponse(ctx, probe.ID, domain.ProbeResponse{
		ResponseType:   domain.ProbeTypeReflection,
		ReflectionText: "Friends say I light up a room, very much a LEO. Leonine even.",
	})
	require.NoError(t, err)

	require.Len(t, updated, 1)
	assert.Equal(t, leo.ID, updated[0].ID)
	assert.InDelta(t, 0.25+ReflectionMentionDelta, updated[0].Confidence, 1e-9)
}

func TestProcessResponse_ReflectionWithoutMentionChangesNothing(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")

	probe, err := e.GenerateProbe(ctx, leo, domain.ProbeTypeReflection)
	require.NoError(t, err)

	updated, err := e.ProcessResponse(ctx, probe.ID, domain.ProbeResponse{
		ResponseType:   domain.ProbeTypeReflection,
		ReflectionText: "I take things one step at a time.",
	})
	require.NoError(t, err)
	assert.Empty(t, updated)

	_, err = e.ProcessResponse(ctx, probe.ID, domain.ProbeResponse{
		ResponseType:   domain.ProbeTypeReflection,
		ReflectionText: "again",
	})
	assert.ErrorIs(t, err, ErrProbeAlreadyAnswered, "the probe is answered even when nothing moved")
}

func TestProcessResponse_Clamps(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(mappingProvider(`{"0": {"Leo": 5, "Virgo": -5}}`))
	hs := initialize(t, e, risingSignDeclaration("u1"))

	probe, err := e.GenerateProbe(ctx, byValue(hs, "Leo"), "")
	require.NoError(t, err)
	_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	require.NoError(t, err)

	for _, h := range e.GetHypothesesForUser(ctx, "u1") {
		assert.GreaterOrEqual(t, h.Confidence, 0.0)
		assert.LessOrEqual(t, h.Confidence, 1.0)
	}
	gotLeo, _ := e.GetHypothesis(ctx, "u1", byValue(hs, "Leo").ID)
	gotVirgo, _ := e.GetHypothesis(ctx, "u1", byValue(hs, "Virgo").ID)
	assert.Equal(t, 1.0, gotLeo.Confidence)
	assert.Equal(t, 0.0, gotVirgo.Confidence)
}

func TestProcessResponse_Errors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")
	probe, err := e.GenerateProbe(ctx, leo, "")
	require.NoError(t, err)

	t.Run("unknown probe", func(t *testing.T) {
		_, err := e.ProcessResponse(ctx, "nope", choose("nope", 0))
		assert.ErrorIs(t, err, ErrProbeNotFound)
	})

	t.Run("wrong response type", func(t *testing.T) {
		_, err := e.ProcessResponse(ctx, probe.ID, domain.ProbeResponse{
			ResponseType: domain.ProbeTypeSlider,
			SliderValue:  floatPtr(5),
		})
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.ErrorIs(t, err, domain.ErrResponseTypeInvalid)
	})

	t.Run("option out of range", func(t *testing.T) {
		_, err := e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 5))
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.ErrorIs(t, err, domain.ErrOptionOutOfRange)
	})

	t.Run("already answered", func(t *testing.T) {
		_, err := e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
		require.NoError(t, err)
		_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
		assert.ErrorIs(t, err, ErrProbeAlreadyAnswered)
	})

	got, _ := e.GetHypothesis(ctx, "u1", leo.ID)
	assert.InDelta(t, 0.25+DefaultAffirmativeDelta, got.Confidence, 1e-9, "only the valid answer was applied")
}

func TestProcessResponse_ExpiredProbe(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	e.generator.SetTTL(time.Minute)
	leo := byValue(initialize(t, e, risingSignDeclaration("u1")), "Leo")

	probe, err := e.GenerateProbe(ctx, leo, "")
	require.NoError(t, err)
	require.NotNil(t, probe.ExpiresAt)

	e.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	assert.ErrorIs(t, err, ErrProbeExpired)

	got, _ := e.GetHypothesis(ctx, "u1", leo.ID)
	assert.Equal(t, 0.25, got.Confidence)
	assert.True(t, got.NeedsProbing())

	assert.Equal(t, 1, e.SweepExpiredProbes(ctx))
	_, err = e.GetProbe(ctx, probe.ID)
	assert.ErrorIs(t, err, ErrProbeNotFound)
}

func TestCheckConfirmations(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	pub := &recordingPublisher{}
	e.SetPublisher(pub)
	hs := initialize(t, e, risingSignDeclaration("u1"))
	leo := byValue(hs, "Leo")

	owned(e, "u1", leo.ID).UpdateConfidence(0.60, time.Now())

	confirmations := e.CheckConfirmations(ctx, "u1")

	require.Len(t, confirmations, 1)
	assert.Equal(t, "Leo", confirmations[0].Value)
	assert.Equal(t, leo.ID, confirmations[0].Hypothesis.ID)
	assert.True(t, confirmations[0].Hypothesis.Resolved)
	assert.Len(t, confirmations[0].Superseded, 3)

	confirmed := e.GetConfirmedHypotheses(ctx, "u1")
	require.Len(t, confirmed, 1)
	assert.Equal(t, leo.ID, confirmed[0].ID)
	assert.Empty(t, e.GetActiveHypotheses(ctx, "u1"))
	for _, h := range e.GetHypothesesForUser(ctx, "u1") {
		if h.ID != leo.ID {
			assert.Equal(t, domain.ResolutionSuperseded, h.ResolutionMethod)
		}
	}

	assert.Equal(t, 1, pub.count(domain.EventFieldConfirmed))
	assert.Equal(t, 4, pub.count(domain.EventHypothesisResolved))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.fieldsConfirmed.WithLabelValues("astrology")))

	assert.Empty(t, e.CheckConfirmations(ctx, "u1"), "a second pass is a no-op")
	assert.Equal(t, 1, pub.count(domain.EventFieldConfirmed))
}

func TestCheckConfirmations_NothingAboveThreshold(t *testing.T) {
	e := newTestEngine(nil)
	initialize(t, e, risingSignDeclaration("u1"))

	assert.Empty(t, e.CheckConfirmations(context.Background(), "u1"))
	assert.Len(t, e.GetActiveHypotheses(context.Background(), "u1"), 4)
}

func TestCheckConfirmations_TieBreak(t *testing.T) {
	tests := []struct {
		name       string
		confidence map[string]float64
		want       string
	}{
		{"highest confidence wins", map[string]float64{"Aries": 0.9, "Taurus": 0.95}, "Taurus"},
		{"then highest initial confidence", map[string]float64{"Aries": 0.9, "Taurus": 0.9}, "Aries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEngine(nil)
			hs := initialize(t, e, domain.UncertaintyDeclaration{
				Module: "astrology",
				UserID: "u1",
				Fields: []domain.UncertaintyField{moonSignField()},
			})
			for value, c := range tt.confidence {
				owned(e, "u1", byValue(hs, value).ID).Confidence = c
			}

			confirmations := e.CheckConfirmations(ctx, "u1")

			require.Len(t, confirmations, 1)
			assert.Equal(t, tt.want, confirmations[0].Value)
		})
	}

	t.Run("then earliest created", func(t *testing.T) {
		e := newTestEngine(nil)
		hs := initialize(t, e, risingSignDeclaration("u1"))
		owned(e, "u1", byValue(hs, "Virgo").ID).Confidence = 0.85
		owned(e, "u1", byValue(hs, "Leo").ID).Confidence = 0.85

		confirmations := e.CheckConfirmations(context.Background(), "u1")

		require.Len(t, confirmations, 1)
		assert.Equal(t, "Leo", confirmations[0].Value)
	})
}

func TestCheckConfirmations_PerFieldThreshold(t *testing.T) {
	e := newTestEngine(nil)
	decl := risingSignDeclaration("u1")
	decl.Fields[0].ConfidenceThreshold = 0.9
	hs := initialize(t, e, decl)
	owned(e, "u1", byValue(hs, "Leo").ID).UpdateConfidence(0.6, time.Now())

	assert.Empty(t, e.CheckConfirmations(context.Background(), "u1"))
}

func TestCheckConfirmations_Exhaustion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	hs := initialize(t, e, risingSignDeclaration("u1"))
	now := time.Now()

	virgo := owned(e, "u1", byValue(hs, "Virgo").ID)
	virgo.UpdateConfidence(-0.21, now)
	virgo.RecordEvidence(domain.Evidence{ProbeID: "p", ResponseKey: "1", Delta: -0.21, RecordedAt: now})

	owned(e, "u1", byValue(hs, "Cancer").ID).ProbesAttempted = domain.DefaultMaxProbes

	libra := byValue(hs, "Libra")
	_, err := e.GenerateProbe(ctx, libra, "")
	require.NoError(t, err)
	owned(e, "u1", libra.ID).ProbesAttempted = domain.DefaultMaxProbes

	confirmations := e.CheckConfirmations(ctx, "u1")
	assert.Empty(t, confirmations)

	gotVirgo, _ := e.GetHypothesis(ctx, "u1", byValue(hs, "Virgo").ID)
	gotCancer, _ := e.GetHypothesis(ctx, "u1", byValue(hs, "Cancer").ID)
	gotLibra, _ := e.GetHypothesis(ctx, "u1", libra.ID)
	gotLeo, _ := e.GetHypothesis(ctx, "u1", byValue(hs, "Leo").ID)

	assert.Equal(t, domain.ResolutionRefuted, gotVirgo.ResolutionMethod)
	assert.Equal(t, domain.ResolutionTimeout, gotCancer.ResolutionMethod)
	assert.False(t, gotLibra.Resolved, "a pending probe keeps the hypothesis open")
	assert.False(t, gotLeo.Resolved)
}

func TestCheckConfirmations_LowPriorWithoutNegativeDeltaStaysOpen(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(mappingProvider(`{"0": {"Leo": 0.1}, "1": {"Libra": 0.6}}`))
	hs := initialize(t, e, domain.UncertaintyDeclaration{
		Module: "astrology",
		UserID: "u1",
		Fields: []domain.UncertaintyField{{
			Field:      "rising_sign",
			Candidates: map[string]float64{"Leo": 0.5, "Virgo": 0.45, "Libra": 0.05},
		}},
	})
	leo, libra := byValue(hs, "Leo"), byValue(hs, "Libra")

	first, err := e.GenerateProbe(ctx, leo, "")
	require.NoError(t, err)
	_, err = e.ProcessResponse(ctx, first.ID, choose(first.ID, 0))
	require.NoError(t, err)

	assert.Empty(t, e.CheckConfirmations(ctx, "u1"))
	got, _ := e.GetHypothesis(ctx, "u1", libra.ID)
	require.False(t, got.Resolved, "an unmentioned candidate is not refuted")
	assert.Len(t, got.Contradictions, 1)

	second, err := e.GenerateProbe(ctx, got, "")
	require.NoError(t, err)
	_, err = e.ProcessResponse(ctx, second.ID, choose(second.ID, 1))
	require.NoError(t, err)

	got, _ = e.GetHypothesis(ctx, "u1", libra.ID)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)
}

func TestAnsweredProbesLeaveThePendingIndex(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	hs := initialize(t, e, risingSignDeclaration("u1"))
	leo := byValue(hs, "Leo")

	probe, err := e.GenerateProbe(ctx, leo, "")
	require.NoError(t, err)
	probes, pending := trackedProbes(e)
	assert.Equal(t, 1, probes)
	assert.Equal(t, 1, pending)
	assert.True(t, e.hasPendingProbe(leo.ID, time.Now()))

	_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	require.NoError(t, err)
	_, pending = trackedProbes(e)
	assert.Zero(t, pending)
	assert.False(t, e.hasPendingProbe(leo.ID, time.Now()))

	_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	assert.ErrorIs(t, err, ErrProbeAlreadyAnswered, "answered probes are retained for a while")

	e.now = func() time.Time { return time.Now().UTC().Add(AnsweredProbeRetention + time.Hour) }
	assert.Equal(t, 0, e.SweepExpiredProbes(ctx), "only expired unanswered probes are counted")
	probes, _ = trackedProbes(e)
	assert.Zero(t, probes)
}

func TestGetHypothesis_NotFound(t *testing.T) {
	e := newTestEngine(nil)
	_, err := e.GetHypothesis(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ErrHypothesisNotFound)
}

func TestReturnedHypothesesAreCopies(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	hs := initialize(t, e, risingSignDeclaration("u1"))

	hs[0].Confidence = 0.99
	hs[0].Resolved = true

	got, err := e.GetHypothesis(ctx, "u1", hs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0.25, got.Confidence)
	assert.False(t, got.Resolved)
}

func TestPublisherFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(nil)
	pub := &recordingPublisher{err: errors.New("bus down")}
	e.SetPublisher(pub)

	hs := initialize(t, e, risingSignDeclaration("u1"))
	require.Len(t, hs, 4)

	probe, err := e.GenerateProbe(ctx, byValue(hs, "Leo"), "")
	require.NoError(t, err)
	_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	require.NoError(t, err)

	assert.Equal(t, 1, pub.count(domain.EventUncertaintyDeclared))
	assert.Equal(t, 1, pub.count(domain.EventConfidenceUpdated))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.collaboratorFailure.WithLabelValues("publisher")))
}

func TestStoreFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := new(MockHypothesisStore)
	storeErr := errors.New("connection refused")
	store.On("LoadHypotheses", mock.Anything, "u1").Return(nil, storeErr)
	store.On("SaveHypotheses", mock.Anything, "u1", mock.Anything).Return(storeErr)
	store.On("SaveProbe", mock.Anything, mock.Anything).Return(storeErr)

	e := newTestEngine(nil)
	e.SetStore(store)

	hs := initialize(t, e, risingSignDeclaration("u1"))
	require.Len(t, hs, 4)

	probe, err := e.GenerateProbe(ctx, byValue(hs, "Leo"), "")
	require.NoError(t, err)
	_, err = e.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	require.NoError(t, err)

	store.AssertExpectations(t)
	assert.Greater(t, testutil.ToFloat64(e.metrics.collaboratorFailure.WithLabelValues("store")), 0.0)
}

func TestTrackerIsNotified(t *testing.T) {
	ctx := context.Background()
	tracker := new(MockProfileTracker)
	tracker.On("MarkUncertain", mock.Anything, "u1", "astrology", []string{"rising_sign"}).Return(nil)
	tracker.On("MarkResolved", mock.Anything, "u1", "astrology", "rising_sign", "Leo").Return(errors.New("profile store down"))

	e := newTestEngine(nil)
	e.SetTracker(tracker)
	hs := initialize(t, e, risingSignDeclaration("u1"))
	owned(e, "u1", byValue(hs, "Leo").ID).UpdateConfidence(0.6, time.Now())

	confirmations := e.CheckConfirmations(ctx, "u1")

	require.Len(t, confirmations, 1)
	tracker.AssertExpectations(t)
}

func TestHydratesFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	first := newTestEngine(nil)
	first.SetStore(store)
	hs := initialize(t, first, risingSignDeclaration("u1"))
	probe, err := first.GenerateProbe(ctx, byValue(hs, "Leo"), "")
	require.NoError(t, err)

	second := newTestEngine(nil)
	second.SetStore(store)

	restored := second.GetHypothesesForUser(ctx, "u1")
	require.Len(t, restored, 4)
	assert.Equal(t, hs[0].ID, restored[0].ID, "creation order survives a round trip")

	updated, err := second.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.InDelta(t, 0.30, updated[0].Confidence, 1e-9)
	assert.Equal(t, 1, updated[0].ProbesAttempted)

	_, err = first.ProcessResponse(ctx, probe.ID, choose(probe.ID, 0))
	assert.NoError(t, err, "engines do not share in-memory state")
}
