package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/llm"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultProbeTTL     = 24 * time.Hour
)

type fallbackProbe struct {
	probeType domain.ProbeType
	question  string
	options   []string
}

// fallbackProbes are the static questions used when the provider is unavailable or its output is unusable.
// {field} and {value} are substituted.
var fallbackProbes = map[string]fallbackProbe{
	"physical_appearance": {
		probeType: domain.ProbeTypeBinaryChoice,
		question:  "When people first see you, which description fits better?",
		options:   []string{"How a {value} rising is usually described", "Something quite different"},
	},
	"first_impression": {
		probeType: domain.ProbeTypeSlider,
		question:  "From 0 to 10, how closely does the typical {value} first impression match how strangers read you?",
	},
	"life_approach": {
		probeType: domain.ProbeTypeReflection,
		question:  "How do you usually approach something completely new? A sentence or two is plenty.",
	},
	"emotional_pattern": {
		probeType: domain.ProbeTypeBinaryChoice,
		question:  "When you are under stress, which is closer to how you react?",
		options:   []string{"The way a {value} {field} is usually described", "Differently from that"},
	},
	"energy_pattern": {
		probeType: domain.ProbeTypeSlider,
		question:  "From 0 to 10, how steady is your energy through a full day of work you enjoy?",
	},
	"decision_making": {
		probeType: domain.ProbeTypeBinaryChoice,
		question:  "When you make an important decision, which is closer to what works for you?",
		options:   []string{"What {value} authority describes", "Something else entirely"},
	},
	"role_pattern": {
		probeType: domain.ProbeTypeReflection,
		question:  "What role do you usually end up playing in a group? Tell us in your own words.",
	},
	"direct_confirmation": {
		probeType: domain.ProbeTypeConfirmation,
		question:  "Does {value} feel right as your {field}?",
	},
}

// genericFallbacks are used when no strategy-specific fallback matches the probe type.
var genericFallbacks = map[domain.ProbeType]fallbackProbe{
	domain.ProbeTypeBinaryChoice: {
		probeType: domain.ProbeTypeBinaryChoice,
		question:  "Does {value} describe your {field}?",
		options:   []string{"Yes, that fits", "No, not really"},
	},
	domain.ProbeTypeSlider: {
		probeType: domain.ProbeTypeSlider,
		question:  "From 0 to 10, how well does {value} describe your {field}?",
	},
	domain.ProbeTypeReflection: {
		probeType: domain.ProbeTypeReflection,
		question:  "In your own words, how would you describe your {field}?",
	},
	domain.ProbeTypeConfirmation: {
		probeType: domain.ProbeTypeConfirmation,
		question:  "Is {value} your {field}?",
	},
}

// ProbeGenerator turns a hypothesis and strategy into a ProbePacket. It never fails: provider errors,
// timeouts and unusable output all produce a static fallback probe.
type ProbeGenerator struct {
	provider domain.ProbeContentProvider
	logger   *zap.Logger
	metrics  *Metrics

	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time
}

func NewProbeGenerator(provider domain.ProbeContentProvider, logger *zap.Logger) *ProbeGenerator {
	if provider == nil {
		provider = llm.NewTemplateClient()
	}
	return &ProbeGenerator{
		provider: provider,
		logger:   logger,
		timeout:  DefaultProbeTimeout,
		ttl:      DefaultProbeTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *ProbeGenerator) SetTimeout(d time.Duration) {
	if d > 0 {
		g.timeout = d
	}
}

// SetTTL sets how long a probe stays answerable. Zero disables expiry.
func (g *ProbeGenerator) SetTTL(d time.Duration) {
	g.ttl = d
}

func (g *ProbeGenerator) SetMetrics(m *Metrics) {
	g.metrics = m
}

// GenerateProbe builds a probe for h. strategyPrompt overrides the default guidance when set;
// candidates are the other values competing for the same field.
func (g *ProbeGenerator) GenerateProbe(ctx context.Context, h *domain.Hypothesis, strategyName string, probeType domain.ProbeType, strategyPrompt string, candidates ...string) *domain.ProbePacket {
	if !probeType.IsValid() {
		probeType = domain.ProbeTypeBinaryChoice
	}
	if strategyName == "" {
		strategyName = "default"
	}

	ctx, span := startSpan(ctx, "ProbeGenerator.GenerateProbe",
		attribute.String("genesis.field", h.Field),
		attribute.String("genesis.strategy", strategyName),
		attribute.String("genesis.probe_type", string(probeType)),
		attribute.String("genesis.provider", g.provider.Name()),
	)

	start := time.Now()
	content, source, err := g.fromProvider(ctx, h, strategyName, probeType, strategyPrompt, candidates)
	if err != nil {
		if errors.Is(err, llm.ErrTemplateOnly) {
			source = domain.ProbeSourceTemplate
		} else {
			g.logger.Warn("probe generation failed, using fallback",
				zap.String("hypothesis_id", h.ID),
				zap.String("strategy", strategyName),
				zap.String("provider", g.provider.Name()),
				zap.Error(err))
			source = domain.ProbeSourceFallback
		}
		content = fallbackContent(h, strategyName, probeType)
	}
	g.metrics.observeGeneration(g.provider.Name(), string(source), time.Since(start))
	g.metrics.probeGenerated(strategyName, string(source))
	span.SetAttributes(attribute.String("genesis.source", string(source)))
	if source == domain.ProbeSourceFallback {
		endSpan(span, err)
	} else {
		endSpan(span, nil)
	}

	now := g.now()
	p := &domain.ProbePacket{
		ID:                 uuid.NewString(),
		HypothesisID:       h.ID,
		UserID:             h.UserID,
		SessionID:          h.SessionID,
		Field:              h.Field,
		Module:             h.Module,
		ProbeType:          probeType,
		Question:           content.Question,
		StrategyUsed:       strategyName,
		ConfidenceMappings: content.DeltaTable(),
		AnalysisHints:      content.AnalysisHints,
		Source:             source,
		CreatedAt:          now,
	}
	if probeType == domain.ProbeTypeBinaryChoice {
		p.Options = content.Options
	}
	if probeType == domain.ProbeTypeReflection {
		if p.AnalysisHints == nil {
			p.AnalysisHints = map[string]any{}
		}
		if _, ok := p.AnalysisHints["candidates"]; !ok {
			p.AnalysisHints["candidates"] = append([]string{h.SuspectedValue}, candidates...)
		}
	}
	if g.ttl > 0 {
		exp := now.Add(g.ttl)
		p.ExpiresAt = &exp
	}
	return p
}

func (g *ProbeGenerator) fromProvider(ctx context.Context, h *domain.Hypothesis, strategyName string, probeType domain.ProbeType, strategyPrompt string, candidates []string) (*llm.ProbeContent, domain.ProbeSource, error) {
	prompt := llm.BuildProbePrompt(h, candidates, strategyName, probeType, strategyPrompt)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.provider.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrTemplateOnly) {
			return nil, domain.ProbeSourceTemplate, err
		}
		return nil, domain.ProbeSourceFallback, errors.Join(ErrGenerationFailed, err)
	}

	content, err := llm.ParseProbeContent(raw)
	if err != nil {
		return nil, domain.ProbeSourceFallback, errors.Join(ErrGenerationFailed, err)
	}
	if probeType == domain.ProbeTypeBinaryChoice && len(content.Options) < 2 {
		return nil, domain.ProbeSourceFallback, errors.Join(ErrGenerationFailed, errors.New("binary choice needs at least two options"))
	}
	return content, domain.ProbeSourceLLM, nil
}

func fallbackContent(h *domain.Hypothesis, strategyName string, probeType domain.ProbeType) *llm.ProbeContent {
	fb, ok := fallbackProbes[strategyName]
	if !ok || fb.probeType != probeType {
		fb = genericFallbacks[probeType]
	}

	r := strings.NewReplacer("{value}", h.SuspectedValue, "{field}", strings.ReplaceAll(h.Field, "_", " "))
	content := &llm.ProbeContent{Question: r.Replace(fb.question)}
	for _, o := range fb.options {
		content.Options = append(content.Options, r.Replace(o))
	}
	return content
}
