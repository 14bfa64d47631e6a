package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/strategy"
)

// Confidence deltas applied when a probe carries no mapping table.
const (
	DefaultAffirmativeDelta = 0.05
	DefaultNegativeDelta    = -0.02
	ReflectionMentionDelta  = 0.05
	// RefutedConfidence is the level at or below which a hypothesis lowered by an answer is refuted.
	RefutedConfidence = 0.05
)

// AnsweredProbeRetention is how long an answered probe stays in memory so a repeated answer is
// rejected as already answered rather than unknown.
const AnsweredProbeRetention = 24 * time.Hour

// Confirmation is a field resolved to a single value by CheckConfirmations.
type Confirmation struct {
	Hypothesis *domain.Hypothesis `json:"hypothesis"`
	Value      string             `json:"value"`
	Superseded []string           `json:"superseded,omitempty"`
}

type userPool struct {
	byID  map[string]*domain.Hypothesis
	order []string
}

func newUserPool() *userPool {
	return &userPool{byID: make(map[string]*domain.Hypothesis)}
}

func (p *userPool) add(h *domain.Hypothesis) {
	p.byID[h.ID] = h
	p.order = append(p.order, h.ID)
}

func (p *userPool) each(fn func(h *domain.Hypothesis)) {
	for _, id := range p.order {
		fn(p.byID[id])
	}
}

func (p *userPool) siblings(h *domain.Hypothesis) []*domain.Hypothesis {
	var out []*domain.Hypothesis
	p.each(func(o *domain.Hypothesis) {
		if o.Field == h.Field && o.Module == h.Module {
			out = append(out, o)
		}
	})
	return out
}

func (p *userPool) find(module, field, value string) *domain.Hypothesis {
	for _, id := range p.order {
		h := p.byID[id]
		if h.Module == module && h.Field == field && h.SuspectedValue == value {
			return h
		}
	}
	return nil
}

func (p *userPool) snapshot() []domain.Hypothesis {
	out := make([]domain.Hypothesis, 0, len(p.order))
	p.each(func(h *domain.Hypothesis) {
		out = append(out, *h.Clone())
	})
	return out
}

// GenesisEngine owns every user's hypothesis pool. Mutations are serialized per user; the store,
// tracker and publisher are optional and their failures never reach the caller.
type GenesisEngine struct {
	registry  *strategy.Registry
	generator *ProbeGenerator
	logger    *zap.Logger
	metrics   *Metrics

	store     domain.HypothesisStore
	tracker   domain.ProfileTracker
	publisher domain.EventPublisher

	mu     sync.RWMutex
	pools  map[string]*userPool
	probes map[string]*domain.ProbePacket
	// hypothesis id -> ids of its unanswered probes
	pending map[string]map[string]struct{}

	locks *keyedMutex
	loads singleflight.Group
	now   func() time.Time
}

func NewGenesisEngine(registry *strategy.Registry, generator *ProbeGenerator, logger *zap.Logger) *GenesisEngine {
	return &GenesisEngine{
		registry:  registry,
		generator: generator,
		logger:    logger,
		pools:     make(map[string]*userPool),
		probes:    make(map[string]*domain.ProbePacket),
		pending:   make(map[string]map[string]struct{}),
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *GenesisEngine) SetStore(s domain.HypothesisStore) {
	e.store = s
}

func (e *GenesisEngine) SetTracker(t domain.ProfileTracker) {
	e.tracker = t
}

func (e *GenesisEngine) SetPublisher(p domain.EventPublisher) {
	e.publisher = p
}

func (e *GenesisEngine) SetMetrics(m *Metrics) {
	e.metrics = m
}

// InitializeFromUncertainties creates one hypothesis per declared candidate. A candidate that already
// has a hypothesis for the same module and field is skipped, so redeclaring is harmless.
func (e *GenesisEngine) InitializeFromUncertainties(ctx context.Context, decls []domain.UncertaintyDeclaration) ([]*domain.Hypothesis, error) {
	for i := range decls {
		decls[i].Normalize()
		if err := decls[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
		}
	}

	var created []*domain.Hypothesis
	for i := range decls {
		created = append(created, e.initializeOne(ctx, &decls[i])...)
	}
	return created, nil
}

func (e *GenesisEngine) initializeOne(ctx context.Context, decl *domain.UncertaintyDeclaration) []*domain.Hypothesis {
	unlock := e.locks.Lock(decl.UserID)
	defer unlock()

	pool := e.pool(ctx, decl.UserID)
	now := e.now()

	var created []*domain.Hypothesis
	for _, field := range decl.Fields {
		if !field.IsUncertain() {
			continue
		}
		for _, c := range field.SortedCandidates() {
			module := field.Module
			if module == "" {
				module = decl.Module
			}
			if pool.find(module, field.Field, c.Value) != nil {
				continue
			}
			h := domain.NewHypothesis(uuid.NewString(), decl, field, c, now)
			pool.add(h)
			created = append(created, h.Clone())
		}
	}

	e.metrics.declarationProcessed(len(created))
	e.logger.Info("uncertainty declared",
		zap.String("user_id", decl.UserID),
		zap.String("module", decl.Module),
		zap.Int("fields", len(decl.Fields)),
		zap.Int("hypotheses", len(created)))

	if len(created) == 0 {
		return created
	}

	e.persist(ctx, decl.UserID, pool)

	fields := decl.FieldNames()
	if e.tracker != nil {
		if err := e.tracker.MarkUncertain(ctx, decl.UserID, decl.Module, fields); err != nil {
			e.collaboratorFailed("tracker", err, zap.String("user_id", decl.UserID))
		}
	}
	e.publish(ctx, domain.EventUncertaintyDeclared, map[string]any{
		"module":          decl.Module,
		"fields":          fields,
		"source_accuracy": string(decl.SourceAccuracy),
		"hypotheses":      len(created),
	}, decl.UserID)

	return created
}

// SelectNextHypothesis returns the highest-priority hypothesis that needs probing, or nil.
func (e *GenesisEngine) SelectNextHypothesis(ctx context.Context, userID string) *domain.Hypothesis {
	ranked := e.RankedCandidates(ctx, userID)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}

// RankedCandidates returns every hypothesis that needs probing, highest priority first.
// Equal priorities keep creation order.
func (e *GenesisEngine) RankedCandidates(ctx context.Context, userID string) []*domain.Hypothesis {
	unlock := e.locks.Lock(userID)
	defer unlock()

	var out []*domain.Hypothesis
	e.pool(ctx, userID).each(func(h *domain.Hypothesis) {
		if h.NeedsProbing() {
			out = append(out, h.Clone())
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// GenerateProbe picks a strategy for h and produces a probe for it. preferred may be empty.
func (e *GenesisEngine) GenerateProbe(ctx context.Context, h *domain.Hypothesis, preferred domain.ProbeType) (*domain.ProbePacket, error) {
	return e.generateProbe(ctx, h.UserID, h.ID, preferred, "")
}

func (e *GenesisEngine) generateProbe(ctx context.Context, userID, hypothesisID string, preferred domain.ProbeType, sessionID string) (*domain.ProbePacket, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	pool := e.pool(ctx, userID)
	h, ok := pool.byID[hypothesisID]
	if !ok {
		return nil, ErrHypothesisNotFound
	}
	if !h.NeedsProbing() {
		return nil, ErrNotProbeable
	}

	name, probeType, prompt := e.chooseStrategy(h, preferred)

	var rivals []string
	for _, s := range pool.siblings(h) {
		if s.ID != h.ID && !s.Resolved {
			rivals = append(rivals, s.SuspectedValue)
		}
	}

	target := h.Clone()
	if sessionID != "" {
		target.SessionID = sessionID
	}
	probe := e.generator.GenerateProbe(ctx, target, name, probeType, prompt, rivals...)

	h.MarkProbed(name, e.now())

	e.mu.Lock()
	e.trackProbeLocked(probe)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveProbe(ctx, probe); err != nil {
			e.collaboratorFailed("store", err, zap.String("probe_id", probe.ID))
		}
	}
	e.persist(ctx, userID, pool)

	e.logger.Debug("probe generated",
		zap.String("user_id", userID),
		zap.String("hypothesis_id", h.ID),
		zap.String("probe_id", probe.ID),
		zap.String("strategy", name),
		zap.String("source", string(probe.Source)))

	return probe.Clone(), nil
}

// chooseStrategy prefers an applicable strategy the hypothesis has not seen yet, then the first
// applicable one, then "default".
func (e *GenesisEngine) chooseStrategy(h *domain.Hypothesis, preferred domain.ProbeType) (string, domain.ProbeType, string) {
	templates := e.registry.StrategiesForField(h.Field)

	if len(h.RefinementStrategies) > 0 {
		var declared []strategy.Template
		for _, t := range templates {
			for _, name := range h.RefinementStrategies {
				if t.Name() == name {
					declared = append(declared, t)
					break
				}
			}
		}
		if len(declared) > 0 {
			templates = declared
		}
	}

	if preferred.IsValid() {
		var typed []strategy.Template
		for _, t := range templates {
			if t.ProbeType() == preferred {
				typed = append(typed, t)
			}
		}
		if len(typed) > 0 {
			templates = typed
		}
	}

	var chosen strategy.Template
	for _, t := range templates {
		if !h.HasUsedStrategy(t.Name()) {
			chosen = t
			break
		}
	}
	if chosen == nil && len(templates) > 0 {
		chosen = templates[0]
	}

	if chosen == nil {
		probeType := preferred
		if !probeType.IsValid() {
			probeType = domain.ProbeTypeBinaryChoice
		}
		return strategy.DefaultStrategyName, probeType, ""
	}
	return chosen.Name(), chosen.ProbeType(), chosen.GeneratePrompt(h)
}

// ProcessResponse applies a response to every open hypothesis of the probed field and returns the
// hypotheses it changed. Expired or already-answered probes change nothing.
func (e *GenesisEngine) ProcessResponse(ctx context.Context, probeID string, resp domain.ProbeResponse) (updated []*domain.Hypothesis, err error) {
	ctx, span := startSpan(ctx, "GenesisEngine.ProcessResponse", attribute.String("genesis.probe_id", probeID))
	defer func() { endSpan(span, err) }()

	probe, err := e.lookupProbe(ctx, probeID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(probe.UserID)
	defer unlock()

	now := e.now()
	if probe.Answered() {
		return nil, ErrProbeAlreadyAnswered
	}
	if probe.Expired(now) {
		return nil, ErrProbeExpired
	}
	if resp.ProbeID == "" {
		resp.ProbeID = probeID
	}
	if err := resp.ValidateAgainst(probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	pool := e.pool(ctx, probe.UserID)
	probed, ok := pool.byID[probe.HypothesisID]
	if !ok {
		e.logger.Warn("probe references unknown hypothesis",
			zap.String("probe_id", probe.ID),
			zap.String("hypothesis_id", probe.HypothesisID))
		return nil, ErrHypothesisNotFound
	}

	key := resp.ResponseKey()
	var open []*domain.Hypothesis
	for _, h := range pool.siblings(probed) {
		if !h.Resolved {
			open = append(open, h)
		}
	}

	deltas := responseDeltas(probe, probed, open, &resp, key)
	for _, h := range open {
		delta, ok := deltas[h.ID]
		if !ok {
			continue
		}
		h.UpdateConfidence(delta, now)
		h.RecordEvidence(domain.Evidence{
			ProbeID:     probe.ID,
			ResponseKey: key,
			Delta:       delta,
			RecordedAt:  now,
		})
		updated = append(updated, h.Clone())
	}

	answered := now
	e.mu.Lock()
	probe.AnsweredAt = &answered
	e.untrackPendingLocked(probe)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveProbe(ctx, probe); err != nil {
			e.collaboratorFailed("store", err, zap.String("probe_id", probe.ID))
		}
	}
	e.persist(ctx, probe.UserID, pool)
	e.metrics.responseProcessed(string(probe.ProbeType))

	for _, h := range updated {
		e.publish(ctx, domain.EventConfidenceUpdated, map[string]any{
			"hypothesis_id": h.ID,
			"module":        h.Module,
			"field":         h.Field,
			"value":         h.SuspectedValue,
			"delta":         deltas[h.ID],
			"confidence":    h.Confidence,
			"probe_id":      probe.ID,
			"response_key":  key,
		}, probe.UserID)
	}

	span.SetAttributes(attribute.Int("genesis.updated", len(updated)))
	return updated, nil
}

// responseDeltas computes the confidence change for each open hypothesis of the probed field.
// Hypotheses missing from the result are left untouched.
func responseDeltas(probe *domain.ProbePacket, probed *domain.Hypothesis, open []*domain.Hypothesis, resp *domain.ProbeResponse, key string) map[string]float64 {
	deltas := make(map[string]float64, len(open))
	table := probe.ConfidenceMappings

	switch {
	case probe.ProbeType == domain.ProbeTypeReflection:
		text := strings.ToLower(resp.ReflectionText)
		for _, h := range open {
			d := table[domain.ResponseKeyDefault][h.SuspectedValue]
			if mentions(text, h.SuspectedValue) {
				d = ReflectionMentionDelta
			}
			if d != 0 {
				deltas[h.ID] = d
			}
		}

	case len(table) == 0:
		if !probed.Resolved {
			if domain.IsAffirmativeKey(key) {
				deltas[probed.ID] = DefaultAffirmativeDelta
			} else {
				deltas[probed.ID] = DefaultNegativeDelta
			}
		}

	default:
		for _, h := range open {
			deltas[h.ID] = table[key][h.SuspectedValue]
		}
	}
	return deltas
}

func mentions(lowerText, value string) bool {
	if value == "" || lowerText == "" {
		return false
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(value)) + `\b`)
	if err != nil {
		return strings.Contains(lowerText, strings.ToLower(value))
	}
	return re.MatchString(lowerText)
}

// CheckConfirmations resolves every field that has an open hypothesis at or above its threshold.
// The winner is the highest confidence, then the highest initial confidence, then the earliest created;
// its open siblings are superseded. Afterwards open hypotheses that a negative delta brought down to
// RefutedConfidence are refuted, and those out of probes with no pending probe time out.
// Calling it again without new responses changes nothing.
func (e *GenesisEngine) CheckConfirmations(ctx context.Context, userID string) []Confirmation {
	unlock := e.locks.Lock(userID)
	defer unlock()

	pool := e.pool(ctx, userID)
	now := e.now()

	var fieldOrder []string
	groups := make(map[string][]*domain.Hypothesis)
	pool.each(func(h *domain.Hypothesis) {
		if h.Resolved {
			return
		}
		key := h.FieldKey()
		if _, ok := groups[key]; !ok {
			fieldOrder = append(fieldOrder, key)
		}
		groups[key] = append(groups[key], h)
	})

	var confirmations []Confirmation
	var resolved []*domain.Hypothesis
	for _, key := range fieldOrder {
		group := groups[key]
		winner := pickWinner(group)
		if winner == nil {
			continue
		}

		winner.Resolve(domain.ResolutionConfirmed, now)
		resolved = append(resolved, winner)
		c := Confirmation{Value: winner.SuspectedValue}
		for _, h := range group {
			if h.ID != winner.ID && h.Resolve(domain.ResolutionSuperseded, now) {
				c.Superseded = append(c.Superseded, h.ID)
				resolved = append(resolved, h)
			}
		}
		c.Hypothesis = winner.Clone()
		confirmations = append(confirmations, c)

		e.metrics.fieldConfirmed(winner.Module)
		e.logger.Info("field confirmed",
			zap.String("user_id", userID),
			zap.String("module", winner.Module),
			zap.String("field", winner.Field),
			zap.String("value", winner.SuspectedValue),
			zap.Float64("confidence", winner.Confidence),
			zap.Int("superseded", len(c.Superseded)))

		if e.tracker != nil {
			if err := e.tracker.MarkResolved(ctx, userID, winner.Module, winner.Field, winner.SuspectedValue); err != nil {
				e.collaboratorFailed("tracker", err, zap.String("user_id", userID))
			}
		}
		e.publish(ctx, domain.EventFieldConfirmed, map[string]any{
			"hypothesis_id": winner.ID,
			"module":        winner.Module,
			"field":         winner.Field,
			"value":         winner.SuspectedValue,
			"confidence":    winner.Confidence,
			"superseded":    c.Superseded,
		}, userID)
	}

	pool.each(func(h *domain.Hypothesis) {
		if h.Resolved {
			return
		}
		switch {
		case h.Confidence <= RefutedConfidence && h.WasContradicted():
			h.Resolve(domain.ResolutionRefuted, now)
			resolved = append(resolved, h)
		case h.ProbesAttempted >= h.MaxProbes && !e.hasPendingProbe(h.ID, now):
			h.Resolve(domain.ResolutionTimeout, now)
			resolved = append(resolved, h)
		}
	})

	if len(resolved) == 0 {
		return confirmations
	}

	for _, h := range resolved {
		e.metrics.hypothesisResolved(string(h.ResolutionMethod))
		e.publish(ctx, domain.EventHypothesisResolved, map[string]any{
			"hypothesis_id":     h.ID,
			"module":            h.Module,
			"field":             h.Field,
			"value":             h.SuspectedValue,
			"resolution_method": string(h.ResolutionMethod),
			"confidence":        h.Confidence,
		}, userID)
	}
	e.persist(ctx, userID, pool)
	return confirmations
}

func pickWinner(group []*domain.Hypothesis) *domain.Hypothesis {
	var winner *domain.Hypothesis
	for _, h := range group {
		if h.Confidence < h.ConfidenceThreshold {
			continue
		}
		switch {
		case winner == nil:
			winner = h
		case h.Confidence > winner.Confidence:
			winner = h
		case h.Confidence == winner.Confidence && h.InitialConfidence > winner.InitialConfidence:
			winner = h
		}
	}
	return winner
}

func (e *GenesisEngine) hasPendingProbe(hypothesisID string, now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id := range e.pending[hypothesisID] {
		if p, ok := e.probes[id]; ok && !p.Answered() && !p.Expired(now) {
			return true
		}
	}
	return false
}

func (e *GenesisEngine) trackProbeLocked(p *domain.ProbePacket) {
	e.probes[p.ID] = p
	if p.Answered() {
		return
	}
	ids, ok := e.pending[p.HypothesisID]
	if !ok {
		ids = make(map[string]struct{})
		e.pending[p.HypothesisID] = ids
	}
	ids[p.ID] = struct{}{}
}

func (e *GenesisEngine) untrackPendingLocked(p *domain.ProbePacket) {
	ids, ok := e.pending[p.HypothesisID]
	if !ok {
		return
	}
	delete(ids, p.ID)
	if len(ids) == 0 {
		delete(e.pending, p.HypothesisID)
	}
}

// GetHypothesesForUser returns the user's whole pool in creation order.
func (e *GenesisEngine) GetHypothesesForUser(ctx context.Context, userID string) []*domain.Hypothesis {
	return e.filter(ctx, userID, func(*domain.Hypothesis) bool { return true })
}

// GetActiveHypotheses returns the unresolved hypotheses.
func (e *GenesisEngine) GetActiveHypotheses(ctx context.Context, userID string) []*domain.Hypothesis {
	return e.filter(ctx, userID, func(h *domain.Hypothesis) bool { return !h.Resolved })
}

// GetConfirmedHypotheses returns the hypotheses that won their field.
func (e *GenesisEngine) GetConfirmedHypotheses(ctx context.Context, userID string) []*domain.Hypothesis {
	return e.filter(ctx, userID, (*domain.Hypothesis).IsConfirmed)
}

func (e *GenesisEngine) GetHypothesis(ctx context.Context, userID, hypothesisID string) (*domain.Hypothesis, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	h, ok := e.pool(ctx, userID).byID[hypothesisID]
	if !ok {
		return nil, ErrHypothesisNotFound
	}
	return h.Clone(), nil
}

func (e *GenesisEngine) filter(ctx context.Context, userID string, keep func(*domain.Hypothesis) bool) []*domain.Hypothesis {
	unlock := e.locks.Lock(userID)
	defer unlock()

	out := []*domain.Hypothesis{}
	e.pool(ctx, userID).each(func(h *domain.Hypothesis) {
		if keep(h) {
			out = append(out, h.Clone())
		}
	})
	return out
}

// GetProbe returns a probe by id.
func (e *GenesisEngine) GetProbe(ctx context.Context, probeID string) (*domain.ProbePacket, error) {
	p, err := e.lookupProbe(ctx, probeID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return p.Clone(), nil
}

// SweepExpiredProbes forgets unanswered probes past their expiry, in memory and in the store. Answered
// probes older than AnsweredProbeRetention are dropped from memory only; the store keeps them.
func (e *GenesisEngine) SweepExpiredProbes(ctx context.Context) int {
	now := e.now()
	answeredBefore := now.Add(-AnsweredProbeRetention)

	e.mu.Lock()
	removed := 0
	for id, p := range e.probes {
		switch {
		case p.Expired(now):
			delete(e.probes, id)
			e.untrackPendingLocked(p)
			removed++
		case p.Answered() && p.AnsweredAt.Before(answeredBefore):
			delete(e.probes, id)
		}
	}
	e.mu.Unlock()

	if e.store != nil {
		n, err := e.store.DeleteExpiredProbes(ctx, now)
		if err != nil {
			e.collaboratorFailed("store", err)
		} else if int(n) > removed {
			removed = int(n)
		}
	}
	return removed
}

// lookupProbe finds a probe in memory, falling back to the store. Concurrent misses for the same id
// share one store read.
func (e *GenesisEngine) lookupProbe(ctx context.Context, probeID string) (*domain.ProbePacket, error) {
	e.mu.RLock()
	p, ok := e.probes[probeID]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}
	if e.store == nil {
		return nil, ErrProbeNotFound
	}

	v, err, _ := e.loads.Do("probe:"+probeID, func() (any, error) {
		return e.store.GetProbe(ctx, probeID)
	})
	if err != nil {
		if !isNotFound(err) {
			e.collaboratorFailed("store", err, zap.String("probe_id", probeID))
		}
		return nil, ErrProbeNotFound
	}

	loaded := v.(*domain.ProbePacket).Clone()
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.probes[probeID]; ok {
		return existing, nil
	}
	e.trackProbeLocked(loaded)
	return loaded, nil
}

// pool returns the user's pool, hydrating it from the store on first use. Callers hold the user lock.
func (e *GenesisEngine) pool(ctx context.Context, userID string) *userPool {
	e.mu.RLock()
	p, ok := e.pools[userID]
	e.mu.RUnlock()
	if ok {
		return p
	}

	p = newUserPool()
	if e.store != nil {
		v, err, _ := e.loads.Do("hypotheses:"+userID, func() (any, error) {
			return e.store.LoadHypotheses(ctx, userID)
		})
		switch {
		case err == nil:
			for _, h := range v.([]domain.Hypothesis) {
				p.add(h.Clone())
			}
		case !isNotFound(err):
			e.collaboratorFailed("store", err, zap.String("user_id", userID))
		}
	}

	e.mu.Lock()
	e.pools[userID] = p
	e.mu.Unlock()
	return p
}

func (e *GenesisEngine) persist(ctx context.Context, userID string, p *userPool) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveHypotheses(ctx, userID, p.snapshot()); err != nil {
		e.collaboratorFailed("store", err, zap.String("user_id", userID))
	}
}

func (e *GenesisEngine) publish(ctx context.Context, eventType string, payload map[string]any, userID string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, eventType, payload, domain.EventSourceGenesis, userID); err != nil {
		e.collaboratorFailed("publisher", err, zap.String("event_type", eventType), zap.String("user_id", userID))
	}
}

func (e *GenesisEngine) collaboratorFailed(name string, err error, fields ...zap.Field) {
	e.metrics.collaboratorFailed(name)
	e.logger.Warn(name+" call failed, continuing in memory", append(fields, zap.Error(err))...)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
