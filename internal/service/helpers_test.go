package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/llm"
	"github.com/Harshitk-cp/genesis/internal/strategy"
)

func newTestEngine(provider domain.ProbeContentProvider) *GenesisEngine {
	logger := zap.NewNop()
	metrics := NewMetrics(prometheus.NewRegistry())
	gen := NewProbeGenerator(provider, logger)
	gen.SetMetrics(metrics)
	e := NewGenesisEngine(strategy.NewDefaultRegistry(), gen, logger)
	e.SetMetrics(metrics)
	return e
}

func newTestSessionManager(provider domain.ProbeContentProvider) (*SessionManager, *GenesisEngine) {
	e := newTestEngine(provider)
	m := NewSessionManager(e, zap.NewNop())
	m.SetMetrics(e.metrics)
	return m, e
}

func risingSignDeclaration(userID string) domain.UncertaintyDeclaration {
	return domain.UncertaintyDeclaration{
		Module: "astrology",
		UserID: userID,
		Fields: []domain.UncertaintyField{{
			Field:      "rising_sign",
			Candidates: map[string]float64{"Leo": 0.25, "Virgo": 0.25, "Libra": 0.25, "Cancer": 0.25},
		}},
	}
}

func moonSignField() domain.UncertaintyField {
	return domain.UncertaintyField{
		Field:      "moon_sign",
		Candidates: map[string]float64{"Aries": 0.5, "Taurus": 0.3},
	}
}

func initialize(t *testing.T, e *GenesisEngine, decls ...domain.UncertaintyDeclaration) []*domain.Hypothesis {
	t.Helper()
	hs, err := e.InitializeFromUncertainties(context.Background(), decls)
	require.NoError(t, err)
	return hs
}

func byValue(hs []*domain.Hypothesis, value string) *domain.Hypothesis {
	for _, h := range hs {
		if h.SuspectedValue == value {
			return h
		}
	}
	return nil
}

// owned returns the engine's own copy of a hypothesis so tests can arrange state directly.
func owned(e *GenesisEngine, userID, id string) *domain.Hypothesis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pools[userID].byID[id]
}

// trackedProbes reports how many probes the engine holds in memory and how many hypotheses have one pending.
func trackedProbes(e *GenesisEngine) (probes, pendingHypotheses int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.probes), len(e.pending)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func choose(probeID string, option int) domain.ProbeResponse {
	return domain.ProbeResponse{ProbeID: probeID, ResponseType: domain.ProbeTypeBinaryChoice, SelectedOption: intPtr(option)}
}

func mappingProvider(mappings string) *llm.MockClient {
	m := llm.NewMockClient()
	m.Response = `{"question": "Which fits you better?", "options": ["First", "Second"], "mappings": ` + mappings + `}`
	return m
}

// recordingPublisher captures published events and can be told to fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload map[string]any, source, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, domain.Event{Type: eventType, Payload: payload, Source: source, UserID: userID, OccurredAt: time.Now()})
	return p.err
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// MockHypothesisStore mocks the HypothesisStore interface.
type MockHypothesisStore struct {
	mock.Mock
}

func (m *MockHypothesisStore) SaveHypotheses(ctx context.Context, userID string, hs []domain.Hypothesis) error {
	args := m.Called(ctx, userID, hs)
	return args.Error(0)
}

func (m *MockHypothesisStore) LoadHypotheses(ctx context.Context, userID string) ([]domain.Hypothesis, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Hypothesis), args.Error(1)
}

func (m *MockHypothesisStore) SaveProbe(ctx context.Context, p *domain.ProbePacket) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockHypothesisStore) GetProbe(ctx context.Context, probeID string) (*domain.ProbePacket, error) {
	args := m.Called(ctx, probeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProbePacket), args.Error(1)
}

func (m *MockHypothesisStore) DeleteExpiredProbes(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockProfileTracker mocks the ProfileTracker interface.
type MockProfileTracker struct {
	mock.Mock
}

func (m *MockProfileTracker) MarkUncertain(ctx context.Context, userID, module string, fields []string) error {
	args := m.Called(ctx, userID, module, fields)
	return args.Error(0)
}

func (m *MockProfileTracker) MarkResolved(ctx context.Context, userID, module, field, value string) error {
	args := m.Called(ctx, userID, module, field, value)
	return args.Error(0)
}

// memStore is an in-memory HypothesisStore and SessionStore used to test hydration.
type memStore struct {
	mu         sync.Mutex
	hypotheses map[string][]domain.Hypothesis
	probes     map[string]domain.ProbePacket
	sessions   map[string]domain.GenesisSession
}

func newMemStore() *memStore {
	return &memStore{
		hypotheses: map[string][]domain.Hypothesis{},
		probes:     map[string]domain.ProbePacket{},
		sessions:   map[string]domain.GenesisSession{},
	}
}

func (s *memStore) SaveHypotheses(ctx context.Context, userID string, hs []domain.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hypotheses[userID] = append([]domain.Hypothesis(nil), hs...)
	return nil
}

func (s *memStore) LoadHypotheses(ctx context.Context, userID string) ([]domain.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.hypotheses[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return hs, nil
}

func (s *memStore) SaveProbe(ctx context.Context, p *domain.ProbePacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[p.ID] = *p.Clone()
	return nil
}

func (s *memStore) GetProbe(ctx context.Context, id string) (*domain.ProbePacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.probes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) DeleteExpiredProbes(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.probes {
		if p.Expired(now) {
			delete(s.probes, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) SaveSession(ctx context.Context, sess *domain.GenesisSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = *sess.Clone()
	return nil
}

func (s *memStore) GetSession(ctx context.Context, id string) (*domain.GenesisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *memStore) GetOpenSessionByUser(ctx context.Context, userID string) (*domain.GenesisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.State != domain.SessionComplete {
			return sess.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) ListIdleSessions(ctx context.Context, before time.Time) ([]domain.GenesisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GenesisSession
	for _, sess := range s.sessions {
		if sess.State != domain.SessionComplete && sess.LastActivityAt.Before(before) {
			out = append(out, *sess.Clone())
		}
	}
	return out, nil
}
