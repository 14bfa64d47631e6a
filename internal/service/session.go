package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// StepResult is what one answered probe produced.
type StepResult struct {
	Session   *domain.GenesisSession `json:"session"`
	Updated   []*domain.Hypothesis   `json:"updated"`
	Confirmed []Confirmation         `json:"confirmed"`
	NextProbe *domain.ProbePacket    `json:"next_probe,omitempty"`
	Completed bool                   `json:"completed"`
}

// Progress summarises a session for display.
type Progress struct {
	SessionID        string              `json:"session_id"`
	UserID           string              `json:"user_id"`
	State            domain.SessionState `json:"state"`
	ProbesSent       int                 `json:"probes_sent"`
	ProbesRemaining  int                 `json:"probes_remaining"`
	Responses        int                 `json:"responses"`
	QueueLength      int                 `json:"queue_length"`
	FieldsConfirmed  map[string]string   `json:"fields_confirmed"`
	FieldsExhausted  []string            `json:"fields_exhausted"`
	FieldsPending    []string            `json:"fields_pending"`
	PercentResolved  float64             `json:"percent_resolved"`
	CompletionReason string              `json:"completion_reason,omitempty"`
	Summary          string              `json:"summary,omitempty"`
}

// SessionManager runs budgeted probing sessions against the engine. Each user has at most one open
// (active or paused) session; operations are serialized per user.
type SessionManager struct {
	engine  *GenesisEngine
	logger  *zap.Logger
	metrics *Metrics

	store     domain.SessionStore
	publisher domain.EventPublisher

	maxPerSession int
	maxPerField   int

	mu       sync.RWMutex
	sessions map[string]*domain.GenesisSession
	open     map[string]string

	locks *keyedMutex
	now   func() time.Time
}

func NewSessionManager(engine *GenesisEngine, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		engine:        engine,
		logger:        logger,
		maxPerSession: domain.DefaultMaxProbesPerSession,
		maxPerField:   domain.DefaultMaxProbesPerField,
		sessions:      make(map[string]*domain.GenesisSession),
		open:          make(map[string]string),
		locks:         newKeyedMutex(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *SessionManager) SetStore(s domain.SessionStore) {
	m.store = s
}

func (m *SessionManager) SetPublisher(p domain.EventPublisher) {
	m.publisher = p
}

func (m *SessionManager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// SetLimits sets the budgets for sessions created afterwards. Non-positive values keep the defaults.
func (m *SessionManager) SetLimits(perSession, perField int) {
	if perSession > 0 {
		m.maxPerSession = perSession
	}
	if perField > 0 {
		m.maxPerField = perField
	}
}

// CreateSession starts a fresh session for userID, queueing every hypothesis that needs probing.
// An open session for the user is completed with reason "replaced".
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (*domain.GenesisSession, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	if prev := m.openSession(ctx, userID); prev != nil {
		m.complete(ctx, prev, domain.ReasonReplaced)
	}
	return m.createLocked(ctx, userID).Clone(), nil
}

// GetOrCreateSession returns the user's open session, creating one if there is none. Hypotheses
// declared since the session started are added to its queue.
func (m *SessionManager) GetOrCreateSession(ctx context.Context, userID string) (*domain.GenesisSession, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	s := m.openSession(ctx, userID)
	if s == nil {
		return m.createLocked(ctx, userID).Clone(), nil
	}
	if m.enqueueCandidates(ctx, s) > 0 {
		m.save(ctx, s)
	}
	return s.Clone(), nil
}

func (m *SessionManager) createLocked(ctx context.Context, userID string) *domain.GenesisSession {
	s := domain.NewGenesisSession(uuid.NewString(), userID, m.maxPerSession, m.maxPerField, m.now())
	m.enqueueCandidates(ctx, s)

	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.open[userID] = s.SessionID
	m.mu.Unlock()

	m.save(ctx, s)
	m.logger.Info("genesis session created",
		zap.String("session_id", s.SessionID),
		zap.String("user_id", userID),
		zap.Int("queued", len(s.ProbingQueue)))
	return s
}

// enqueueCandidates adds probe-able hypotheses whose fields are still open in this session.
func (m *SessionManager) enqueueCandidates(ctx context.Context, s *domain.GenesisSession) int {
	added := 0
	for _, h := range m.engine.RankedCandidates(ctx, s.UserID) {
		if s.InQueue(h.ID) || !s.CanProbeField(h.FieldKey()) || contains(s.FieldsConfirmed, h.FieldKey()) {
			continue
		}
		s.Enqueue(h.ID, h.FieldKey())
		added++
	}
	return added
}

// GetSession returns a copy of the session.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*domain.GenesisSession, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(s.UserID)
	defer unlock()
	return s.Clone(), nil
}

// GetNextProbe returns the next probe for the session, or nil when there is nothing left to ask.
// Running out completes an active session; a paused session just yields nil.
func (m *SessionManager) GetNextProbe(ctx context.Context, sessionID string) (*domain.ProbePacket, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(s.UserID)
	defer unlock()

	if s.IsComplete() {
		return nil, nil
	}
	return m.nextProbeLocked(ctx, s), nil
}

func (m *SessionManager) nextProbeLocked(ctx context.Context, s *domain.GenesisSession) *domain.ProbePacket {
	if s.State == domain.SessionPaused {
		return nil
	}
	if !s.ShouldContinue() {
		m.complete(ctx, s, m.stopReason(ctx, s))
		return nil
	}

	ranked := m.engine.RankedCandidates(ctx, s.UserID)

	var queued, probable []*domain.Hypothesis
	for _, h := range ranked {
		if !s.CanProbeField(h.FieldKey()) {
			continue
		}
		if s.InQueue(h.ID) {
			queued = append(queued, h)
		}
		probable = append(probable, h)
	}
	m.pruneQueue(s, ranked)

	candidates := queued
	if len(candidates) == 0 {
		candidates = probable
	}

	for _, h := range candidates {
		probe, err := m.engine.generateProbe(ctx, s.UserID, h.ID, "", s.SessionID)
		if err != nil {
			m.logger.Debug("skipping hypothesis", zap.String("hypothesis_id", h.ID), zap.Error(err))
			continue
		}
		s.Enqueue(h.ID, h.FieldKey())
		s.RecordProbeSent(h.FieldKey(), probe.ID, m.now())
		m.save(ctx, s)
		return probe
	}

	reason := domain.ReasonNoRemaining
	if len(s.FieldsExhausted) > 0 {
		reason = domain.ReasonAllFieldsExhausted
	}
	m.complete(ctx, s, reason)
	return nil
}

// stopReason explains why a session that cannot continue is ending.
func (m *SessionManager) stopReason(ctx context.Context, s *domain.GenesisSession) string {
	if s.BudgetExhausted() {
		return domain.ReasonBudgetExhausted
	}
	ranked := m.engine.RankedCandidates(ctx, s.UserID)
	if len(s.FieldsConfirmed) > 0 && len(ranked) == 0 {
		return domain.ReasonAllResolved
	}
	for _, h := range ranked {
		if s.CanProbeField(h.FieldKey()) {
			return domain.ReasonQueueEmpty
		}
	}
	if len(s.FieldsExhausted) > 0 {
		return domain.ReasonAllFieldsExhausted
	}
	return domain.ReasonNoRemaining
}

// pruneQueue drops queue entries that no longer need probing.
func (m *SessionManager) pruneQueue(s *domain.GenesisSession, ranked []*domain.Hypothesis) {
	live := make(map[string]bool, len(ranked))
	for _, h := range ranked {
		live[h.ID] = true
	}
	for _, id := range append([]string(nil), s.ProbingQueue...) {
		if !live[id] {
			s.Dequeue(id)
		}
	}
}

// ProcessResponse applies a response through the engine, runs the confirmation check and fetches
// the next probe. The session completes when no next probe exists.
func (m *SessionManager) ProcessResponse(ctx context.Context, sessionID string, resp domain.ProbeResponse) (*StepResult, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(s.UserID)
	defer unlock()

	switch s.State {
	case domain.SessionComplete:
		return nil, ErrSessionComplete
	case domain.SessionPaused:
		return nil, fmt.Errorf("%w: session is paused", ErrSessionState)
	}

	probe, err := m.engine.GetProbe(ctx, resp.ProbeID)
	if err != nil {
		return nil, err
	}
	if probe.UserID != s.UserID {
		return nil, ErrProbeNotFound
	}

	updated, err := m.engine.ProcessResponse(ctx, resp.ProbeID, resp)
	if err != nil {
		return nil, err
	}
	confirmations := m.engine.CheckConfirmations(ctx, s.UserID)

	now := m.now()
	s.RecordResponse(now)
	fields := make([]string, 0, len(confirmations))
	for _, c := range confirmations {
		fields = append(fields, c.Hypothesis.FieldKey())
	}
	s.RecordConfirmed(fields, now)

	next := m.nextProbeLocked(ctx, s)
	m.save(ctx, s)

	return &StepResult{
		Session:   s.Clone(),
		Updated:   updated,
		Confirmed: confirmations,
		NextProbe: next,
		Completed: s.IsComplete(),
	}, nil
}

// CompleteSession ends the session. Completing a completed session returns it unchanged.
func (m *SessionManager) CompleteSession(ctx context.Context, sessionID, reason string) (*domain.GenesisSession, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(s.UserID)
	defer unlock()

	if reason == "" {
		reason = domain.ReasonUserEnded
	}
	m.complete(ctx, s, reason)
	return s.Clone(), nil
}

func (m *SessionManager) Pause(ctx context.Context, sessionID string) (*domain.GenesisSession, error) {
	return m.transition(ctx, sessionID, (*domain.GenesisSession).Pause)
}

func (m *SessionManager) Resume(ctx context.Context, sessionID string) (*domain.GenesisSession, error) {
	return m.transition(ctx, sessionID, (*domain.GenesisSession).Resume)
}

func (m *SessionManager) transition(ctx context.Context, sessionID string, apply func(*domain.GenesisSession, time.Time) bool) (*domain.GenesisSession, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(s.UserID)
	defer unlock()

	if s.IsComplete() {
		return nil, ErrSessionComplete
	}
	if !apply(s, m.now()) {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionState, s.State)
	}
	m.save(ctx, s)
	return s.Clone(), nil
}

// GetProgress reports budgets and field outcomes for the session's user.
func (m *SessionManager) GetProgress(ctx context.Context, sessionID string) (*Progress, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(s.UserID)
	defer unlock()

	confirmed, pending := m.fieldOutcomes(ctx, s.UserID)
	p := &Progress{
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		State:            s.State,
		ProbesSent:       s.TotalProbesSent,
		ProbesRemaining:  max(0, s.MaxProbesPerSession-s.TotalProbesSent),
		Responses:        s.TotalResponses,
		QueueLength:      len(s.ProbingQueue),
		FieldsConfirmed:  confirmed,
		FieldsExhausted:  append([]string{}, s.FieldsExhausted...),
		FieldsPending:    pending,
		CompletionReason: s.CompletionReason,
		Summary:          s.Summary,
	}
	if total := len(confirmed) + len(pending); total > 0 {
		p.PercentResolved = float64(len(confirmed)) / float64(total) * 100
	}
	return p, nil
}

// CompleteIdleSessions completes open sessions with no activity since before and returns how many it completed.
func (m *SessionManager) CompleteIdleSessions(ctx context.Context, before time.Time) int {
	var idle []string
	m.mu.RLock()
	for _, id := range m.open {
		idle = append(idle, id)
	}
	m.mu.RUnlock()

	if m.store != nil {
		stored, err := m.store.ListIdleSessions(ctx, before)
		if err != nil {
			m.storeFailed(err)
		}
		for _, s := range stored {
			if !contains(idle, s.SessionID) {
				idle = append(idle, s.SessionID)
			}
		}
	}

	completed := 0
	for _, id := range idle {
		s, err := m.lookup(ctx, id)
		if err != nil {
			continue
		}
		unlock := m.locks.Lock(s.UserID)
		if !s.IsComplete() && s.LastActivityAt.Before(before) {
			m.complete(ctx, s, domain.ReasonIdleTimeout)
			completed++
		}
		unlock()
	}
	return completed
}

// complete ends s with a summary of the user's confirmed and still-uncertain fields. Callers hold the user lock.
func (m *SessionManager) complete(ctx context.Context, s *domain.GenesisSession, reason string) {
	summary := m.summary(ctx, s)
	if !s.Complete(reason, summary, m.now()) {
		return
	}

	m.mu.Lock()
	if m.open[s.UserID] == s.SessionID {
		delete(m.open, s.UserID)
	}
	m.mu.Unlock()

	m.save(ctx, s)
	m.metrics.sessionCompleted(reason)
	m.logger.Info("genesis session completed",
		zap.String("session_id", s.SessionID),
		zap.String("user_id", s.UserID),
		zap.String("reason", reason),
		zap.Int("probes_sent", s.TotalProbesSent),
		zap.Int("responses", s.TotalResponses))

	if m.publisher != nil {
		err := m.publisher.Publish(ctx, domain.EventSessionCompleted, map[string]any{
			"session_id":       s.SessionID,
			"reason":           reason,
			"probes_sent":      s.TotalProbesSent,
			"responses":        s.TotalResponses,
			"fields_confirmed": s.FieldsConfirmed,
			"fields_exhausted": s.FieldsExhausted,
			"summary":          summary,
		}, domain.EventSourceGenesis, s.UserID)
		if err != nil {
			m.metrics.collaboratorFailed("publisher")
			m.logger.Warn("publisher call failed, continuing", zap.String("session_id", s.SessionID), zap.Error(err))
		}
	}
}

func (m *SessionManager) summary(ctx context.Context, s *domain.GenesisSession) string {
	confirmed, pending := m.fieldOutcomes(ctx, s.UserID)

	var sb strings.Builder
	if len(confirmed) == 0 {
		sb.WriteString("No fields confirmed.")
	} else {
		names := make([]string, 0, len(confirmed))
		for f := range confirmed {
			names = append(names, f)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, f := range names {
			parts = append(parts, f+"="+confirmed[f])
		}
		sb.WriteString("Confirmed: " + strings.Join(parts, ", ") + ".")
	}
	if len(pending) > 0 {
		sb.WriteString(" Still uncertain: " + strings.Join(pending, ", ") + ".")
	}
	fmt.Fprintf(&sb, " Probes used: %d/%d.", s.TotalProbesSent, s.MaxProbesPerSession)
	return sb.String()
}

// fieldOutcomes returns confirmed values and the sorted keys of fields still open, both keyed
// by module/field.
func (m *SessionManager) fieldOutcomes(ctx context.Context, userID string) (map[string]string, []string) {
	confirmed := make(map[string]string)
	for _, h := range m.engine.GetConfirmedHypotheses(ctx, userID) {
		confirmed[h.FieldKey()] = h.SuspectedValue
	}
	seen := make(map[string]bool)
	var pending []string
	for _, h := range m.engine.GetActiveHypotheses(ctx, userID) {
		key := h.FieldKey()
		if _, ok := confirmed[key]; ok || seen[key] {
			continue
		}
		seen[key] = true
		pending = append(pending, key)
	}
	sort.Strings(pending)
	return confirmed, pending
}

// openSession returns the user's open session from memory or the store. Callers hold the user lock.
func (m *SessionManager) openSession(ctx context.Context, userID string) *domain.GenesisSession {
	m.mu.RLock()
	id, ok := m.open[userID]
	var s *domain.GenesisSession
	if ok {
		s = m.sessions[id]
	}
	m.mu.RUnlock()
	if s != nil && !s.IsComplete() {
		return s
	}
	if m.store == nil {
		return nil
	}

	stored, err := m.store.GetOpenSessionByUser(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			m.storeFailed(err)
		}
		return nil
	}
	if stored.IsComplete() {
		return nil
	}
	return m.adopt(stored)
}

// lookup finds a session by id in memory, falling back to the store.
func (m *SessionManager) lookup(ctx context.Context, sessionID string) (*domain.GenesisSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if m.store == nil {
		return nil, ErrSessionNotFound
	}

	stored, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if !isNotFound(err) {
			m.storeFailed(err)
		}
		return nil, ErrSessionNotFound
	}
	return m.adopt(stored), nil
}

// adopt caches a session loaded from the store, keeping any copy already in memory.
func (m *SessionManager) adopt(s *domain.GenesisSession) *domain.GenesisSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.SessionID]; ok {
		return existing
	}
	m.sessions[s.SessionID] = s
	if !s.IsComplete() {
		m.open[s.UserID] = s.SessionID
	}
	return s
}

func (m *SessionManager) save(ctx context.Context, s *domain.GenesisSession) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(ctx, s.Clone()); err != nil {
		m.storeFailed(err)
	}
}

func (m *SessionManager) storeFailed(err error) {
	m.metrics.collaboratorFailed("session_store")
	m.logger.Warn("session store call failed, continuing in memory", zap.Error(err))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
