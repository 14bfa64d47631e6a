package domain

import (
	"time"
)

// Session budget defaults.
const (
	DefaultMaxProbesPerSession = 10
	DefaultMaxProbesPerField   = 3
)

type SessionState string

const (
	SessionActive   SessionState = "active"
	SessionPaused   SessionState = "paused"
	SessionComplete SessionState = "complete"
)

// Completion reasons recorded on a session.
const (
	ReasonBudgetExhausted    = "budget_exhausted"
	ReasonAllFieldsExhausted = "all_fields_exhausted"
	ReasonNoRemaining        = "no_remaining_hypotheses"
	ReasonAllResolved        = "all_fields_resolved"
	ReasonQueueEmpty         = "queue_empty"
	ReasonIdleTimeout        = "idle_timeout"
	ReasonReplaced           = "replaced"
	ReasonUserEnded          = "user_ended"
)

// GenesisSession is a budgeted probing conversation with one user.
// It refers to hypotheses by id only; the engine owns them.
type GenesisSession struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	State     SessionState `json:"state"`

	TotalProbesSent int `json:"total_probes_sent"`
	TotalResponses  int `json:"total_responses"`

	ProbingQueue []string          `json:"probing_queue"`
	QueueFields  map[string]string `json:"queue_fields"`

	MaxProbesPerSession int `json:"max_probes_per_session"`
	MaxProbesPerField   int `json:"max_probes_per_field"`

	FieldsProbed    map[string]int `json:"fields_probed"`
	FieldsConfirmed []string       `json:"fields_confirmed"`
	FieldsExhausted []string       `json:"fields_exhausted"`

	CurrentProbeID   string `json:"current_probe_id,omitempty"`
	CompletionReason string `json:"completion_reason,omitempty"`
	Summary          string `json:"summary,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// NewGenesisSession creates an active session. Non-positive limits fall back to the defaults.
func NewGenesisSession(id, userID string, maxPerSession, maxPerField int, now time.Time) *GenesisSession {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxProbesPerSession
	}
	if maxPerField <= 0 {
		maxPerField = DefaultMaxProbesPerField
	}
	return &GenesisSession{
		SessionID:           id,
		UserID:              userID,
		State:               SessionActive,
		ProbingQueue:        []string{},
		QueueFields:         map[string]string{},
		MaxProbesPerSession: maxPerSession,
		MaxProbesPerField:   maxPerField,
		FieldsProbed:        map[string]int{},
		FieldsConfirmed:     []string{},
		FieldsExhausted:     []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
		LastActivityAt:      now,
	}
}

// ShouldContinue is true only for an active session with budget left and something queued.
func (s *GenesisSession) ShouldContinue() bool {
	return s.State == SessionActive &&
		s.TotalProbesSent < s.MaxProbesPerSession &&
		len(s.ProbingQueue) > 0
}

// BudgetExhausted reports whether the session-wide probe budget is spent.
func (s *GenesisSession) BudgetExhausted() bool {
	return s.TotalProbesSent >= s.MaxProbesPerSession
}

// CanProbeField is true while the field is under its per-session probe cap. Fields are identified
// by Hypothesis.FieldKey so equal field names in different modules keep separate budgets.
func (s *GenesisSession) CanProbeField(field string) bool {
	return s.FieldsProbed[field] < s.MaxProbesPerField
}

// Enqueue adds a hypothesis to the probing queue unless already present.
func (s *GenesisSession) Enqueue(hypothesisID, field string) {
	if s.InQueue(hypothesisID) {
		return
	}
	if s.QueueFields == nil {
		s.QueueFields = map[string]string{}
	}
	s.ProbingQueue = append(s.ProbingQueue, hypothesisID)
	s.QueueFields[hypothesisID] = field
}

func (s *GenesisSession) InQueue(hypothesisID string) bool {
	for _, id := range s.ProbingQueue {
		if id == hypothesisID {
			return true
		}
	}
	return false
}

// Dequeue removes a hypothesis from the queue.
func (s *GenesisSession) Dequeue(hypothesisID string) {
	kept := s.ProbingQueue[:0]
	for _, id := range s.ProbingQueue {
		if id != hypothesisID {
			kept = append(kept, id)
		}
	}
	s.ProbingQueue = kept
	delete(s.QueueFields, hypothesisID)
}

// purgeField drops every queued hypothesis that belongs to field.
func (s *GenesisSession) purgeField(field string) {
	kept := s.ProbingQueue[:0]
	for _, id := range s.ProbingQueue {
		if s.QueueFields[id] == field {
			delete(s.QueueFields, id)
			continue
		}
		kept = append(kept, id)
	}
	s.ProbingQueue = kept
}

// RecordProbeSent counts a probe against the session and field budgets. A field that reaches
// its cap is marked exhausted and its queue entries are purged.
func (s *GenesisSession) RecordProbeSent(field, probeID string, now time.Time) {
	if s.FieldsProbed == nil {
		s.FieldsProbed = map[string]int{}
	}
	s.TotalProbesSent++
	s.FieldsProbed[field]++
	s.CurrentProbeID = probeID
	s.touch(now)

	if s.FieldsProbed[field] >= s.MaxProbesPerField {
		if !contains(s.FieldsExhausted, field) {
			s.FieldsExhausted = append(s.FieldsExhausted, field)
		}
		s.purgeField(field)
	}
}

// RecordResponse counts an answered probe.
func (s *GenesisSession) RecordResponse(now time.Time) {
	s.TotalResponses++
	s.CurrentProbeID = ""
	s.touch(now)
}

// RecordConfirmed notes confirmed fields and drops their remaining queue entries.
func (s *GenesisSession) RecordConfirmed(fields []string, now time.Time) {
	for _, f := range fields {
		if !contains(s.FieldsConfirmed, f) {
			s.FieldsConfirmed = append(s.FieldsConfirmed, f)
		}
		s.purgeField(f)
	}
	if len(fields) > 0 {
		s.touch(now)
	}
}

// Pause moves an active session to paused.
func (s *GenesisSession) Pause(now time.Time) bool {
	if s.State != SessionActive {
		return false
	}
	s.State = SessionPaused
	s.touch(now)
	return true
}

// Resume moves a paused session back to active.
func (s *GenesisSession) Resume(now time.Time) bool {
	if s.State != SessionPaused {
		return false
	}
	s.State = SessionActive
	s.touch(now)
	return true
}

// Complete ends the session. Completion is terminal; it returns false if already complete.
func (s *GenesisSession) Complete(reason, summary string, now time.Time) bool {
	if s.State == SessionComplete {
		return false
	}
	s.State = SessionComplete
	s.CompletionReason = reason
	s.Summary = summary
	s.CurrentProbeID = ""
	t := now
	s.CompletedAt = &t
	s.touch(now)
	return true
}

func (s *GenesisSession) IsComplete() bool {
	return s.State == SessionComplete
}

func (s *GenesisSession) touch(now time.Time) {
	s.UpdatedAt = now
	s.LastActivityAt = now
}

// Clone returns a deep copy.
func (s *GenesisSession) Clone() *GenesisSession {
	c := *s
	c.ProbingQueue = append([]string{}, s.ProbingQueue...)
	c.QueueFields = make(map[string]string, len(s.QueueFields))
	for k, v := range s.QueueFields {
		c.QueueFields[k] = v
	}
	c.FieldsProbed = make(map[string]int, len(s.FieldsProbed))
	for k, v := range s.FieldsProbed {
		c.FieldsProbed[k] = v
	}
	c.FieldsConfirmed = append([]string{}, s.FieldsConfirmed...)
	c.FieldsExhausted = append([]string{}, s.FieldsExhausted...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
