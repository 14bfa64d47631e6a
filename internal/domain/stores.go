package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store implementations when a record does not exist.
var ErrNotFound = errors.New("not found")

// HypothesisStore persists per-user hypothesis pools and the probes sent for them.
// Implementations must round-trip every field, timestamps included.
type HypothesisStore interface {
	SaveHypotheses(ctx context.Context, userID string, hypotheses []Hypothesis) error
	LoadHypotheses(ctx context.Context, userID string) ([]Hypothesis, error)

	SaveProbe(ctx context.Context, p *ProbePacket) error
	GetProbe(ctx context.Context, probeID string) (*ProbePacket, error)
	DeleteExpiredProbes(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore persists genesis sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *GenesisSession) error
	GetSession(ctx context.Context, sessionID string) (*GenesisSession, error)
	GetOpenSessionByUser(ctx context.Context, userID string) (*GenesisSession, error)
	ListIdleSessions(ctx context.Context, lastActivityBefore time.Time) ([]GenesisSession, error)
}

// ProfileTracker records which profile fields are uncertain or resolved for a user.
type ProfileTracker interface {
	MarkUncertain(ctx context.Context, userID, module string, fields []string) error
	MarkResolved(ctx context.Context, userID, module, field, value string) error
}

// Profile field statuses.
const (
	FieldStatusUncertain = "uncertain"
	FieldStatusResolved  = "resolved"
)

// ProfileField is the completion state of one tracked profile field.
type ProfileField struct {
	UserID    string    `json:"user_id"`
	Module    string    `json:"module"`
	Field     string    `json:"field"`
	Status    string    `json:"status"`
	Value     string    `json:"value,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileReader lists the fields a ProfileTracker has recorded for a user.
type ProfileReader interface {
	ProfileFields(ctx context.Context, userID string) ([]ProfileField, error)
}

// ProbeContentProvider turns a prompt into free-form text that should contain a JSON object.
type ProbeContentProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// EventPublisher delivers fire-and-forget notifications.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any, source string, userID string) error
}
