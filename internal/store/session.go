package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

// SaveSession upserts the session snapshot.
func (s *SessionStore) SaveSession(ctx context.Context, sess *domain.GenesisSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO genesis_sessions (
			id, user_id, state, total_probes_sent, completion_reason, data,
			last_activity_at, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			total_probes_sent = EXCLUDED.total_probes_sent,
			completion_reason = EXCLUDED.completion_reason,
			data = EXCLUDED.data,
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`,
		sess.SessionID, sess.UserID, string(sess.State), sess.TotalProbesSent,
		nullString(sess.CompletionReason), data,
		sess.LastActivityAt, sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	return err
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*domain.GenesisSession, error) {
	return s.scanOne(ctx, `SELECT data FROM genesis_sessions WHERE id = $1`, sessionID)
}

// GetOpenSessionByUser returns the user's most recent session that is not complete.
func (s *SessionStore) GetOpenSessionByUser(ctx context.Context, userID string) (*domain.GenesisSession, error) {
	return s.scanOne(ctx,
		`SELECT data FROM genesis_sessions
		 WHERE user_id = $1 AND state <> 'complete'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	)
}

// ListIdleSessions returns open sessions with no activity since before.
func (s *SessionStore) ListIdleSessions(ctx context.Context, before time.Time) ([]domain.GenesisSession, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM genesis_sessions
		 WHERE state <> 'complete' AND last_activity_at < $1
		 ORDER BY last_activity_at`,
		before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GenesisSession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sess domain.GenesisSession
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SessionStore) scanOne(ctx context.Context, query string, arg string) (*domain.GenesisSession, error) {
	var data []byte
	if err := s.db.QueryRow(ctx, query, arg).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sess := &domain.GenesisSession{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}
