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

type HypothesisStore struct {
	db *pgxpool.Pool
}

func NewHypothesisStore(db *pgxpool.Pool) *HypothesisStore {
	return &HypothesisStore{db: db}
}

// SaveHypotheses replaces the stored snapshot of a user's pool. Position keeps creation order.
func (s *HypothesisStore) SaveHypotheses(ctx context.Context, userID string, hs []domain.Hypothesis) error {
	batch := &pgx.Batch{}
	ids := make([]string, 0, len(hs))
	for i := range hs {
		h := &hs[i]
		data, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("marshal hypothesis %s: %w", h.ID, err)
		}
		ids = append(ids, h.ID)
		batch.Queue(
			`INSERT INTO genesis_hypotheses (
				id, user_id, module, field, suspected_value, confidence, resolved,
				resolution_method, position, data, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				confidence = EXCLUDED.confidence,
				resolved = EXCLUDED.resolved,
				resolution_method = EXCLUDED.resolution_method,
				position = EXCLUDED.position,
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at`,
			h.ID, userID, h.Module, h.Field, h.SuspectedValue, h.Confidence, h.Resolved,
			nullString(string(h.ResolutionMethod)), i, data, h.CreatedAt, h.UpdatedAt,
		)
	}
	batch.Queue(`DELETE FROM genesis_hypotheses WHERE user_id = $1 AND NOT (id = ANY($2))`, userID, ids)

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// LoadHypotheses returns the user's pool in creation order, or ErrNotFound if nothing is stored.
func (s *HypothesisStore) LoadHypotheses(ctx context.Context, userID string) ([]domain.Hypothesis, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM genesis_hypotheses WHERE user_id = $1 ORDER BY position, created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hs []domain.Hypothesis
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var h domain.Hypothesis
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, fmt.Errorf("unmarshal hypothesis: %w", err)
		}
		hs = append(hs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(hs) == 0 {
		return nil, ErrNotFound
	}
	return hs, nil
}

func (s *HypothesisStore) SaveProbe(ctx context.Context, p *domain.ProbePacket) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal probe: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO genesis_probes (
			id, user_id, hypothesis_id, session_id, probe_type, strategy_used, source,
			data, created_at, expires_at, answered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			answered_at = EXCLUDED.answered_at`,
		p.ID, p.UserID, p.HypothesisID, nullString(p.SessionID), string(p.ProbeType), p.StrategyUsed,
		string(p.Source), data, p.CreatedAt, p.ExpiresAt, p.AnsweredAt,
	)
	return err
}

func (s *HypothesisStore) GetProbe(ctx context.Context, probeID string) (*domain.ProbePacket, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM genesis_probes WHERE id = $1`, probeID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p := &domain.ProbePacket{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshal probe: %w", err)
	}
	return p, nil
}

// DeleteExpiredProbes removes unanswered probes whose expiry is before now.
func (s *HypothesisStore) DeleteExpiredProbes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM genesis_probes
		 WHERE answered_at IS NULL AND expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
