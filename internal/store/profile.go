package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// ProfileStore tracks which profile fields are uncertain or resolved.
type ProfileStore struct {
	db *pgxpool.Pool
}

func NewProfileStore(db *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{db: db}
}

// MarkUncertain records the fields as uncertain. Fields already resolved stay resolved.
func (s *ProfileStore) MarkUncertain(ctx context.Context, userID, module string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range fields {
		batch.Queue(
			`INSERT INTO genesis_profile_fields (user_id, module, field, status)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, module, field) DO UPDATE SET
				updated_at = NOW()
			 WHERE genesis_profile_fields.status <> 'resolved'`,
			userID, module, f, domain.FieldStatusUncertain,
		)
	}
	return s.db.SendBatch(ctx, batch).Close()
}

func (s *ProfileStore) MarkResolved(ctx context.Context, userID, module, field, value string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO genesis_profile_fields (user_id, module, field, status, value)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, module, field) DO UPDATE SET
			status = EXCLUDED.status,
			value = EXCLUDED.value,
			updated_at = NOW()`,
		userID, module, field, domain.FieldStatusResolved, value,
	)
	return err
}

// ProfileFields returns the user's tracked fields ordered by module and field.
func (s *ProfileStore) ProfileFields(ctx context.Context, userID string) ([]domain.ProfileField, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, module, field, status, value, updated_at
		 FROM genesis_profile_fields
		 WHERE user_id = $1
		 ORDER BY module, field`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProfileField
	for rows.Next() {
		var (
			f     domain.ProfileField
			value *string
		)
		if err := rows.Scan(&f.UserID, &f.Module, &f.Field, &f.Status, &value, &f.UpdatedAt); err != nil {
			return nil, err
		}
		if value != nil {
			f.Value = *value
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
