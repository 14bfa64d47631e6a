package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// ProbeRetention is how long an expired probe is kept so late answers still report expiry.
const ProbeRetention = 24 * time.Hour

const (
	hypothesesPrefix  = "hyp/"
	probePrefix       = "probe/"
	sessionPrefix     = "session/"
	sessionUserPrefix = "session-user/"
	profilePrefix     = "profile/"
)

// SnapshotStore keeps hypothesis pools, probes, sessions and profile field state in badger.
// It implements the hypothesis and session stores and the profile tracker.
type SnapshotStore struct {
	db  *DB
	now func() time.Time
}

func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SnapshotStore) SaveHypotheses(ctx context.Context, userID string, hs []domain.Hypothesis) error {
	return s.put(hypothesesPrefix+userID, hs, 0)
}

func (s *SnapshotStore) LoadHypotheses(ctx context.Context, userID string) ([]domain.Hypothesis, error) {
	var hs []domain.Hypothesis
	if err := s.get(hypothesesPrefix+userID, &hs); err != nil {
		return nil, err
	}
	return hs, nil
}

// SaveProbe stores the probe. Unanswered probes with an expiry are dropped by badger
// ProbeRetention after they expire.
func (s *SnapshotStore) SaveProbe(ctx context.Context, p *domain.ProbePacket) error {
	var ttl time.Duration
	if p.ExpiresAt != nil && p.AnsweredAt == nil {
		ttl = p.ExpiresAt.Sub(s.now()) + ProbeRetention
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	return s.put(probePrefix+p.ID, p, ttl)
}

func (s *SnapshotStore) GetProbe(ctx context.Context, probeID string) (*domain.ProbePacket, error) {
	p := &domain.ProbePacket{}
	if err := s.get(probePrefix+probeID, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SnapshotStore) DeleteExpiredProbes(ctx context.Context, now time.Time) (int64, error) {
	var expired [][]byte
	err := s.scan(probePrefix, func(key, val []byte) error {
		var p domain.ProbePacket
		if err := json.Unmarshal(val, &p); err != nil {
			return fmt.Errorf("unmarshal probe %s: %w", key, err)
		}
		if p.Expired(now) {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range expired {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(expired)), nil
}

// SaveSession stores the session and keeps the user's open-session pointer in step with its state.
func (s *SnapshotStore) SaveSession(ctx context.Context, sess *domain.GenesisSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	userKey := []byte(sessionUserPrefix + sess.UserID)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(sessionPrefix+sess.SessionID), data); err != nil {
			return err
		}
		if !sess.IsComplete() {
			return txn.Set(userKey, []byte(sess.SessionID))
		}

		item, err := txn.Get(userKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(current) == sess.SessionID {
			return txn.Delete(userKey)
		}
		return nil
	})
}

func (s *SnapshotStore) GetSession(ctx context.Context, sessionID string) (*domain.GenesisSession, error) {
	sess := &domain.GenesisSession{}
	if err := s.get(sessionPrefix+sessionID, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SnapshotStore) GetOpenSessionByUser(ctx context.Context, userID string) (*domain.GenesisSession, error) {
	var id []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionUserPrefix + userID))
		if err != nil {
			return err
		}
		id, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	sess, err := s.GetSession(ctx, string(id))
	if err != nil {
		return nil, err
	}
	if sess.IsComplete() {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

func (s *SnapshotStore) ListIdleSessions(ctx context.Context, before time.Time) ([]domain.GenesisSession, error) {
	var out []domain.GenesisSession
	err := s.scan(sessionPrefix, func(key, val []byte) error {
		var sess domain.GenesisSession
		if err := json.Unmarshal(val, &sess); err != nil {
			return fmt.Errorf("unmarshal session %s: %w", key, err)
		}
		if !sess.IsComplete() && sess.LastActivityAt.Before(before) {
			out = append(out, sess)
		}
		return nil
	})
	return out, err
}

func profileKey(userID, module, field string) string {
	return profilePrefix + userID + "/" + module + "/" + field
}

// MarkUncertain records fields as uncertain unless they are already resolved.
func (s *SnapshotStore) MarkUncertain(ctx context.Context, userID, module string, fields []string) error {
	now := s.now()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, f := range fields {
			key := []byte(profileKey(userID, module, f))
			var existing domain.ProfileField
			item, err := txn.Get(key)
			switch {
			case err == nil:
				if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &existing) }); err != nil {
					return err
				}
				if existing.Status == domain.FieldStatusResolved {
					continue
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			data, err := json.Marshal(domain.ProfileField{
				UserID:    userID,
				Module:    module,
				Field:     f,
				Status:    domain.FieldStatusUncertain,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SnapshotStore) MarkResolved(ctx context.Context, userID, module, field, value string) error {
	return s.put(profileKey(userID, module, field), domain.ProfileField{
		UserID:    userID,
		Module:    module,
		Field:     field,
		Status:    domain.FieldStatusResolved,
		Value:     value,
		UpdatedAt: s.now(),
	}, 0)
}

// ProfileFields lists the user's tracked fields in key order.
func (s *SnapshotStore) ProfileFields(ctx context.Context, userID string) ([]domain.ProfileField, error) {
	var out []domain.ProfileField
	err := s.scan(profilePrefix+userID+"/", func(key, val []byte) error {
		var f domain.ProfileField
		if err := json.Unmarshal(val, &f); err != nil {
			return fmt.Errorf("unmarshal profile field %s: %w", key, err)
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func (s *SnapshotStore) put(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *SnapshotStore) get(key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *SnapshotStore) scan(prefix string, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
				return err
			}
		}
		return nil
	})
}
