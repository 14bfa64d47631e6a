package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// DefaultChannel is the NOTIFY channel events are published on.
const DefaultChannel = "genesis_events"

// PGNotifier publishes events to other processes through Postgres NOTIFY.
type PGNotifier struct {
	db      *pgxpool.Pool
	channel string
	logger  *zap.Logger
	now     func() time.Time
}

func NewPGNotifier(db *pgxpool.Pool, channel string, logger *zap.Logger) *PGNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGNotifier{
		db:      db,
		channel: channel,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (n *PGNotifier) Publish(ctx context.Context, eventType string, payload map[string]any, source, userID string) error {
	body, err := json.Marshal(domain.Event{
		Type:       eventType,
		Payload:    payload,
		Source:     source,
		UserID:     userID,
		OccurredAt: n.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := n.db.Exec(ctx, `SELECT pg_notify($1, $2)`, n.channel, string(body)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", n.channel, err)
	}
	return nil
}

// Listen delivers notifications from the channel to h until ctx is cancelled.
func (n *PGNotifier) Listen(ctx context.Context, h Handler) error {
	conn, err := n.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", n.channel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var e domain.Event
		if err := json.Unmarshal([]byte(notification.Payload), &e); err != nil {
			n.logger.Warn("dropping malformed event notification", zap.Error(err))
			continue
		}
		h(ctx, e)
	}
}
