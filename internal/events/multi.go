package events

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// Multi publishes to every sink in order. A failing sink does not stop the others.
type Multi []domain.EventPublisher

func (m Multi) Publish(ctx context.Context, eventType string, payload map[string]any, source, userID string) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, eventType, payload, source, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
