package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Handler receives published events. It runs on the publisher's goroutine and must not block.
type Handler func(ctx context.Context, e domain.Event)

// Bus is an in-process event publisher with typed subscriptions.
type Bus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	now      func() time.Time
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Handler),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers h for eventType, or for everything when eventType is AllEvents.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers the event to its subscribers. A panicking handler is logged and skipped.
func (b *Bus) Publish(ctx context.Context, eventType string, payload map[string]any, source, userID string) error {
	e := domain.Event{
		Type:       eventType,
		Payload:    payload,
		Source:     source,
		UserID:     userID,
		OccurredAt: b.now(),
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[eventType])+len(b.handlers[AllEvents]))
	targets = append(targets, b.handlers[eventType]...)
	targets = append(targets, b.handlers[AllEvents]...)
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(ctx, h, e)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, h Handler, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", e.Type),
				zap.Any("panic", r))
		}
	}()
	h(ctx, e)
}

// LogHandler returns a handler that logs every event at info level.
func LogHandler(logger *zap.Logger) Handler {
	return func(_ context.Context, e domain.Event) {
		logger.Info("genesis event",
			zap.String("event_type", e.Type),
			zap.String("user_id", e.UserID),
			zap.String("source", e.Source),
			zap.Any("payload", e.Payload))
	}
}
