package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 15 * time.Minute
	DefaultIdleTimeout   = 72 * time.Hour
)

// Sweeper periodically completes idle sessions and drops expired probes.
type Sweeper struct {
	engine   *GenesisEngine
	sessions *SessionManager
	logger   *zap.Logger

	interval    time.Duration
	idleTimeout time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewSweeper(engine *GenesisEngine, sessions *SessionManager, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		engine:      engine,
		sessions:    sessions,
		logger:      logger,
		interval:    defaultSweepInterval,
		idleTimeout: DefaultIdleTimeout,
		stopCh:      make(chan struct{}),
	}
}

func (s *Sweeper) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *Sweeper) SetIdleTimeout(d time.Duration) {
	if d > 0 {
		s.idleTimeout = d
	}
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("genesis sweeper started",
			zap.Duration("interval", s.interval),
			zap.Duration("idle_timeout", s.idleTimeout))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("genesis sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper. It is safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.idleTimeout)
	if n := s.sessions.CompleteIdleSessions(ctx, cutoff); n > 0 {
		s.logger.Info("completed idle sessions", zap.Int("count", n))
	}
	if n := s.engine.SweepExpiredProbes(ctx); n > 0 {
		s.logger.Info("dropped expired probes", zap.Int("count", n))
	}
}
