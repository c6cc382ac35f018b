package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ahl-labs/lotteryd/internal/config"
)

// Scheduler drives the automatic round loop: open an epoch, let it run
// for the configured duration, settle it, pause, repeat. Manual bets and
// queries run concurrently against whatever epoch is current.
type Scheduler struct {
	cfg     config.SchedulerConfig
	service *Service
	window  time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	current string // id of the epoch now accepting bets

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the service. window is how long
// each epoch stays open before settlement.
func NewScheduler(cfg config.SchedulerConfig, service *Service, window time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		service: service,
		window:  window,
		logger:  logger,
	}
}

// Start begins the round loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("epoch scheduler started",
		"window", s.window,
		"interval", s.cfg.Interval,
	)
	return nil
}

// Stop ends the loop, settling the in-flight epoch first.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("epoch scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentEpochID returns the id of the epoch now accepting bets, or ""
// between rounds.
func (s *Scheduler) CurrentEpochID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// run is the main round loop.
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		e := s.service.OpenEpoch(s.ctx)

		s.mu.Lock()
		s.current = e.ID
		s.mu.Unlock()

		stopped := s.sleep(s.window)

		s.mu.Lock()
		s.current = ""
		s.mu.Unlock()

		if _, err := s.service.Settle(e.ID); err != nil {
			s.logger.Error("scheduled settlement failed",
				"epoch_id", e.ID,
				"error", err,
			)
		}

		if stopped {
			return
		}
		if s.sleep(s.cfg.Interval) {
			return
		}
	}
}

// sleep waits d or until the scheduler is stopped, reporting which.
func (s *Scheduler) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.ctx.Done():
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
