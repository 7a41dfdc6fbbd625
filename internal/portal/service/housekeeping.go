package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/clockx"
)

// HousekeepingService periodically deletes expired refresh tokens and
// unused invite codes, and sweeps the activity tracker and lockout table.
type HousekeepingService struct {
	Store    store.Store
	Activity activity.Tracker
	Lockout  *Lockout
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Clock    clockx.Clock
	Interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService defaults interval to one hour.
func NewHousekeepingService(st store.Store, tracker activity.Tracker, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Activity: tracker,
		Logger:   logger,
		Clock:    clockx.Real(),
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs one cleanup right away and then one per Interval until Stop.
func (s *HousekeepingService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished. It is a no-op
// when the service never started.
func (s *HousekeepingService) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.Logger.Info("housekeeping service stopped")
	})
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup performs one pass. Each step is independent; a failure is
// logged and the rest still run.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := s.Clock.Now().UTC()

	if n, err := s.Store.RefreshTokens().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	} else {
		s.Metrics.Purged("refresh_token", n)
		s.Logger.Debug("deleted expired refresh tokens", "count", n)
	}

	if n, err := s.Store.InviteCodes().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired invite codes", "error", err)
	} else {
		s.Metrics.Purged("invite_code", n)
		s.Logger.Debug("deleted expired invite codes", "count", n)
	}

	if s.Activity != nil {
		if n, err := s.Activity.Sweep(ctx); err != nil {
			s.Logger.Error("failed to sweep session activity", "error", err)
		} else {
			s.Metrics.Purged("session_activity", int64(n))
		}
	}

	if s.Lockout != nil {
		s.Metrics.Purged("lockout", int64(s.Lockout.Sweep()))
	}
}
