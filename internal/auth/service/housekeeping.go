package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sitepass/sitepass/internal/auth/store"
)

// HousekeepingService periodically cleans up expired database records to
// prevent unbounded growth of refresh_tokens, sessions and retired
// signing_secrets, and optionally runs scheduled secret rotation.
type HousekeepingService struct {
	Store    store.Store
	Rotation *RotationService
	Logger   *slog.Logger
	Interval time.Duration

	// RotationInterval triggers an automatic rotation when the active
	// secrets are older than this. Zero disables scheduled rotation;
	// manual rotation stays available.
	RotationInterval time.Duration

	// SecretRetention is how long retired secrets stay in the database
	// after deactivation. Must exceed the verification grace window.
	SecretRetention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// sweep interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, rotation *RotationService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Rotation: rotation,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut
// it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep performs one cleanup pass. Each step is independent; a failure in
// one does not stop the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}

	if err := s.Store.Sessions().DeleteExpiredSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	}

	if s.SecretRetention > 0 {
		cutoff := now.Add(-s.SecretRetention)
		if err := s.Store.SigningSecrets().DeleteExpiredSigningSecrets(ctx, cutoff); err != nil {
			s.Logger.Error("failed to delete retired signing secrets", "error", err)
		}
		s.Rotation.Keyring.Forget(s.SecretRetention, now)
	}

	if s.RotationInterval > 0 {
		s.maybeRotate(ctx, now)
	}

	s.Logger.Debug("housekeeping sweep completed")
}

// maybeRotate rotates the signing secrets when the active generation has
// aged past the rotation interval.
func (s *HousekeepingService) maybeRotate(ctx context.Context, now time.Time) {
	active, err := s.Store.SigningSecrets().ListActiveSigningSecrets(ctx)
	if err != nil {
		s.Logger.Error("failed to inspect active signing secrets", "error", err)
		return
	}
	if len(active) == 0 {
		return // startup initialization has not run yet
	}

	due := false
	for _, secret := range active {
		if now.Sub(secret.CreatedAt) >= s.RotationInterval {
			due = true
			break
		}
	}
	if !due {
		return
	}

	if _, err := s.Rotation.Rotate(ctx); err != nil {
		s.Logger.Error("scheduled secret rotation failed", "error", err)
		return
	}
	s.Logger.Info("scheduled secret rotation completed")
}
