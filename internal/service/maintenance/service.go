// internal/service/maintenance/service.go
package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultFailedRetention    = 30 * 24 * time.Hour
	DefaultCompletedRetention = 365 * 24 * time.Hour
)

// Retention windows. Zero values take the defaults.
type Retention struct {
	Failed    time.Duration
	Completed time.Duration
}

type Store interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ArchiveCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service runs retention housekeeping outside the checkout path.
type Service struct {
	store     Store
	retention Retention
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, retention Retention, logger *zap.Logger) *Service {
	if retention.Failed <= 0 {
		retention.Failed = DefaultFailedRetention
	}
	if retention.Completed <= 0 {
		retention.Completed = DefaultCompletedRetention
	}
	return &Service{store: store, retention: retention, logger: logger, now: time.Now}
}

// CleanupFailed deletes FAILED transactions older than the failed retention window.
func (s *Service) CleanupFailed(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention.Failed)
	n, err := s.store.DeleteFailedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup of failed transactions: %w", err)
	}
	s.logger.Info("failed transactions cleaned up", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// ArchiveCompleted archives COMPLETED transactions older than the completed retention window.
func (s *Service) ArchiveCompleted(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention.Completed)
	n, err := s.store.ArchiveCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive of completed transactions: %w", err)
	}
	s.logger.Info("completed transactions archived", zap.Int64("archived", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// RunOnce performs both jobs; a failing job does not stop the other.
func (s *Service) RunOnce(ctx context.Context) error {
	now := s.now()
	_, cleanupErr := s.CleanupFailed(ctx, now)
	_, archiveErr := s.ArchiveCompleted(ctx, now)
	if cleanupErr != nil {
		return cleanupErr
	}
	return archiveErr
}

// Run repeats RunOnce every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("maintenance scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("maintenance run failed", zap.Error(err))
			}
		}
	}
}
