// Package retention deletes spam feedback and stale export archives once
// they age out.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/metrics"
)

const (
	// DefaultThreshold is how long spam is kept.
	DefaultThreshold = 15 * 24 * time.Hour
	// BatchSize is the number of records deleted per round trip.
	BatchSize = 100
)

// Store lists and deletes aged spam.
type Store interface {
	ListSpamBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DeleteBatch(ctx context.Context, ids []uuid.UUID) (int, error)
}

// Sweeper deletes spam older than a threshold.
type Sweeper struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(store Store, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, logger: log, now: time.Now}
}

// SweepOldSpam deletes every spam record created more than threshold ago
// and returns how many were deleted. Published records and newer spam are
// never touched. A non-positive threshold uses DefaultThreshold.
func (s *Sweeper) SweepOldSpam(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	cutoff := s.now().Add(-threshold)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		ids, err := s.store.ListSpamBefore(ctx, cutoff, BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list old spam: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		deleted, err := s.store.DeleteBatch(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("failed to delete old spam: %w", err)
		}
		total += deleted
		metrics.RecordDeleted("retention", deleted)

		if deleted == 0 || len(ids) < BatchSize {
			break
		}
	}

	if total > 0 {
		s.logger.Info("swept old spam",
			slog.Int("deleted", total),
			slog.Time("cutoff", cutoff),
		)
	}
	return total, nil
}
