package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// processedRequestMaxAgeDays is how long successfully processed
// emergency requests are kept before the daily sweep removes them.
// Unprocessed or failed requests are never swept: they record a prior
// bug and must stay visible.
const processedRequestMaxAgeDays = 7

// InvitationSweepStore deletes expired invitations in a batch.
type InvitationSweepStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// RequestSweepStore deletes old, successfully processed emergency
// requests in a batch.
type RequestSweepStore interface {
	DeleteProcessedRequestsBefore(ctx context.Context, cutoffDays int) (int64, error)
}

// RetentionSweeper runs the two periodic cleanup jobs. The jobs share
// no state and have no ordering dependency; each ticks on its own
// interval and a failed run simply retries on the next tick.
type RetentionSweeper struct {
	invitations        InvitationSweepStore
	requests           RequestSweepStore
	invitationInterval time.Duration
	requestInterval    time.Duration
	logger             *zap.Logger
}

// NewRetentionSweeper wires a sweeper with the source cadence: expired
// invitations every 6 hours, processed requests daily.
func NewRetentionSweeper(invitations InvitationSweepStore, requests RequestSweepStore, logger *zap.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		invitations:        invitations,
		requests:           requests,
		invitationInterval: 6 * time.Hour,
		requestInterval:    24 * time.Hour,
		logger:             logger,
	}
}

// Run starts both sweep loops and blocks until the context is
// cancelled. Each loop sweeps once immediately so a restart does not
// postpone overdue cleanup by a full interval.
func (s *RetentionSweeper) Run(ctx context.Context) {
	go s.loop(ctx, s.invitationInterval, s.SweepInvitations)
	go s.loop(ctx, s.requestInterval, s.SweepProcessedRequests)
	<-ctx.Done()
}

func (s *RetentionSweeper) loop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	sweep(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep(ctx)
		}
	}
}

// SweepInvitations deletes every invitation past its expiry, used or
// not.
func (s *RetentionSweeper) SweepInvitations(ctx context.Context) {
	n, err := s.invitations.DeleteExpired(ctx)
	if err != nil {
		s.logger.Warn("invitation sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired invitations removed", zap.Int64("count", n))
	}
}

// SweepProcessedRequests deletes emergency requests older than seven
// days that were processed successfully.
func (s *RetentionSweeper) SweepProcessedRequests(ctx context.Context) {
	n, err := s.requests.DeleteProcessedRequestsBefore(ctx, processedRequestMaxAgeDays)
	if err != nil {
		s.logger.Warn("processed-request sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("old processed requests removed", zap.Int64("count", n))
	}
}
