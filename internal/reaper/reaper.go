// Package reaper runs the background sweep that enforces share expiry even
// when nobody visits a link, and clears out expired sessions alongside.
package reaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkvault/internal/store"
)

// ShareSweeper removes expired shares and reports how many went.
type ShareSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// SessionSweeper removes expired sessions and reports how many went.
type SessionSweeper interface {
	SweepSessions(ctx context.Context, now time.Time) (int, error)
}

// Reaper drives both sweeps on a fixed interval. Ticks run strictly one at a
// time: the loop blocks on the current tick before waiting for the next one.
// View budgets and one-shot flags are enforced reactively by the access gate,
// never here.
type Reaper struct {
	shares   ShareSweeper
	sessions SessionSweeper
	clock    store.Clock
	logger   *logrus.Logger
	interval time.Duration
}

func New(shares ShareSweeper, sessions SessionSweeper, clock store.Clock, logger *logrus.Logger, interval time.Duration) *Reaper {
	return &Reaper{
		shares:   shares,
		sessions: sessions,
		clock:    clock,
		logger:   logger,
		interval: interval,
	}
}

// Run blocks until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs one sweep. A failure in either half is logged and does not
// abort the other or crash the loop.
func (r *Reaper) Tick(ctx context.Context) {
	now := r.clock.Now()

	removedShares, err := r.shares.SweepExpired(ctx, now)
	if err != nil {
		r.logger.WithError(err).Error("share sweep failed")
	} else if removedShares > 0 {
		r.logger.WithField("count", removedShares).Info("removed expired shares")
	}

	removedSessions, err := r.sessions.SweepSessions(ctx, now)
	if err != nil {
		r.logger.WithError(err).Error("session sweep failed")
	} else if removedSessions > 0 {
		r.logger.WithField("count", removedSessions).Info("removed expired sessions")
	}
}
