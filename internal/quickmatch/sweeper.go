package quickmatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chachabrian/quickmatch-backend/internal/repository"
)

// Sweeper periodically expires pending requests whose window has closed.
type Sweeper struct {
	arbiter  *Arbiter
	store    repository.RequestStore
	interval time.Duration
	batch    int
	now      func() time.Time
	log      *logrus.Entry
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("Expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("Sweep failed")
			}
		}
	}
}

// SweepOnce expires up to one batch of overdue requests and returns how many it
// transitioned. Requests resolved concurrently are skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.store.ListOverdueRequests(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		won, err := s.arbiter.Expire(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("requestId", id).Warn("Failed to expire request")
			continue
		}
		if won {
			expired++
		}
	}
	if expired > 0 {
		s.arbiter.m.sweepExpired.Add(float64(expired))
		s.log.WithField("count", expired).Debug("Expired overdue requests")
	}
	return expired, nil
}
