package auth

import (
	"context"
	"time"

	"github.com/cashi/auth-core/internal/infrastructure/logging"
)

// DefaultSweepInterval is how often expired tokens are purged.
const DefaultSweepInterval = time.Hour

// Purger deletes expired token records. *TokenStore satisfies it.
type Purger interface {
	PurgeExpired(ctx context.Context, graceDays int) (int64, error)
}

// Sweeper periodically purges tokens that expired beyond a grace period.
type Sweeper struct {
	store     Purger
	interval  time.Duration
	graceDays int
	logger    *logging.Logger
	onPurge   func(deleted int64, at time.Time)
}

// NewSweeper creates a sweeper. A non-positive interval means DefaultSweepInterval.
func NewSweeper(store Purger, interval time.Duration, graceDays int, logger *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		graceDays: graceDays,
		logger:    logger.With("component", "token-sweeper"),
	}
}

// OnPurge registers a callback invoked after every successful sweep.
// Must be called before Run.
func (s *Sweeper) OnPurge(fn func(deleted int64, at time.Time)) {
	s.onPurge = fn
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

// Sweep runs a single purge.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	deleted, err := s.store.PurgeExpired(ctx, s.graceDays)
	if err != nil {
		return 0, err
	}
	if s.onPurge != nil {
		s.onPurge(deleted, time.Now().UTC())
	}
	return deleted, nil
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	deleted, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("token purge failed", "error", err)
		}
		return
	}
	if deleted > 0 {
		s.logger.Info("purged expired tokens", "deleted", deleted, "grace_days", s.graceDays)
	}
}
