// Package scheduler drives the periodic triggers the core consumes: daily
// materialization, the overdue sweep, and report dispatch. Triggers are
// at-least-once; the downstream operations are idempotent, so a duplicate
// fire is harmless. A redis lease keeps replicas from all firing the same
// window under normal operation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zynthio/zynthio/internal/compliance/service"
	"go.uber.org/zap"
)

// Clock is the injected now-source; tests substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler ticks once per minute and fires whichever triggers are due.
type Scheduler struct {
	svc   *service.Services
	rdb   *redis.Client
	log   *zap.Logger
	clock Clock
}

func New(svc *service.Services, rdb *redis.Client, log *zap.Logger, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{svc: svc, rdb: rdb, log: log, clock: clock}
}

// Run blocks until ctx is cancelled, ticking at minute granularity.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.log.Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires the triggers due at the current instant. Exported so tests
// can drive it with a fake clock.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	// Materialization runs hourly at minute 1; MaterializeAllDue resolves
	// each site's local date itself, so the hourly cadence covers every
	// site's local 00:01 and repeats are no-ops.
	if now.Minute() == 1 {
		s.fire(ctx, "materialize", now.Format("2006-01-02T15"), func() error {
			return s.svc.Materializer.MaterializeAllDue(ctx, now)
		})
	}

	// Overdue sweep every 15 minutes.
	if now.Minute()%15 == 0 {
		s.fire(ctx, "sweep", now.Format("2006-01-02T15:04"), func() error {
			n, err := s.svc.Sweeper.SweepOverdue(ctx, now)
			if n > 0 {
				s.log.Info("sweep transitioned checklists", zap.Int("count", n))
			}
			return err
		})
	}

	// Report dispatch checks per-site schedules every minute.
	s.fire(ctx, "reports", now.Format("2006-01-02T15:04"), func() error {
		return s.svc.Report.DispatchDueReports(ctx, now)
	})
}

// fire runs job under a redis lease scoped to (name, window) so only one
// replica normally executes it. Without redis the job just runs; the
// operations tolerate duplicates.
func (s *Scheduler) fire(ctx context.Context, name, window string, job func() error) {
	if s.rdb != nil {
		key := fmt.Sprintf("zynthio:sched:%s:%s", name, window)
		ok, err := s.rdb.SetNX(ctx, key, "1", 2*time.Hour).Result()
		if err != nil {
			s.log.Warn("scheduler lease unavailable, running anyway",
				zap.String("job", name), zap.Error(err))
		} else if !ok {
			return // another replica owns this window
		}
	}
	if err := job(); err != nil {
		s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
	}
}
