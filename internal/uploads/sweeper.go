package uploads

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/repository"
)

// OrphanStore lists and forgets uploads no message refers to.
type OrphanStore interface {
	ListOrphans(ctx context.Context, cutoff time.Time) ([]repository.StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// Sweeper removes uploads that were never attached to a message, e.g. when
// the chat append failed after a successful upload.
type Sweeper struct {
	store ObjectStore
	repo  OrphanStore
	grace time.Duration
	now   func() time.Time
}

func NewSweeper(store ObjectStore, repo OrphanStore, grace time.Duration) *Sweeper {
	return &Sweeper{store: store, repo: repo, grace: grace, now: time.Now}
}

// Run deletes every orphan older than the grace period and returns how
// many were removed. A failing object is logged and skipped.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	orphans, err := s.repo.ListOrphans(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list orphans: %w", err)
	}

	deleted := 0
	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.store.Delete(ctx, o.Key); err != nil {
			logger.Zlog.Warn("delete orphan object", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		if err := s.repo.Delete(ctx, o.Key); err != nil {
			logger.Zlog.Warn("forget orphan", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logger.Zlog.Info("orphaned uploads removed", zap.Int("count", deleted))
	}
	return deleted, nil
}

// Scheduler runs the sweeper on a cron schedule (with seconds field).
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(sw *Sweeper, spec string) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := sw.Run(ctx); err != nil {
			logger.Zlog.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

// Start initializes cron tasks
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Zlog.Info("upload sweeper scheduled")
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
