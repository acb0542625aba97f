// Package scheduler polls the open project while it is on screen.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/logger"
)

const DefaultInterval = 3 * time.Second

type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Refresher is implemented by the aggregate store.
type Refresher interface {
	RefreshIf(ctx context.Context, accept func(projectID string) bool) error
}

// every is a fixed-delay cron schedule without the one second floor of
// cron's @every.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Scheduler is a two-state machine. Each Open starts a new generation and
// only a tick of the current generation may commit.
type Scheduler struct {
	store    Refresher
	interval time.Duration

	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	projectID string
	cron      *cron.Cron
	cancel    context.CancelFunc
	stopped   context.Context
	lastErr   error
}

func New(store Refresher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{store: store, interval: interval}
}

// Open starts polling projectID. A running loop is cancelled and awaited
// first.
func (s *Scheduler) Open(projectID string) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return api.ErrNoProject
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.closeAndWait()

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Polling
	s.projectID = projectID
	s.cron = c
	s.cancel = cancel
	s.lastErr = nil
	s.mu.Unlock()

	c.Schedule(every(s.interval), cron.FuncJob(func() {
		s.tick(ctx, gen, projectID)
	}))
	c.Start()

	logger.Zlog.Debug("polling started",
		zap.String("project_id", projectID),
		zap.Duration("interval", s.interval),
	)
	return nil
}

// Close cancels polling and waits for a running tick to return.
func (s *Scheduler) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.closeAndWait()
}

// Stop cancels polling without waiting. It is safe to call from inside a
// tick, which makes it the session teardown hook.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProjectID is the polled project, empty when idle.
func (s *Scheduler) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// LastError is the error of the latest failed tick of this generation.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) closeAndWait() {
	s.mu.Lock()
	s.stopLocked()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped != nil {
		<-stopped.Done()
	}
}

func (s *Scheduler) stopLocked() {
	if s.cron != nil {
		s.cancel()
		s.stopped = s.cron.Stop()
		s.cron = nil
		s.cancel = nil
	}
	if s.state == Polling {
		s.gen++
	}
	s.state = Idle
	s.projectID = ""
}

// current reports whether gen is still the live polling generation for
// projectID.
func (s *Scheduler) current(gen uint64, projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Polling && s.gen == gen && s.projectID == projectID
}

func (s *Scheduler) tick(ctx context.Context, gen uint64, projectID string) {
	if !s.current(gen, projectID) {
		return
	}

	err := s.store.RefreshIf(ctx, func(id string) bool {
		return id == projectID && s.current(gen, projectID)
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.lastErr = err

	switch {
	case errors.Is(err, api.ErrSessionExpired), errors.Is(err, api.ErrNoSession), errors.Is(err, api.ErrNoProject):
		logger.Zlog.Info("polling stopped", zap.String("project_id", projectID), zap.Error(err))
		s.stopLocked()
	default:
		// transient or not, the next tick tries again
		logger.Zlog.Warn("refresh failed", zap.String("project_id", projectID), zap.Error(err))
	}
}
