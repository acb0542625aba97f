// Package aggregate holds the client's copy of the open project. The
// snapshot is replaced as a whole and readers always get a deep copy.
package aggregate

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// ErrSuperseded is returned by a Load that lost to Close or another Load.
var ErrSuperseded = errors.New("load superseded")

// Backend is the slice of the API client the store uses.
type Backend interface {
	GetProject(ctx context.Context, token, id string) (*domain.Aggregate, error)
	UpdateProject(ctx context.Context, token, id string, upd domain.ProjectUpdate) (int64, error)
	SetStage(ctx context.Context, token, id string, index int, done bool) (int64, error)
}

// Caller runs a request with the session token.
type Caller interface {
	Call(ctx context.Context, fn func(ctx context.Context, token string) error) error
}

type Store struct {
	backend Backend
	calls   Caller

	mu        sync.Mutex
	projectID string
	epoch     uint64
	issued    uint64
	committed uint64
	snapshot  *domain.Aggregate
	subs      []func(*domain.Aggregate)
}

func NewStore(backend Backend, calls Caller) *Store {
	return &Store{backend: backend, calls: calls}
}

// OnCommit registers fn to receive a copy of every committed snapshot.
func (s *Store) OnCommit(fn func(*domain.Aggregate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Load opens projectID. On failure the previous project and snapshot stay.
func (s *Store) Load(ctx context.Context, projectID string) (*domain.Aggregate, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, api.ErrNoProject
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	agg, err := s.fetch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		logger.Zlog.Debug("discard load", zap.String("project_id", projectID))
		return nil, ErrSuperseded
	}
	s.projectID = projectID
	s.committed = 0
	subs := s.commitLocked(agg, seq)
	s.mu.Unlock()

	s.notify(subs, agg)
	return agg.Clone(), nil
}

// Refresh reloads the open project.
func (s *Store) Refresh(ctx context.Context) error {
	return s.RefreshIf(ctx, nil)
}

// RefreshIf reloads the open project and commits the result only when
// accept, evaluated at commit time, still agrees. A response that lost a
// race with Close, Load or a newer refresh is dropped silently.
func (s *Store) RefreshIf(ctx context.Context, accept func(projectID string) bool) error {
	s.mu.Lock()
	projectID := s.projectID
	epoch := s.epoch
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	if projectID == "" {
		return api.ErrNoProject
	}

	agg, err := s.fetch(ctx, projectID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch || s.projectID != projectID || seq < s.committed ||
		(accept != nil && !accept(projectID)) {
		s.mu.Unlock()
		logger.Zlog.Debug("discard stale refresh", zap.String("project_id", projectID))
		return nil
	}
	subs := s.commitLocked(agg, seq)
	s.mu.Unlock()

	s.notify(subs, agg)
	return nil
}

func (s *Store) fetch(ctx context.Context, projectID string) (*domain.Aggregate, error) {
	var agg *domain.Aggregate
	err := s.calls.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		agg, err = s.backend.GetProject(ctx, token, projectID)
		return err
	})
	return agg, err
}

func (s *Store) commitLocked(agg *domain.Aggregate, seq uint64) []func(*domain.Aggregate) {
	s.snapshot = agg
	s.committed = seq
	return append([]func(*domain.Aggregate){}, s.subs...)
}

func (s *Store) notify(subs []func(*domain.Aggregate), agg *domain.Aggregate) {
	for _, fn := range subs {
		fn(agg.Clone())
	}
}

// Snapshot returns a copy of the committed aggregate.
func (s *Store) Snapshot() (*domain.Aggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, false
	}
	return s.snapshot.Clone(), true
}

func (s *Store) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// Save sends the changed fields of the open project. Replacing the stage
// list is guarded by the snapshot version; the server answers with a
// conflict when someone else wrote in between.
func (s *Store) Save(ctx context.Context, upd domain.ProjectUpdate) (int64, error) {
	s.mu.Lock()
	projectID := s.projectID
	if upd.Stages != nil && upd.ExpectedVersion == nil && s.snapshot != nil {
		v := s.snapshot.Details.Version
		upd.ExpectedVersion = &v
	}
	s.mu.Unlock()

	if projectID == "" {
		return 0, api.ErrNoProject
	}

	var version int64
	err := s.calls.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		version, err = s.backend.UpdateProject(ctx, token, projectID, upd)
		return err
	})
	return version, err
}

// SetStage flips a single stage of the open project.
func (s *Store) SetStage(ctx context.Context, index int, done bool) (int64, error) {
	projectID := s.ProjectID()
	if projectID == "" {
		return 0, api.ErrNoProject
	}

	var version int64
	err := s.calls.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		version, err = s.backend.SetStage(ctx, token, projectID, index, done)
		return err
	})
	return version, err
}

// Close forgets the open project. Responses still in flight are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.projectID = ""
	s.snapshot = nil
	s.committed = 0
}

// Reset is the session teardown hook.
func (s *Store) Reset() {
	s.Close()
}
