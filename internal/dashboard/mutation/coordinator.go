// Package mutation issues every write of the dashboard. A write never
// touches local state; success is followed by an immediate refresh.
package mutation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/dashboard/chatlog"
	"github.com/pmsystem/pmdash/internal/dashboard/session"
	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type Backend interface {
	CreateProject(ctx context.Context, token string, in domain.NewProject) (*domain.ProjectCredentials, error)
	ListTodos(ctx context.Context, token string) ([]domain.Todo, error)
	AddTodo(ctx context.Context, token, text string) (*domain.Todo, error)
	DeleteTodo(ctx context.Context, token, id string) error
}

type Sessions interface {
	Current() (*session.Session, bool)
	Call(ctx context.Context, fn func(ctx context.Context, token string) error) error
}

// ProjectStore is the aggregate store of the open project.
type ProjectStore interface {
	ProjectID() string
	Snapshot() (*domain.Aggregate, bool)
	Save(ctx context.Context, upd domain.ProjectUpdate) (int64, error)
	SetStage(ctx context.Context, index int, done bool) (int64, error)
	Refresh(ctx context.Context) error
}

type Catalog interface {
	Refresh(ctx context.Context) ([]domain.ProjectSummary, error)
}

type Chat interface {
	Append(ctx context.Context, projectID, text string, att *domain.Attachment) (domain.Message, error)
	AppendWithUpload(ctx context.Context, projectID, text string, up chatlog.Upload) (domain.Message, error)
}

type Coordinator struct {
	backend  Backend
	sessions Sessions
	store    ProjectStore
	catalog  Catalog
	chat     Chat

	mu    sync.Mutex
	todos []domain.Todo
}

func New(backend Backend, sessions Sessions, store ProjectStore, catalog Catalog, chat Chat) *Coordinator {
	return &Coordinator{
		backend:  backend,
		sessions: sessions,
		store:    store,
		catalog:  catalog,
		chat:     chat,
	}
}

// CreateProject returns the access password. It is shown once and cannot
// be fetched again.
func (c *Coordinator) CreateProject(ctx context.Context, in domain.NewProject) (*domain.ProjectCredentials, error) {
	if err := c.requireAdmin(); err != nil {
		return nil, err
	}

	var creds *domain.ProjectCredentials
	err := c.sessions.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		creds, err = c.backend.CreateProject(ctx, token, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.catalog.Refresh(ctx); err != nil {
		logger.Zlog.Warn("refresh project list", zap.Error(err))
	}
	return creds, nil
}

// UpdateProject sends a partial update of the open project.
func (c *Coordinator) UpdateProject(ctx context.Context, upd domain.ProjectUpdate) (int64, error) {
	if err := c.requireAdmin(); err != nil {
		return 0, err
	}
	if upd.Empty() {
		return 0, &api.ValidationError{Message: "nothing to update"}
	}

	version, err := c.store.Save(ctx, upd)
	if err != nil {
		return 0, err
	}
	c.refresh(ctx)
	return version, nil
}

// ToggleStage flips the stage at index as seen in the committed snapshot.
func (c *Coordinator) ToggleStage(ctx context.Context, index int) (int64, error) {
	if err := c.requireAdmin(); err != nil {
		return 0, err
	}
	agg, ok := c.store.Snapshot()
	if !ok {
		return 0, api.ErrNoProject
	}
	if index < 0 || index >= len(agg.Stages) {
		return 0, &api.ValidationError{Field: "stage", Message: "no such stage"}
	}
	return c.SetStage(ctx, index, !agg.Stages[index].Done)
}

// SetStage sets the done flag of one stage. Other stages are not sent, so
// concurrent edits to them survive.
func (c *Coordinator) SetStage(ctx context.Context, index int, done bool) (int64, error) {
	if err := c.requireAdmin(); err != nil {
		return 0, err
	}

	version, err := c.store.SetStage(ctx, index, done)
	if err != nil {
		return 0, err
	}
	c.refresh(ctx)
	return version, nil
}

// SendMessage posts to the open project's chat. Both roles may send.
func (c *Coordinator) SendMessage(ctx context.Context, text string) (domain.Message, error) {
	msg, err := c.chat.Append(ctx, c.store.ProjectID(), text, nil)
	if err != nil {
		return domain.Message{}, err
	}
	c.refresh(ctx)
	return msg, nil
}

// UploadAttachment uploads a file and posts a message pointing at it.
func (c *Coordinator) UploadAttachment(ctx context.Context, text string, up chatlog.Upload) (domain.Message, error) {
	msg, err := c.chat.AppendWithUpload(ctx, c.store.ProjectID(), text, up)
	if err != nil {
		return domain.Message{}, err
	}
	c.refresh(ctx)
	return msg, nil
}

// SendAttachment posts a message for a file that is already uploaded, such
// as the one carried by an *api.OrphanedUploadError.
func (c *Coordinator) SendAttachment(ctx context.Context, text string, att domain.Attachment) (domain.Message, error) {
	msg, err := c.chat.Append(ctx, c.store.ProjectID(), text, &att)
	if err != nil {
		return domain.Message{}, err
	}
	c.refresh(ctx)
	return msg, nil
}

func (c *Coordinator) ListTodos(ctx context.Context) ([]domain.Todo, error) {
	if err := c.requireAdmin(); err != nil {
		return nil, err
	}

	var items []domain.Todo
	err := c.sessions.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		items, err = c.backend.ListTodos(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.todos = items
	c.mu.Unlock()
	return append([]domain.Todo{}, items...), nil
}

func (c *Coordinator) AddTodo(ctx context.Context, text string) (*domain.Todo, error) {
	if err := c.requireAdmin(); err != nil {
		return nil, err
	}

	var todo *domain.Todo
	err := c.sessions.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		todo, err = c.backend.AddTodo(ctx, token, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.refreshTodos(ctx)
	return todo, nil
}

func (c *Coordinator) DeleteTodo(ctx context.Context, id string) error {
	if err := c.requireAdmin(); err != nil {
		return err
	}

	err := c.sessions.Call(ctx, func(ctx context.Context, token string) error {
		return c.backend.DeleteTodo(ctx, token, id)
	})
	if err != nil {
		return err
	}
	c.refreshTodos(ctx)
	return nil
}

// Todos is the task list as of the last fetch.
func (c *Coordinator) Todos() []domain.Todo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Todo{}, c.todos...)
}

// Reset drops the cached task list on logout.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.todos = nil
}

func (c *Coordinator) requireAdmin() error {
	s, ok := c.sessions.Current()
	if !ok {
		return api.ErrNoSession
	}
	if s.Role != domain.RoleAdmin {
		return api.ErrForbidden
	}
	return nil
}

// refresh runs after a successful write. Its failure does not undo the
// write; the scheduler picks the state up on its next tick.
func (c *Coordinator) refresh(ctx context.Context) {
	if err := c.store.Refresh(ctx); err != nil {
		logger.Zlog.Warn("refresh after write", zap.String("project_id", c.store.ProjectID()), zap.Error(err))
	}
}

func (c *Coordinator) refreshTodos(ctx context.Context) {
	if _, err := c.ListTodos(ctx); err != nil {
		logger.Zlog.Warn("refresh todos", zap.Error(err))
	}
}
