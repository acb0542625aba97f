package service

import (
	"context"
	"strings"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type TodoStore interface {
	List(ctx context.Context) ([]domain.Todo, error)
	Create(ctx context.Context, text string) (*domain.Todo, error)
	Delete(ctx context.Context, id string) error
}

// TodoService manages the admin task list.
type TodoService struct {
	repo TodoStore
}

func NewTodoService(repo TodoStore) *TodoService {
	return &TodoService{repo: repo}
}

func (s *TodoService) List(ctx context.Context) ([]domain.Todo, error) {
	return s.repo.List(ctx)
}

func (s *TodoService) Add(ctx context.Context, text string) (*domain.Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Invalid("text", "is required")
	}
	return s.repo.Create(ctx, text)
}

func (s *TodoService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.Invalid("id", "is required")
	}
	return s.repo.Delete(ctx, id)
}
