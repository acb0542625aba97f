package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// ProjectStore is the persistence the project service needs.
type ProjectStore interface {
	Create(ctx context.Context, in domain.NewProject, passwordHash string) (*domain.Project, error)
	List(ctx context.Context) ([]domain.ProjectSummary, error)
	Aggregate(ctx context.Context, id string) (*domain.Aggregate, error)
	Update(ctx context.Context, id string, upd domain.ProjectUpdate) (int64, error)
	SetStage(ctx context.Context, id string, index int, done bool) (int64, error)
}

// ProjectService handles project-related business logic
type ProjectService struct {
	repo ProjectStore
}

// NewProjectService creates a new project service
func NewProjectService(repo ProjectStore) *ProjectService {
	return &ProjectService{
		repo: repo,
	}
}

// Create validates the input, generates the client access password and
// stores the project. The plain password is only ever returned here.
func (s *ProjectService) Create(ctx context.Context, in domain.NewProject) (*domain.ProjectCredentials, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if in.Price.IsNegative() {
		return nil, domain.Invalid("price", "must not be negative")
	}
	for i, title := range in.Stages {
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, domain.Invalid("stages", "stage %d has an empty title", i)
		}
		in.Stages[i] = title
	}

	password, err := domain.NewAccessPassword()
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p, err := s.repo.Create(ctx, in, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	logger.Zlog.Info("project created",
		zap.String("project_id", p.ID),
		zap.Int("stages", len(in.Stages)),
	)
	return &domain.ProjectCredentials{ID: p.ID, Password: password}, nil
}

// List returns all projects. Admin only; the handler enforces the role.
func (s *ProjectService) List(ctx context.Context) ([]domain.ProjectSummary, error) {
	return s.repo.List(ctx)
}

// Get returns the full aggregate if the caller may read it.
func (s *ProjectService) Get(ctx context.Context, who domain.Principal, id string) (*domain.Aggregate, error) {
	if !who.CanRead(id) {
		return nil, domain.ErrForbidden
	}
	return s.repo.Aggregate(ctx, id)
}

// Update applies a partial admin update and returns the new version.
func (s *ProjectService) Update(ctx context.Context, id string, upd domain.ProjectUpdate) (int64, error) {
	if upd.Empty() {
		return 0, domain.Invalid("", "nothing to update")
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return 0, domain.Invalid("status", "unknown status %q", *upd.Status)
	}
	if upd.Price != nil && upd.Price.IsNegative() {
		return 0, domain.Invalid("price", "must not be negative")
	}
	for i, st := range upd.Stages {
		if strings.TrimSpace(st.Title) == "" {
			return 0, domain.Invalid("stages", "stage %d has an empty title", i)
		}
	}
	return s.repo.Update(ctx, id, upd)
}

// SetStage marks a single stage done or not done.
func (s *ProjectService) SetStage(ctx context.Context, id string, index int, done bool) (int64, error) {
	if index < 0 {
		return 0, domain.ErrStageIndex
	}
	return s.repo.SetStage(ctx, id, index, done)
}

// ParsePrice accepts the textual money forms used by the API and CLI.
func ParsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, domain.Invalid("price", "not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, domain.Invalid("price", "must not be negative")
	}
	return d.Round(2), nil
}
