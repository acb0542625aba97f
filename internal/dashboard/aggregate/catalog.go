package aggregate

import (
	"context"
	"sync"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type Lister interface {
	ListProjects(ctx context.Context, token string) ([]domain.ProjectSummary, error)
}

// Catalog caches the admin project list.
type Catalog struct {
	backend Lister
	calls   Caller

	mu     sync.Mutex
	items  []domain.ProjectSummary
	loaded bool
}

func NewCatalog(backend Lister, calls Caller) *Catalog {
	return &Catalog{backend: backend, calls: calls}
}

func (c *Catalog) Refresh(ctx context.Context) ([]domain.ProjectSummary, error) {
	var items []domain.ProjectSummary
	err := c.calls.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		items, err = c.backend.ListProjects(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items = items
	c.loaded = true
	c.mu.Unlock()
	return append([]domain.ProjectSummary{}, items...), nil
}

// Items returns the cached list and whether it was ever loaded.
func (c *Catalog) Items() ([]domain.ProjectSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ProjectSummary{}, c.items...), c.loaded
}

func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.loaded = false
}
