package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmsystem/pmdash/config"
	authrepo "github.com/pmsystem/pmdash/internal/auth/repository"
	authservice "github.com/pmsystem/pmdash/internal/auth/service"
	"github.com/pmsystem/pmdash/internal/payments"
	"github.com/pmsystem/pmdash/internal/projects/memstore"
	"github.com/pmsystem/pmdash/internal/projects/repository"
	"github.com/pmsystem/pmdash/internal/projects/service"
	"github.com/pmsystem/pmdash/internal/storage/postgres"
	"github.com/pmsystem/pmdash/internal/uploads"
)

// ProjectStore is everything the backend asks of the projects table.
type ProjectStore interface {
	service.ProjectStore
	authservice.ProjectPasswords
	payments.Ledger
}

type UploadStore interface {
	uploads.Recorder
	uploads.OrphanStore
}

// Stores groups the persistence used by the API and the worker.
type Stores struct {
	Projects ProjectStore
	Messages service.MessageStore
	Todos    service.TodoStore
	Uploads  UploadStore
	Admins   authservice.AdminStore
}

func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Projects: repository.NewProjectRepository(db),
		Messages: repository.NewMessageRepository(db),
		Todos:    repository.NewTodoRepository(db),
		Uploads:  repository.NewUploadRepository(db),
		Admins:   authrepo.NewAdminRepository(db),
	}
}

func MemoryStores(db *memstore.DB) Stores {
	return Stores{
		Projects: db.Projects(),
		Messages: db.Messages(),
		Todos:    db.Todos(),
		Uploads:  db.Uploads(),
		Admins:   db.Admins(),
	}
}

// OpenStores connects and migrates the configured database. The returned
// *sql.DB is nil for the memory driver.
func OpenStores(ctx context.Context, cfg *config.DatabaseConfig) (Stores, *sql.DB, error) {
	switch cfg.Driver {
	case "memory":
		return MemoryStores(memstore.New()), nil, nil
	case "postgres", "":
		db, err := postgres.NewConnection(ctx, cfg)
		if err != nil {
			return Stores{}, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return Stores{}, nil, fmt.Errorf("migrate: %w", err)
		}
		return PostgresStores(db), db, nil
	default:
		return Stores{}, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}
