package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// ProjectRepository provides persistence operations for projects and their
// stage checklists.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a project with its initial stages. The project ID is
// generated here; on a collision a new one is tried.
func (r *ProjectRepository) Create(ctx context.Context, in domain.NewProject, passwordHash string) (*domain.Project, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name required")
	}

	for i := 0; i < 5; i++ {
		id, err := domain.NewProjectID()
		if err != nil {
			return nil, err
		}

		p, err := r.insert(ctx, id, in, passwordHash)
		if err == nil {
			return p, nil
		}

		// unique violation on id → retry
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to generate unique project id")
}

func (r *ProjectRepository) insert(ctx context.Context, id string, in domain.NewProject, passwordHash string) (*domain.Project, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO projects (id, password_hash, name, status, price, deadline)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, name, status, price, paid_amount, deadline, version, created_at;
`
	var p domain.Project
	var deadline sql.NullTime
	err = tx.QueryRowContext(ctx, q, id, passwordHash, in.Name, domain.StatusNew, in.Price, in.Deadline).
		Scan(&p.ID, &p.Name, &p.Status, &p.Price, &p.PaidAmount, &deadline, &p.Version, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if deadline.Valid {
		d := deadline.Time
		p.Deadline = &d
	}

	for pos, title := range in.Stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_stages (project_id, position, title, done) VALUES ($1, $2, $3, false)`,
			id, pos, title); err != nil {
			return nil, fmt.Errorf("insert stage %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every project, newest first.
func (r *ProjectRepository) List(ctx context.Context) ([]domain.ProjectSummary, error) {
	const q = `
SELECT id, name, status, price, paid_amount, deadline, created_at
FROM projects
ORDER BY created_at DESC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProjectSummary, 0, 16)
	for rows.Next() {
		var p domain.ProjectSummary
		var deadline sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.Price, &p.PaidAmount, &deadline, &p.CreatedAt); err != nil {
			return nil, err
		}
		if deadline.Valid {
			d := deadline.Time
			p.Deadline = &d
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PasswordHash returns the bcrypt hash of the client access password.
func (r *ProjectRepository) PasswordHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM projects WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return hash, nil
}

// Aggregate reads project, stages and messages inside one read-only
// transaction so the three parts describe the same moment.
func (r *ProjectRepository) Aggregate(ctx context.Context, id string) (*domain.Aggregate, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := getProject(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	stages, err := listStages(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	messages, err := listMessages(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.Aggregate{Details: *p, Stages: stages, Messages: messages}, nil
}

// Update applies a partial update. Replacing the stage list requires the
// caller's expected version to match the stored one.
func (r *ProjectRepository) Update(ctx context.Context, id string, upd domain.ProjectUpdate) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := getProject(ctx, tx, id, true)
	if err != nil {
		return 0, err
	}

	if upd.Stages != nil {
		if upd.ExpectedVersion == nil || *upd.ExpectedVersion != p.Version {
			return 0, domain.ErrVersionConflict
		}
	}
	if upd.Price != nil && upd.Price.LessThan(p.PaidAmount) {
		return 0, domain.Invalid("price", "must not be below the paid amount %s", p.PaidAmount.String())
	}

	status := p.Status
	if upd.Status != nil {
		status = *upd.Status
	}
	price := p.Price
	if upd.Price != nil {
		price = *upd.Price
	}
	deadline := p.Deadline
	if upd.Deadline != nil {
		deadline = upd.Deadline
	}
	if upd.ClearDeadline {
		deadline = nil
	}

	var version int64
	err = tx.QueryRowContext(ctx, `
UPDATE projects
SET status = $2, price = $3, deadline = $4, version = version + 1
WHERE id = $1
RETURNING version;
`, id, status, price, deadline).Scan(&version)
	if err != nil {
		return 0, err
	}

	if upd.Stages != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_stages WHERE project_id = $1`, id); err != nil {
			return 0, err
		}
		for pos, s := range upd.Stages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO project_stages (project_id, position, title, done) VALUES ($1, $2, $3, $4)`,
				id, pos, s.Title, s.Done); err != nil {
				return 0, fmt.Errorf("insert stage %d: %w", pos, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

// SetStage flips one stage's done flag without touching the others.
func (r *ProjectRepository) SetStage(ctx context.Context, id string, index int, done bool) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getProject(ctx, tx, id, true); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE project_stages SET done = $3 WHERE project_id = $1 AND position = $2`,
		id, index, done)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrStageIndex
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE projects SET version = version + 1 WHERE id = $1 RETURNING version`, id).Scan(&version); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

// RecordPayment adds a gateway payment to the paid amount. Replayed events
// are ignored; applied reports whether this call changed anything.
func (r *ProjectRepository) RecordPayment(ctx context.Context, ev domain.PaymentEvent) (paid decimal.Decimal, applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := getProject(ctx, tx, ev.ProjectID, true)
	if err != nil {
		return decimal.Zero, false, err
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO payments (event_id, project_id, amount)
VALUES ($1, $2, $3)
ON CONFLICT (event_id) DO NOTHING;
`, ev.EventID, ev.ProjectID, ev.Amount)
	if err != nil {
		return decimal.Zero, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return decimal.Zero, false, err
	}
	if n == 0 {
		return p.PaidAmount, false, nil
	}

	newPaid := p.PaidAmount.Add(ev.Amount)
	if newPaid.GreaterThan(p.Price) {
		return decimal.Zero, false, domain.Invalid("amount", "payment exceeds the outstanding balance")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET paid_amount = $2, version = version + 1 WHERE id = $1`,
		ev.ProjectID, newPaid); err != nil {
		return decimal.Zero, false, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, false, err
	}
	return newPaid, true, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getProject(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Project, error) {
	query := `
SELECT id, name, status, price, paid_amount, deadline, version, created_at
FROM projects
WHERE id = $1`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	var p domain.Project
	var deadline sql.NullTime
	err := q.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.Name, &p.Status, &p.Price, &p.PaidAmount, &deadline, &p.Version, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if deadline.Valid {
		d := deadline.Time
		p.Deadline = &d
	}
	return &p, nil
}

func listStages(ctx context.Context, q querier, id string) ([]domain.Stage, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT title, done FROM project_stages WHERE project_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Stage, 0, 8)
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.Title, &s.Done); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
