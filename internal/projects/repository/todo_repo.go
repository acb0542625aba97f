package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// TodoRepository backs the admin's private task list.
type TodoRepository struct {
	db *sql.DB
}

func NewTodoRepository(db *sql.DB) *TodoRepository {
	return &TodoRepository{db: db}
}

func (r *TodoRepository) List(ctx context.Context) ([]domain.Todo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, text, created_at FROM todos ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Todo, 0, 8)
	for rows.Next() {
		var t domain.Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TodoRepository) Create(ctx context.Context, text string) (*domain.Todo, error) {
	t := domain.Todo{ID: uuid.NewString(), Text: text}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todos (id, text) VALUES ($1, $2) RETURNING created_at`, t.ID, t.Text).
		Scan(&t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TodoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
