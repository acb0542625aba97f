package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pmsystem/pmdash/internal/auth/domain"
)

// AdminRepository reads and seeds administrator accounts.
type AdminRepository struct {
	db *sql.DB
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// PasswordHash returns the bcrypt hash for username.
func (r *AdminRepository) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM admins WHERE username = $1`, username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}
	return hash, nil
}

// Count returns the number of administrators.
func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Create inserts an administrator unless the username is taken.
func (r *AdminRepository) Create(ctx context.Context, username, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO admins (username, password_hash)
VALUES ($1, $2)
ON CONFLICT (username) DO NOTHING;
`, username, passwordHash)
	return err
}
