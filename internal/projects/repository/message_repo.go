package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// MessageRepository stores the per-project chat log.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores a message and fills in ID, Seq and Timestamp.
func (r *MessageRepository) Append(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	var attURL, attType sql.NullString
	if m.Attachment != nil {
		attURL = sql.NullString{String: m.Attachment.URL, Valid: true}
		attType = sql.NullString{String: m.Attachment.Type, Valid: true}
	}

	const q = `
INSERT INTO messages (id, project_id, sender, content, attachment_url, attachment_type)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING seq, created_at;
`
	err := r.db.QueryRowContext(ctx, q, m.ID, m.ProjectID, m.Sender, m.Text, attURL, attType).
		Scan(&m.Seq, &m.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

// ListByProject returns the project's messages ordered by time, then by
// log position.
func (r *MessageRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Message, error) {
	return listMessages(ctx, r.db, projectID)
}

func listMessages(ctx context.Context, q querier, projectID string) ([]domain.Message, error) {
	const query = `
SELECT seq, id, project_id, sender, content, attachment_url, attachment_type, created_at
FROM messages
WHERE project_id = $1
ORDER BY created_at ASC, seq ASC;
`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, 32)
	for rows.Next() {
		var m domain.Message
		var attURL, attType sql.NullString
		if err := rows.Scan(&m.Seq, &m.ID, &m.ProjectID, &m.Sender, &m.Text, &attURL, &attType, &m.Timestamp); err != nil {
			return nil, err
		}
		if attURL.Valid {
			m.Attachment = &domain.Attachment{URL: attURL.String, Type: attType.String}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
