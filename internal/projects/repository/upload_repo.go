package repository

import (
	"context"
	"database/sql"
	"time"
)

// StoredObject is a row of the uploads table.
type StoredObject struct {
	Key         string
	URL         string
	Filename    string
	ContentType string
	CreatedAt   time.Time
}

// UploadRepository tracks stored objects so files never referenced by a
// message can be swept later.
type UploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Record(ctx context.Context, o StoredObject) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO uploads (object_key, url, filename, content_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (object_key) DO NOTHING;
`, o.Key, o.URL, o.Filename, o.ContentType)
	return err
}

// ListOrphans returns uploads older than cutoff that no message references.
func (r *UploadRepository) ListOrphans(ctx context.Context, cutoff time.Time) ([]StoredObject, error) {
	const q = `
SELECT u.object_key, u.url, u.filename, u.content_type, u.created_at
FROM uploads u
WHERE u.created_at < $1
  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.attachment_url = u.url)
ORDER BY u.created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredObject
	for rows.Next() {
		var o StoredObject
		if err := rows.Scan(&o.Key, &o.URL, &o.Filename, &o.ContentType, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *UploadRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE object_key = $1`, key)
	return err
}
