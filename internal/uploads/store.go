package uploads

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore persists uploaded files and returns the public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}

// NewKey builds a collision free object key that keeps the extension of
// the original file name, e.g. 2026/10/3f2c....pdf.
func NewKey(now time.Time, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return path.Join(now.UTC().Format("2006/01"), uuid.NewString()+ext)
}

func joinURL(base, key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), key)
}
