package bootstrap

import (
	"context"
	"fmt"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/uploads"
)

// OpenObjectStore returns the configured upload store. filesDir is set for
// the local driver so the router can serve it.
func OpenObjectStore(ctx context.Context, cfg *config.StorageConfig) (store uploads.ObjectStore, filesDir string, err error) {
	switch cfg.Driver {
	case "local", "":
		ls, err := uploads.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return ls, ls.Dir(), nil
	case "s3":
		s3s, err := uploads.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return s3s, "", nil
	default:
		return nil, "", fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Driver)
	}
}
