package objectstore

import (
	"context"
	"fmt"

	"noema/internal/config"
)

// Build constructs the configured ObjectStore backend, switching on
// Config.ObjectStoreBackend. LocalStore is rooted at DataDir directly since FileKey
// already carries the "files/" segment of the on-disk layout.
func Build(ctx context.Context, cfg config.Config) (ObjectStore, error) {
	switch cfg.ObjectStoreBackend {
	case "", "local":
		return NewLocalStore(cfg.DataDir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported object store backend: %s", cfg.ObjectStoreBackend)
	}
}
