package archive

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Mindburn-Labs/remedy/pkg/config"
)

// Backend names accepted by the factory.
const (
	BackendFS  = "fs"
	BackendS3  = "s3"
	BackendGCS = "gcs"
)

// New builds the configured evidence store. The filesystem backend is the
// default and lives under the data dir.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.ArchiveBackend {
	case "", BackendFS:
		return NewFileStore(filepath.Join(cfg.DataDir, "evidence"))
	case BackendS3:
		if cfg.ArchiveBucket == "" {
			return nil, fmt.Errorf("archive: s3 backend requires REMEDY_ARCHIVE_BUCKET")
		}
		region := cfg.ArchiveRegion
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.ArchiveBucket,
			Region:   region,
			Endpoint: cfg.ArchiveEndpoint,
			Prefix:   cfg.ArchivePrefix,
		})
	case BackendGCS:
		if cfg.ArchiveBucket == "" {
			return nil, fmt.Errorf("archive: gcs backend requires REMEDY_ARCHIVE_BUCKET")
		}
		return newGCS(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix)
	default:
		return nil, fmt.Errorf("archive: unsupported backend %q", cfg.ArchiveBackend)
	}
}
