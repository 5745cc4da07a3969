//go:build !gcp

package archive

import (
	"context"
	"fmt"
)

func newGCS(_ context.Context, _, _ string) (Store, error) {
	return nil, fmt.Errorf("archive: gcs backend not enabled in this build (use -tags gcp)")
}
