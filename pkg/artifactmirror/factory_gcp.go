//go:build gcp

package artifactmirror

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("MIRROR_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("artifactmirror: MIRROR_GCS_BUCKET is required for gcs mirror")
	}
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("MIRROR_GCS_PREFIX"),
	})
}
