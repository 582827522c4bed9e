//go:build !gcp

package artifactmirror

import (
	"context"
	"fmt"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	return nil, fmt.Errorf("artifactmirror: gcs mirror not enabled in this build (use -tags gcp)")
}
