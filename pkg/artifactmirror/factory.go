package artifactmirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// MirrorType selects which backend NewMirrorFromEnv constructs.
type MirrorType string

const (
	MirrorTypeFS  MirrorType = "fs"
	MirrorTypeS3  MirrorType = "s3"
	MirrorTypeGCS MirrorType = "gcs"
)

// NewMirrorFromEnv selects a Store backend from environment variables,
// mirroring the teacher's artifact-store factory convention:
//
//   - MIRROR_STORAGE_TYPE: "fs" (default), "s3", or "gcs"
//   - MIRROR_DATA_DIR: base dir for the fs backend (default "data/mirror")
//   - MIRROR_S3_BUCKET / MIRROR_S3_REGION / MIRROR_S3_ENDPOINT / MIRROR_S3_PREFIX
//   - MIRROR_GCS_BUCKET / MIRROR_GCS_PREFIX (requires the "gcp" build tag)
//
// With no env vars set, this defaults to a local fs mirror under
// MIRROR_DATA_DIR's default, matching the teacher's CAS factory default;
// set MIRROR_STORAGE_TYPE=s3|gcs to point the mirror at durable cloud
// storage instead. Daemons treat mirror failures as best-effort and
// continue the tick rather than fail it.
func NewMirrorFromEnv(ctx context.Context) (Store, error) {
	t := MirrorType(os.Getenv("MIRROR_STORAGE_TYPE"))
	if t == "" {
		t = MirrorTypeFS
	}
	switch t {
	case MirrorTypeFS:
		dir := os.Getenv("MIRROR_DATA_DIR")
		if dir == "" {
			dir = filepath.Join("data", "mirror")
		}
		return NewFileStore(dir)
	case MirrorTypeS3:
		bucket := os.Getenv("MIRROR_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("artifactmirror: MIRROR_S3_BUCKET is required for s3 mirror")
		}
		region := os.Getenv("MIRROR_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("MIRROR_S3_ENDPOINT"),
			Prefix:   os.Getenv("MIRROR_S3_PREFIX"),
		})
	case MirrorTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("artifactmirror: unsupported mirror storage type %q", t)
	}
}
