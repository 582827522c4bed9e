//go:build gcp

package artifactmirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore mirrors artifacts into a Google Cloud Storage bucket, keyed by
// their sha256 hash. Built behind the "gcp" build tag so non-GCP
// deployments don't pull the GCS client into their binary, matching the
// teacher's artifact-store build-tag split.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig configures a GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore builds a GCSStore using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifactmirror: creating gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(rawHash string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + rawHash + ".blob")
}

func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	rawHash := hex.EncodeToString(sum[:])
	prefixed := "sha256:" + rawHash

	if ok, _ := s.Exists(ctx, prefixed); ok {
		return prefixed, nil
	}
	w := s.object(rawHash).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("artifactmirror: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("artifactmirror: gcs commit: %w", err)
	}
	return prefixed, nil
}

func (s *GCSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	raw, err := rawHexOf(hash)
	if err != nil {
		return nil, err
	}
	r, err := s.object(raw).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifactmirror: gcs get: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, hash string) (bool, error) {
	raw, err := rawHexOf(hash)
	if err != nil {
		return false, err
	}
	_, err = s.object(raw).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, nil
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, hash string) error {
	raw, err := rawHexOf(hash)
	if err != nil {
		return err
	}
	if err := s.object(raw).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifactmirror: gcs delete: %w", err)
	}
	return nil
}
