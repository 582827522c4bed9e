package artifactmirror

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store mirrors artifacts into an S3 bucket, keyed by their sha256 hash.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Store builds an S3Store using the AWS SDK's default credential
// chain, matching the teacher's artifact-store construction pattern.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("artifactmirror: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(rawHash string) string {
	return s.prefix + rawHash + ".blob"
}

func (s *S3Store) Store(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	rawHash := hex.EncodeToString(sum[:])
	key := s.key(rawHash)

	if ok, _ := s.Exists(ctx, "sha256:"+rawHash); ok {
		return "sha256:" + rawHash, nil
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("artifactmirror: s3 put: %w", err)
	}
	return "sha256:" + rawHash, nil
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	raw, err := rawHexOf(hash)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(raw)),
	})
	if err != nil {
		return nil, fmt.Errorf("artifactmirror: s3 get: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	raw, err := rawHexOf(hash)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(raw)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, hash string) error {
	raw, err := rawHexOf(hash)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(raw)),
	})
	if err != nil {
		return fmt.Errorf("artifactmirror: s3 delete: %w", err)
	}
	return nil
}
