// Package objstore uploads exported utterance WAVs to an S3-compatible
// object store.
package objstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
}

type Store struct {
	cfg   *Config
	minio *minio.Client

	ensuredBuckets sync.Map
}

func New(cfg *Config) (*Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Store{
		cfg:   cfg,
		minio: mc,
	}, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	if _, ok := s.ensuredBuckets.Load(bucket); ok {
		return nil
	}

	exists, err := s.minio.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	s.ensuredBuckets.Store(bucket, struct{}{})

	return nil
}

// PutWAV uploads one exported utterance under the configured bucket.
func (s *Store) PutWAV(ctx context.Context, objectName string, reader io.Reader, size int64) error {
	if err := s.ensureBucket(ctx, s.cfg.Bucket); err != nil {
		return err
	}

	_, err := s.minio.PutObject(ctx, s.cfg.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: "audio/wav",
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", objectName, err)
	}

	return nil
}
