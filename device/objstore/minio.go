package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioStore implements ObjectStore for MinIO and other S3-compatible servers.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore creates a store writing under rootPrefix in bucket.
func NewMinioStore(client *minio.Client, bucket, rootPrefix string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, joinKey(s.prefix, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(key, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(key, err)
	}
	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, joinKey(s.prefix, key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, joinKey(s.prefix, key), minio.RemoveObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *MinioStore) mapErr(key string, err error) error {
	if isMinioNotFound(err) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
