package file

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage provides durable, S3-compatible object storage for persisted results using MinIO.
// Objects are grouped per actor under "users/<actor id>/".
type Storage struct {
	client     *minio.Client
	bucketName string
	urlExpiry  time.Duration
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool, urlExpiry time.Duration) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	if urlExpiry <= 0 {
		urlExpiry = 24 * time.Hour
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
		urlExpiry:  urlExpiry,
	}, nil
}

// ObjectKey builds the bucket key for an actor's artifact.
func ObjectKey(actorID, filename string) string {
	return path.Join("users", actorID, path.Base(filename))
}

// Put uploads size bytes from src under key and returns the key.
func (s *Storage) Put(ctx context.Context, key string, src io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, src, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return key, nil
}

// URL returns a time-limited download URL for key.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign url: %w", err)
	}

	return u.String(), nil
}

// Delete removes the specified object from the bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
}
