package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// ProofStore keeps delivery proof files (photos, signed receipts) and returns the reference to persist.
type ProofStore interface {
	Upload(ctx context.Context, deliveryID uuid.UUID, fileName, contentType string, r io.Reader, size int64) (string, error)
}

type MinioProofStore struct {
	client *minio.Client
	bucket string
}

// NewMinioProofStore connects to MinIO and ensures the proof bucket exists.
func NewMinioProofStore(endpoint, accessKey, secretKey, bucket string, useSSL bool, log *logrus.Logger) (*MinioProofStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	if err := ensureBucket(client, bucket, log); err != nil {
		return nil, err
	}
	return &MinioProofStore{client: client, bucket: bucket}, nil
}

func ensureBucket(client *minio.Client, bucket string, log *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	log.WithField("bucket", bucket).Info("created proof bucket")
	return nil
}

func (s *MinioProofStore) Upload(ctx context.Context, deliveryID uuid.UUID, fileName, contentType string, r io.Reader, size int64) (string, error) {
	key := ObjectKey(deliveryID, fileName)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload proof: %w", err)
	}
	return s.bucket + "/" + key, nil
}

// ObjectKey places proofs under deliveries/<id>/ keeping only the base file name.
func ObjectKey(deliveryID uuid.UUID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "proof"
	}
	return fmt.Sprintf("deliveries/%s/%d-%s", deliveryID, time.Now().UnixNano(), base)
}
