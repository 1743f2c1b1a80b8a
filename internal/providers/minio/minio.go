package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"client/internal/app/capture"
	"client/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const previewPrefix = "tmp/previews/"

// MinioProvider stores capture previews as temporary objects and hands out
// presigned URLs for them.
type MinioProvider struct {
	client  *minio.Client
	bucket  string
	maxSize int64
	expiry  time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	objects map[string]string
}

func NewMinioProvider(cfg *config.Config, logger *zap.Logger) (*MinioProvider, error) {
	minioURL := cfg.MinioURL
	if !strings.HasPrefix(minioURL, "http://") && !strings.HasPrefix(minioURL, "https://") {
		minioURL = "https://" + minioURL
	}

	u, err := url.Parse(minioURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse minio URL: %w", err)
	}
	secure := u.Scheme == "https"

	logger.Info("Initializing MinIO", zap.String("url", minioURL), zap.Bool("secure", secure))

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16

	client, err := minio.New(u.Host, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.MinioUser, cfg.MinioPassword, ""),
		Secure:    secure,
		Transport: tr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	provider := &MinioProvider{
		client:  client,
		bucket:  cfg.MinioBucket,
		maxSize: cfg.MaxFileSize,
		expiry:  time.Hour,
		logger:  logger,
		objects: make(map[string]string),
	}

	if err := provider.ensureBucket(context.Background()); err != nil {
		return nil, err
	}

	return provider, nil
}

func (m *MinioProvider) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		m.logger.Error("BucketExists error", zap.Error(err), zap.String("bucket", m.bucket))
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		m.logger.Info("Created MinIO bucket", zap.String("bucket", m.bucket))
	}
	return nil
}

// Put uploads blob under tmp/previews/ and returns a presigned GET URL.
func (m *MinioProvider) Put(ctx context.Context, blob *capture.Blob) (string, error) {
	if blob == nil {
		return "", fmt.Errorf("failed to store preview: nil blob")
	}
	if int64(blob.Size()) > m.maxSize {
		return "", fmt.Errorf("file size exceeds maximum allowed size of %d MB", m.maxSize/(1024*1024))
	}

	objectName := previewPrefix + GenerateObjectName(blob.Name)
	_, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(blob.Data), int64(blob.Size()), minio.PutObjectOptions{
		ContentType: blob.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload preview: %w", err)
	}

	ref, err := m.GeneratePresignedURL(ctx, objectName, m.expiry)
	if err != nil {
		m.deleteObject(ctx, objectName)
		return "", err
	}

	m.mu.Lock()
	m.objects[ref] = objectName
	m.mu.Unlock()

	m.logger.Info("Preview uploaded",
		zap.String("filename", blob.Name),
		zap.String("object_name", objectName),
		zap.Int("size", blob.Size()),
	)
	return ref, nil
}

// Release deletes the object behind ref. Unknown refs are ignored.
func (m *MinioProvider) Release(ctx context.Context, ref string) error {
	m.mu.Lock()
	objectName, ok := m.objects[ref]
	delete(m.objects, ref)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.deleteObject(ctx, objectName)
}

// DeleteTmpFilesOlderThan removes previews that were never released.
func (m *MinioProvider) DeleteTmpFilesOlderThan(ctx context.Context, maxAge time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	objectsCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    previewPrefix,
		Recursive: true,
	})

	for object := range objectsCh {
		if object.Err != nil {
			return object.Err
		}

		objectTime := object.LastModified
		if time.Since(objectTime) > maxAge {
			if err := m.deleteObject(ctx, object.Key); err != nil {
				m.logger.Warn("Failed to delete old tmp file",
					zap.String("object", object.Key),
					zap.Error(err),
				)
			} else {
				m.logger.Info("Deleted old tmp file",
					zap.String("object", object.Key),
					zap.Duration("age", time.Since(objectTime)),
				)
			}
		}
	}

	return nil
}

// StartSweeper runs DeleteTmpFilesOlderThan every interval until ctx ends.
func (m *MinioProvider) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.DeleteTmpFilesOlderThan(ctx, maxAge); err != nil {
				m.logger.Warn("Preview sweep failed", zap.Error(err))
			}
		}
	}
}

func (m *MinioProvider) GeneratePresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

func (m *MinioProvider) deleteObject(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	m.logger.Debug("File deleted successfully", zap.String("object_name", objectName))
	return nil
}

func GenerateObjectName(filename string) string {
	timestamp := time.Now().Format("2006/01/02")
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s%s", timestamp, uuid.New().String(), ext)
}
