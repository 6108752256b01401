package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
)

// MinioStorage MinIO对象存储实现
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(client *minio.Client, bucket string) *MinioStorage {
	return &MinioStorage{client: client, bucket: bucket}
}

var _ gateway.ObjectStorage = (*MinioStorage)(nil)

func (s *MinioStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		logger.Error("Failed to put object", map[string]interface{}{
			"object_key": key,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	logger.Debug("Object stored", map[string]interface{}{"object_key": key, "size": info.Size})
	return key, nil
}

func (s *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if ok, err := s.Exists(ctx, key); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("object %s: %w", key, os.ErrNotExist)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

func (s *MinioStorage) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", key, err)
}

// PutFile 上传本地文件
func (s *MinioStorage) PutFile(ctx context.Context, localPath, key string) (string, error) {
	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(key),
	}); err != nil {
		logger.Error("Failed to upload file to MinIO", map[string]interface{}{
			"local_path": localPath,
			"object_key": key,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	logger.Info("File uploaded", map[string]interface{}{
		"local_path": localPath,
		"object_key": key,
	})
	return key, nil
}

// GetFile 下载对象到本地路径
func (s *MinioStorage) GetFile(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local directory: %w", err)
	}
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		logger.Error("Failed to download object from MinIO", map[string]interface{}{
			"object_key": key,
			"local_path": localPath,
			"error":      err.Error(),
		})
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}
