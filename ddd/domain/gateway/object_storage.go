package gateway

import (
	"context"
	"io"
	"time"
)

// ObjectStorage 对象存储网关
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)

	// PutFile uploads a local file and returns its key.
	PutFile(ctx context.Context, localPath, key string) (string, error)
	// GetFile downloads key into localPath.
	GetFile(ctx context.Context, key, localPath string) error
}
