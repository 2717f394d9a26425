package artifact

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
	"billoffice/pkg/metrics"
)

const keyPrefix = "artifact:"

// Object is a stored artifact: raw bytes plus content metadata.
type Object struct {
	Data        []byte
	ContentType string
	Length      int64
}

// Store is the blob side of the dual-store protocol.
type Store interface {
	Upload(ctx context.Context, data []byte, filename string, kind model.DocumentKind, ownerID int64, contentType string, category Category) (string, error)
	Download(ctx context.Context, path string) (*Object, error)
	Delete(ctx context.Context, path string) error
}

// RedisStore keeps each artifact in one hash (data + content_type), so a
// write is either fully visible or absent.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

// Upload stores the bytes under the derived path and returns that path.
func (s *RedisStore) Upload(ctx context.Context, data []byte, filename string, kind model.DocumentKind, ownerID int64, contentType string, category Category) (string, error) {
	start := time.Now()
	path := DerivePath(kind, category, ownerID, filename)

	err := s.rdb.HSet(ctx, keyPrefix+path,
		"data", data,
		"content_type", contentType,
	).Err()
	metrics.ObserveArtifactOperation("upload", time.Since(start))
	if err != nil {
		s.logger.Error("Artifact upload failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return "", apperr.StoreUnavailable("artifact upload failed", err)
	}

	s.logger.Info("Artifact uploaded",
		zap.String("path", path),
		zap.Int("size", len(data)),
		zap.String("content_type", contentType),
	)
	return path, nil
}

// Download returns the artifact at path, or a not-found error when no
// object exists there.
func (s *RedisStore) Download(ctx context.Context, path string) (*Object, error) {
	start := time.Now()
	vals, err := s.rdb.HMGet(ctx, keyPrefix+path, "data", "content_type").Result()
	metrics.ObserveArtifactOperation("download", time.Since(start))
	if err != nil {
		return nil, apperr.StoreUnavailable("artifact download failed", err)
	}

	if vals[0] == nil {
		return nil, apperr.NotFound("artifact not found: %s", path)
	}

	data := []byte(vals[0].(string))
	contentType := ""
	if vals[1] != nil {
		contentType = vals[1].(string)
	}

	return &Object{
		Data:        data,
		ContentType: contentType,
		Length:      int64(len(data)),
	}, nil
}

// Delete removes the artifact at path. Deleting a nonexistent path is not
// an error: the lifecycle protocol deletes speculatively during cleanup.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	start := time.Now()
	n, err := s.rdb.Del(ctx, keyPrefix+path).Result()
	metrics.ObserveArtifactOperation("delete", time.Since(start))
	if err != nil {
		return apperr.StoreUnavailable("artifact delete failed", err)
	}

	if n == 0 {
		s.logger.Debug("Artifact delete on nonexistent path", zap.String("path", path))
		return nil
	}

	s.logger.Info("Artifact deleted", zap.String("path", path))
	return nil
}
