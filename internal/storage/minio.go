package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage is a thin wrapper around the minio client used for document exports.
type MinIOStorage struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg *MinIOConfig) (*MinIOStorage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket, presignTTL: ttl}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Put uploads data under key and returns a presigned GET URL for it.
func (s *MinIOStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return presigned.String(), nil
}

var extensions = map[string]string{
	"javascript": "js", "js": "js",
	"typescript": "ts", "ts": "ts",
	"python": "py", "py": "py",
	"go": "go", "golang": "go",
	"java": "java", "c": "c", "cpp": "cpp", "c++": "cpp",
	"csharp": "cs", "ruby": "rb", "rust": "rs", "php": "php",
	"html": "html", "css": "css", "json": "json", "markdown": "md", "sql": "sql",
}

// ExportKey builds the object key for a document export, e.g.
// exports/<id>/20240102T150405Z.js.
func ExportKey(documentID, language string, at time.Time) string {
	ext, ok := extensions[strings.ToLower(language)]
	if !ok {
		ext = "txt"
	}
	return path.Join("exports", documentID, at.UTC().Format("20060102T150405Z")+"."+ext)
}
