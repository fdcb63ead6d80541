// Package blob stores uploaded binaries (card attachments, avatars) in
// S3-compatible object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	MaxAttachmentSize = 10 << 20
	MaxAvatarSize     = 5 << 20
)

var (
	ErrTooLarge      = errors.New("file exceeds size limit")
	ErrNotAnImage    = errors.New("avatar must be an image")
	ErrNotConfigured = errors.New("object storage not configured")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base clients fetch objects from; defaults to the
	// endpoint itself.
	PublicURL string
}

type Service struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}

	return &Service{client: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// PutAttachment uploads a card attachment and returns its public URL.
func (s *Service) PutAttachment(ctx context.Context, cardID, name, contentType string, size int64, r io.Reader) (string, error) {
	if size > MaxAttachmentSize {
		return "", ErrTooLarge
	}
	object := fmt.Sprintf("attachments/%s/%s", cardID, sanitizeName(name))
	return s.put(ctx, object, contentType, size, r)
}

// PutAvatar uploads a user avatar, image content only.
func (s *Service) PutAvatar(ctx context.Context, userID, name, contentType string, size int64, r io.Reader) (string, error) {
	if size > MaxAvatarSize {
		return "", ErrTooLarge
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotAnImage
	}
	object := fmt.Sprintf("avatars/%s/%s", userID, sanitizeName(name))
	return s.put(ctx, object, contentType, size, r)
}

func (s *Service) put(ctx context.Context, object, contentType string, size int64, r io.Reader) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", object, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, object), nil
}

// sanitizeName strips path separators so a client-supplied filename cannot
// escape its object prefix.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "file"
	}
	return name
}
