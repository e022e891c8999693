package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

const (
	TrainingDataBucket    = "training-data"
	GeneratedImagesBucket = "generated-images"

	// SignedURLTTL matches the provider-side default the app has always used.
	SignedURLTTL = 3600
)

// ObjectStore is the object-storage surface the handlers depend on. Paths are
// bucket-relative and always shaped {userId}/{fileName}.
type ObjectStore interface {
	CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error)
	CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int) (string, error)
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Remove(ctx context.Context, bucket, path string) error
}

type Options struct {
	BaseURL    string
	ServiceKey string
}

type supabaseStore struct {
	client *storage_go.Client
}

// NewObjectStore builds an ObjectStore backed by Supabase Storage using the
// service-role key (uploads and removals bypass row-level policies).
func NewObjectStore(opts Options) (ObjectStore, error) {
	if opts.BaseURL == "" || opts.ServiceKey == "" {
		return nil, errors.New("storage: base URL and service key are required")
	}
	url := strings.TrimRight(opts.BaseURL, "/") + "/storage/v1"
	return &supabaseStore{client: storage_go.NewClient(url, opts.ServiceKey, nil)}, nil
}

func (s *supabaseStore) CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error) {
	resp, err := s.client.CreateSignedUploadUrl(bucket, path)
	if err != nil {
		return "", fmt.Errorf("storage: signed upload url: %w", err)
	}
	if resp.Url == "" {
		return "", errors.New("storage: empty signed upload url")
	}
	return resp.Url, nil
}

func (s *supabaseStore) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int) (string, error) {
	if expiresIn <= 0 {
		expiresIn = SignedURLTTL
	}
	resp, err := s.client.CreateSignedUrl(bucket, path, expiresIn)
	if err != nil {
		return "", fmt.Errorf("storage: signed url: %w", err)
	}
	if resp.SignedURL == "" {
		return "", errors.New("storage: empty signed url")
	}
	return resp.SignedURL, nil
}

func (s *supabaseStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	upsert := false
	cacheControl := "3600"
	opts := storage_go.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	}
	if _, err := s.client.UploadFile(bucket, path, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("storage: upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *supabaseStore) Remove(ctx context.Context, bucket, path string) error {
	if _, err := s.client.RemoveFile(bucket, []string{path}); err != nil {
		return fmt.Errorf("storage: remove %s/%s: %w", bucket, path, err)
	}
	return nil
}

// TrainingUploadKey builds the bucket key for a fresh training upload. The
// timestamp prefix keeps repeated uploads of the same file name apart.
func TrainingUploadKey(userID, fileName string) string {
	return fmt.Sprintf("%s/%d_%s", userID, time.Now().UnixMilli(), fileName)
}

// ObjectKey joins a user id and file name into a bucket key.
func ObjectKey(userID, fileName string) string {
	return userID + "/" + fileName
}
