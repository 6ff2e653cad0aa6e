package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

const gcsPublicHost = "https://storage.googleapis.com/"

// GCSStore keeps blobs in a Google Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put uploads r and returns the object's public https URL.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy to GCS writer: %w: %v", domain.ErrNetwork, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w: %v", domain.ErrNetwork, err)
	}

	return gcsPublicHost + s.bucket + "/" + key, nil
}

// Get downloads the object behind a gs:// URI or a storage.googleapis.com URL.
func (s *GCSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(ref)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, object, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w: %v", bucket, object, domain.ErrNetwork, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes: %w: %v", domain.ErrNetwork, err)
	}
	return data, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

// ParseGCSURI splits gs://bucket/object or https://storage.googleapis.com/bucket/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	var trimmed string
	switch {
	case strings.HasPrefix(uri, "gs://"):
		trimmed = strings.TrimPrefix(uri, "gs://")
	case strings.HasPrefix(uri, gcsPublicHost):
		trimmed = strings.TrimPrefix(uri, gcsPublicHost)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedRef, uri)
	}

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: invalid GCS URI (no object path): %s", domain.ErrValidation, uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a blob reference.
// e.g., "gs://bucket/receipts/receipt-1.jpg" → "receipt-1.jpg"
func FilenameFromURI(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		uri = uri[i+3:]
	}
	return path.Base(uri)
}
