package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// LocalURLPrefix is the path under which the API serves locally stored uploads.
const LocalURLPrefix = "/uploads/"

// LocalStore keeps blobs on the local filesystem.
type LocalStore struct {
	dir    string
	prefix string
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, prefix: urlPrefix}, nil
}

// Dir returns the root directory, for serving uploads over HTTP.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: invalid object key %q", domain.ErrValidation, key)
	}
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create object %q: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write object %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("finalize object %q: %w", key, err)
	}

	return s.prefix + key, nil
}

// Get accepts the path returned by Put, optionally as an absolute URL.
func (s *LocalStore) Get(ctx context.Context, ref string) ([]byte, error) {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		p = u.Path
	}
	if !strings.HasPrefix(p, s.prefix) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref)
	}

	key := strings.TrimPrefix(p, s.prefix)
	if !filepath.IsLocal(key) {
		return nil, fmt.Errorf("%w: invalid object key %q", domain.ErrValidation, key)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}
