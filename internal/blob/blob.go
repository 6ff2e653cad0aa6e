// Package blob stores uploaded receipt images and reads them back for OCR.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/config"
	"github.com/dvloznov/grocery-tracker/internal/domain"
	infraaws "github.com/dvloznov/grocery-tracker/internal/infra/aws"
)

// ErrUnsupportedRef is returned by Get when the reference does not belong to the store.
var ErrUnsupportedRef = errors.New("unsupported blob reference")

// MaxImageBytes is the largest image Textract accepts in a synchronous call.
const MaxImageBytes = 10 << 20

// Store puts and gets image bytes. Put returns the public reference that
// clients persist on the receipt; Get accepts such a reference.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds a unique key for an upload: {prefix}/receipt-{uuid}-{name}.
func ObjectKey(prefix, filename string) string {
	name := unsafeChars.ReplaceAllString(path.Base(filename), "_")
	key := fmt.Sprintf("receipt-%s", uuid.NewString())
	if name != "" && name != "." && name != "_" {
		key += "-" + name
	}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// Open builds the configured backend, wrapped so plain http(s) image URLs
// can still be fetched.
func Open(ctx context.Context, cfg config.BlobConfig, awsCfg config.AWSConfig, log zerolog.Logger) (Store, error) {
	var primary Store
	switch cfg.Backend {
	case config.BlobGCS:
		gcs, err := NewGCSStore(ctx, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		primary = gcs
	case config.BlobS3:
		sdkCfg, err := infraaws.LoadConfig(ctx, awsCfg)
		if err != nil {
			return nil, err
		}
		primary = NewS3Store(newS3Client(sdkCfg), cfg.Bucket, sdkCfg.Region)
	default:
		local, err := NewLocalStore(cfg.LocalDir, LocalURLPrefix)
		if err != nil {
			return nil, err
		}
		primary = local
	}

	log.Info().Str("backend", cfg.Backend).Msg("Blob store ready")
	return WithHTTPFallback(primary, &http.Client{Timeout: 30 * time.Second}), nil
}

type httpFallback struct {
	Store
	client   *http.Client
	maxBytes int64
}

// WithHTTPFallback wraps s so that references it does not own but which are
// absolute http(s) URLs are downloaded directly, up to MaxImageBytes.
func WithHTTPFallback(s Store, client *http.Client) Store {
	return &httpFallback{Store: s, client: client, maxBytes: MaxImageBytes}
}

func (f *httpFallback) Get(ctx context.Context, ref string) ([]byte, error) {
	data, err := f.Store.Get(ctx, ref)
	if !errors.Is(err, ErrUnsupportedRef) {
		return data, err
	}

	u, perr := url.Parse(ref)
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, err
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if rerr != nil {
		return nil, fmt.Errorf("build image request: %w", rerr)
	}
	resp, herr := f.client.Do(req)
	if herr != nil {
		return nil, fmt.Errorf("fetch %s: %w: %v", ref, domain.ErrNetwork, herr)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s: %w", ref, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: status %d: %w", ref, resp.StatusCode, domain.ErrNetwork)
	}

	if resp.ContentLength > f.maxBytes {
		return nil, f.tooLarge(ref)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", ref, domain.ErrNetwork, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, f.tooLarge(ref)
	}
	return body, nil
}

func (f *httpFallback) tooLarge(ref string) error {
	return fmt.Errorf("%w: image %s is larger than %d bytes", domain.ErrValidation, ref, f.maxBytes)
}
