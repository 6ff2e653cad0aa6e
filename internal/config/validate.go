package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json (got %q)", c.Log.Format)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	switch c.Blob.Backend {
	case BlobLocal:
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("blob.local_dir is required for the local backend")
		}
	case BlobGCS, BlobS3:
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the %s backend", c.Blob.Backend)
		}
	default:
		return fmt.Errorf("blob.backend must be local, gcs or s3 (got %q)", c.Blob.Backend)
	}

	if c.OCR.Concurrency < 1 {
		return fmt.Errorf("ocr.concurrency must be >= 1 (got %d)", c.OCR.Concurrency)
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be >= 1 (got %d)", c.Jobs.Workers)
	}
	if c.Jobs.BufferSize < 1 {
		return fmt.Errorf("jobs.buffer_size must be >= 1 (got %d)", c.Jobs.BufferSize)
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("jobs.max_retries must be >= 0 (got %d)", c.Jobs.MaxRetries)
	}

	if c.Analytics.Enabled && c.Analytics.ProjectID == "" {
		return fmt.Errorf("analytics.project_id is required when analytics is enabled")
	}

	return nil
}
