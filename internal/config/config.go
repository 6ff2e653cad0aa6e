// Package config loads service configuration from YAML and the environment.
package config

import (
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Blob      BlobConfig      `yaml:"blob"`
	AWS       AWSConfig       `yaml:"aws"`
	OCR       OCRConfig       `yaml:"ocr"`
	Enhance   EnhanceConfig   `yaml:"enhance"`
	Nutrition NutritionConfig `yaml:"nutrition"`
	Mail      MailConfig      `yaml:"mail"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	CORSOrigins     string        `yaml:"cors_origins" env:"SERVER_CORS_ORIGINS" env-default:"*"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"SERVER_MAX_UPLOAD_BYTES" env-default:"20971520"`
}

// AllowedOrigins splits CORSOrigins on commas.
func (s ServerConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Path string `yaml:"path" env:"STORE_PATH" env-default:"data/grocerytrack.db"`
}

// Blob backends.
const (
	BlobLocal = "local"
	BlobGCS   = "gcs"
	BlobS3    = "s3"
)

// BlobConfig selects where uploaded receipt images live.
type BlobConfig struct {
	Backend  string `yaml:"backend" env:"BLOB_BACKEND" env-default:"local"`
	LocalDir string `yaml:"local_dir" env:"BLOB_LOCAL_DIR" env-default:"uploads"`
	Bucket   string `yaml:"bucket" env:"BLOB_BUCKET"`
	Prefix   string `yaml:"prefix" env:"BLOB_PREFIX" env-default:"receipts"`
}

// AWSConfig holds credentials shared by Textract and S3. Empty keys fall back
// to the default AWS credential chain.
type AWSConfig struct {
	Region          string `yaml:"region" env:"AWS_REGION" env-default:"eu-west-2"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

type OCRConfig struct {
	Concurrency int           `yaml:"concurrency" env:"OCR_CONCURRENCY" env-default:"4"`
	Timeout     time.Duration `yaml:"timeout" env:"OCR_TIMEOUT" env-default:"30s"`
}

type EnhanceConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENHANCE_ENABLED" env-default:"true"`
	APIKey  string        `yaml:"api_key" env:"GEMINI_API_KEY"`
	Model   string        `yaml:"model" env:"ENHANCE_MODEL" env-default:"gemini-2.5-flash"`
	Timeout time.Duration `yaml:"timeout" env:"ENHANCE_TIMEOUT" env-default:"60s"`
}

type NutritionConfig struct {
	APIKey  string        `yaml:"api_key" env:"CALORIENINJAS_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"NUTRITION_BASE_URL" env-default:"https://api.calorieninjas.com/v1"`
	Timeout time.Duration `yaml:"timeout" env:"NUTRITION_TIMEOUT" env-default:"10s"`
}

// MailConfig holds SMTP settings. Mail is disabled when Host is empty.
type MailConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"MAIL_FROM" env-default:"GroceryTrack <noreply@grocerytrack.app>"`
}

// Enabled reports whether an SMTP host is configured.
func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

// JobsConfig sizes the in-process receipt processing queue.
type JobsConfig struct {
	BufferSize   int           `yaml:"buffer_size" env:"JOBS_BUFFER_SIZE" env-default:"100"`
	Workers      int           `yaml:"workers" env:"JOBS_WORKERS" env-default:"5"`
	MaxRetries   int           `yaml:"max_retries" env:"JOBS_MAX_RETRIES" env-default:"3"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"JOBS_RETRY_BACKOFF" env-default:"1s"`
	JobTimeout   time.Duration `yaml:"job_timeout" env:"JOBS_TIMEOUT" env-default:"5m"`
}

// AnalyticsConfig controls the BigQuery mirror of aggregated grocery prices.
type AnalyticsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ANALYTICS_ENABLED" env-default:"false"`
	ProjectID string `yaml:"project_id" env:"GCP_PROJECT_ID"`
	Dataset   string `yaml:"dataset" env:"ANALYTICS_DATASET" env-default:"grocery_tracker"`
	Table     string `yaml:"table" env:"ANALYTICS_TABLE" env-default:"aggregated_grocery_prices"`
}

type WorkerConfig struct {
	Interval time.Duration `yaml:"interval" env:"WORKER_INTERVAL" env-default:"1h"`

	// StaleAfter is how long a receipt may sit in processing before the worker re-enqueues it.
	StaleAfter time.Duration `yaml:"stale_after" env:"WORKER_STALE_AFTER" env-default:"30m"`
}
