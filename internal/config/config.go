package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the conversion pipeline. Values come from the
// environment with defaults matching a small single-node deployment.
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Tasks    TasksConfig
}

type DatabaseConfig struct {
	// Type selects the repository backend: sqlite, pgsql or firestore.
	Type     string `envconfig:"PAGEPRESS_DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"PAGEPRESS_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"PAGEPRESS_DB_PORT" default:"5432"`
	Name     string `envconfig:"PAGEPRESS_DB_NAME" default:"pagepress.db"`
	User     string `envconfig:"PAGEPRESS_DB_USER" default:"pagepress"`
	Password string `envconfig:"PAGEPRESS_DB_PASS" default:""`

	// Firestore settings, used when Type is "firestore".
	ProjectID  string `envconfig:"PAGEPRESS_GCP_PROJECT" default:""`
	Collection string `envconfig:"PAGEPRESS_FIRESTORE_COLLECTION" default:"documents"`
}

type StorageConfig struct {
	// Type selects the blob store backend: file, gcs or s3.
	Type string `envconfig:"PAGEPRESS_STORAGE_TYPE" default:"file"`

	// MediaRoot and MediaURL configure the local file store.
	MediaRoot string `envconfig:"PAGEPRESS_MEDIA_ROOT" default:"media"`
	MediaURL  string `envconfig:"PAGEPRESS_MEDIA_URL" default:"/media"`

	// Bucket is used by both the GCS and S3 stores.
	Bucket string `envconfig:"PAGEPRESS_STORAGE_BUCKET" default:""`

	// S3 settings.
	S3Endpoint  string `envconfig:"PAGEPRESS_S3_ENDPOINT" default:""`
	S3AccessKey string `envconfig:"PAGEPRESS_S3_ACCESS_KEY" default:""`
	S3SecretKey string `envconfig:"PAGEPRESS_S3_SECRET_KEY" default:""`
	S3UseSSL    bool   `envconfig:"PAGEPRESS_S3_USE_SSL" default:"true"`
}

type PipelineConfig struct {
	PageDPI          int    `envconfig:"PAGEPRESS_PAGE_DPI" default:"150"`
	PageFormat       string `envconfig:"PAGEPRESS_PAGE_FORMAT" default:"jpeg"`
	PageQuality      int    `envconfig:"PAGEPRESS_PAGE_QUALITY" default:"85"`
	ThumbWidth       int    `envconfig:"PAGEPRESS_THUMB_WIDTH" default:"200"`
	ThumbHeight      int    `envconfig:"PAGEPRESS_THUMB_HEIGHT" default:"280"`
	ThumbFormat      string `envconfig:"PAGEPRESS_THUMB_FORMAT" default:"jpeg"`
	ThumbQuality     int    `envconfig:"PAGEPRESS_THUMB_QUALITY" default:"70"`
	MaxRetries       int    `envconfig:"PAGEPRESS_MAX_RETRIES" default:"3"`
	RetryBackoffSecs int    `envconfig:"PAGEPRESS_RETRY_BACKOFF_SECONDS" default:"60"`
}

type TasksConfig struct {
	Workers   int `envconfig:"PAGEPRESS_TASK_WORKERS" default:"4"`
	QueueSize int `envconfig:"PAGEPRESS_TASK_QUEUE_SIZE" default:"64"`
	// MaxAgeHours is how long finished tasks stay visible before Sweep
	// removes them.
	MaxAgeHours int `envconfig:"PAGEPRESS_TASK_MAX_AGE_HOURS" default:"24"`
}

// New loads the configuration from the environment.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
