// Package config loads runtime settings from STEPSEQ_* environment variables.
//
//	STEPSEQ_STORAGE_DRIVER      memory|sqlite|postgres (default sqlite)
//	STEPSEQ_SQLITE_PATH         sqlite database file (default ./stepseq.db)
//	STEPSEQ_POSTGRES_DSN        connection string when driver=postgres
//	STEPSEQ_PROJECT             project id loaded by the CLI (default "default")
//	STEPSEQ_BLOB_DRIVER         fs|memory|s3 (default fs)
//	STEPSEQ_BLOB_FS_ROOT        root directory for the fs driver (default ./samples)
//	STEPSEQ_BLOB_S3_BUCKET      bucket for the s3 driver
//	STEPSEQ_BLOB_S3_REGION      region (default us-east-1)
//	STEPSEQ_BLOB_S3_ENDPOINT    custom endpoint, e.g. a MinIO URL
//	STEPSEQ_BLOB_S3_PATH_STYLE  true to force path-style addressing
//	STEPSEQ_SYNC_INTERVAL       outbox poll interval (default 2s)
//	STEPSEQ_SYNC_MAX_BACKOFF    retry delay cap (default 1m)
//	STEPSEQ_LOG_LEVEL           debug|info|warn|error (default info)
//	STEPSEQ_LOG_FORMAT          text|json (default text)
//	STEPSEQ_METRICS             none|expvar|prometheus (default none)
//	STEPSEQ_METRICS_ADDR        listen address for the metrics endpoint (default :9464)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers.
const (
	BlobFS     = "fs"
	BlobMemory = "memory"
	BlobS3     = "s3"
)

// Storage selects the persistence backend.
type Storage struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// S3 configures the s3 blob driver.
type S3 struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Blob selects the sample file backend.
type Blob struct {
	Driver string
	FSRoot string
	S3     S3
}

// Sync tunes the background reconciliation loop.
type Sync struct {
	Interval   time.Duration
	MaxBackoff time.Duration
}

// Log configures the slog handler built by the CLI.
type Log struct {
	Level  string
	Format string
}

// Metrics selects the metrics exporter.
type Metrics struct {
	Driver string
	Addr   string
}

// Config is the complete runtime configuration.
type Config struct {
	Project string
	Storage Storage
	Blob    Blob
	Sync    Sync
	Log     Log
	Metrics Metrics
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Project: "default",
		Storage: Storage{Driver: StorageSQLite, SQLitePath: "./stepseq.db"},
		Blob:    Blob{Driver: BlobFS, FSRoot: "./samples", S3: S3{Region: "us-east-1"}},
		Sync:    Sync{Interval: 2 * time.Second, MaxBackoff: time.Minute},
		Log:     Log{Level: "info", Format: "text"},
		Metrics: Metrics{Driver: "none", Addr: ":9464"},
	}
}

// FromEnv reads the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup, applying defaults for unset variables.
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("STEPSEQ_PROJECT", &cfg.Project)
	str("STEPSEQ_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STEPSEQ_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("STEPSEQ_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("STEPSEQ_BLOB_DRIVER", &cfg.Blob.Driver)
	str("STEPSEQ_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("STEPSEQ_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("STEPSEQ_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("STEPSEQ_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("STEPSEQ_LOG_LEVEL", &cfg.Log.Level)
	str("STEPSEQ_LOG_FORMAT", &cfg.Log.Format)
	str("STEPSEQ_METRICS", &cfg.Metrics.Driver)
	str("STEPSEQ_METRICS_ADDR", &cfg.Metrics.Addr)

	if v, ok := lookup("STEPSEQ_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("STEPSEQ_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	for key, dst := range map[string]*time.Duration{
		"STEPSEQ_SYNC_INTERVAL":    &cfg.Sync.Interval,
		"STEPSEQ_SYNC_MAX_BACKOFF": &cfg.Sync.MaxBackoff,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("%s: must be positive, got %s", key, v)
		}
		*dst = d
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated values and required settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("STEPSEQ_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case BlobFS, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("STEPSEQ_BLOB_S3_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Metrics.Driver {
	case "none", "expvar", "prometheus":
	default:
		return fmt.Errorf("unknown metrics driver %q", c.Metrics.Driver)
	}
	return nil
}
