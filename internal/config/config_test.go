package config

import (
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Blob.Driver != BlobFS || cfg.Sync.Interval != 2*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"STEPSEQ_STORAGE_DRIVER":     "postgres",
		"STEPSEQ_POSTGRES_DSN":       "postgres://localhost/stepseq",
		"STEPSEQ_BLOB_DRIVER":        "s3",
		"STEPSEQ_BLOB_S3_BUCKET":     "samples",
		"STEPSEQ_BLOB_S3_PATH_STYLE": "true",
		"STEPSEQ_SYNC_INTERVAL":      "250ms",
		"STEPSEQ_LOG_FORMAT":         "json",
		"STEPSEQ_METRICS":            "prometheus",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.PostgresDSN == "" || !cfg.Blob.S3.PathStyle || cfg.Sync.Interval != 250*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Log.Format != "json" || cfg.Metrics.Driver != "prometheus" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":     {"STEPSEQ_STORAGE_DRIVER": "mysql"},
		"dsn":        {"STEPSEQ_STORAGE_DRIVER": "postgres"},
		"bucket":     {"STEPSEQ_BLOB_DRIVER": "s3"},
		"duration":   {"STEPSEQ_SYNC_INTERVAL": "soon"},
		"negative":   {"STEPSEQ_SYNC_MAX_BACKOFF": "-1s"},
		"path style": {"STEPSEQ_BLOB_S3_PATH_STYLE": "sometimes"},
		"level":      {"STEPSEQ_LOG_LEVEL": "loud"},
		"metrics":    {"STEPSEQ_METRICS": "statsd"},
	}
	for name, vars := range cases {
		if _, err := Load(env(vars)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := Load(env(map[string]string{"STEPSEQ_SYNC_INTERVAL": "soon"}))
	if err == nil || !strings.Contains(err.Error(), "STEPSEQ_SYNC_INTERVAL") {
		t.Fatalf("error must name the variable, got %v", err)
	}
}
