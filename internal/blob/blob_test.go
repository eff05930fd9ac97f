package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"stepseq/internal/config"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := Open(ctx, config.Blob{FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("default driver must be fs: %v", err)
	}
	mem, err := Open(ctx, config.Blob{Driver: config.BlobMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v", err)
	}
	s3, err := Open(ctx, config.Blob{Driver: config.BlobS3, S3: config.S3{Bucket: "bkt", Endpoint: "https://minio.local", PathStyle: true}})
	if err != nil || s3.Driver() != DriverS3 {
		t.Fatalf("s3 driver: %v", err)
	}
	if _, err := Open(ctx, config.Blob{Driver: config.BlobS3}); err == nil {
		t.Fatalf("s3 without bucket must fail")
	}
	if _, err := Open(ctx, config.Blob{Driver: "ftp"}); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}

func TestBackendsShareErrorSemantics(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	for _, store := range []Store{NewMemory(), fsStore, NewMockS3ForTests()} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			if _, err := store.Head(ctx, "missing.wav"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("head missing: %v", err)
			}
			if _, err := store.Put(ctx, "x/kick.wav", bytes.NewReader([]byte("k")), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "x/kick.wav", bytes.NewReader([]byte("k")), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("duplicate put: %v", err)
			}
			if ok, err := store.Delete(ctx, "x/kick.wav"); err != nil || !ok {
				t.Fatalf("delete: %v %v", ok, err)
			}
		})
	}
}
