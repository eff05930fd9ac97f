package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stepseq/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "alice/kick.wav", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "audio/wav", Metadata: map[string]string{"name": "Kick"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "alice/kick.wav" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "alice/kick.wav", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	h, err := store.Head(ctx, "alice/kick.wav")
	if err != nil || h.Metadata["name"] != "Kick" || h.ContentType != "audio/wav" {
		t.Fatalf("head: %v %+v", err, h)
	}
	g, rc, err := store.Get(ctx, "alice/kick.wav")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "hello" || g.ETag != h.ETag {
		t.Fatalf("unexpected get artifacts")
	}
	if _, err := store.Put(ctx, "bob/snare.wav", bytes.NewReader([]byte("s")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "alice/")
	if err != nil || len(list) != 1 || list[0].Key != "alice/kick.wav" {
		t.Fatalf("unexpected list %v %+v", err, list)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected sorted full listing: %+v", all)
	}
	ok, err := store.Delete(ctx, "alice/kick.wav")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "alice/kick.wav")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
	if _, err := store.Head(ctx, "alice/kick.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "alice/kick.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	if got, err := sanitizeKey("a//b/./c.wav"); err != nil || got != "a/b/c.wav" {
		t.Fatalf("unexpected clean key %q %v", got, err)
	}
}

func TestSidecarWritten(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "meta/data.bin", bytes.NewReader([]byte("abc")), core.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	dataPath, metaPath, _ := store.pathFor("meta/data.bin")
	if _, err := os.Stat(dataPath); err != nil {
		t.Fatalf("expected data file: %v", err)
	}
	b, err := os.ReadFile(metaPath)
	if err != nil || !bytes.Contains(b, []byte("application/octet-stream")) {
		t.Fatalf("sidecar missing content type: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(dataPath))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestPutCopyError(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "bad.bin", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
	if _, err := store.Head(context.Background(), "bad.bin"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("failed put must leave nothing behind: %v", err)
	}
}

func TestListCorruptSidecar(t *testing.T) {
	store := newTempStore(t)
	data := filepath.Join(store.Root(), "bad.txt")
	if err := os.WriteFile(data, []byte("data"), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := os.WriteFile(data+metaSuffix, []byte("{"), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list error on corrupt sidecar")
	}
}

func TestPresignURL(t *testing.T) {
	store := newTempStore(t)
	u, err := store.PresignURL(context.Background(), "a/1.wav", core.SignedURLOptions{Method: "get"})
	if err != nil || !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/a/1.wav") {
		t.Fatalf("presign: %v %s", err, u)
	}
	if _, err := store.PresignURL(context.Background(), "a/1.wav", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported for PUT, got %v", err)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "afile")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := New(filePath); err == nil {
		t.Fatalf("expected error when root is a file")
	}
}
