// Package samples manages sample files in blob storage and resolves the
// opaque file ids stored on steps into display-ready references.
//
// A file id is the blob key. Uploads are stored under
// <owner>/<unix nanos>-<slug> so repeated uploads of one name never collide.
package samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"stepseq/internal/blob"
	"stepseq/pkg/domain"
)

// NameKey is the blob metadata key holding a file's display name.
const NameKey = "name"

// DefaultCacheSize bounds the number of cached references.
const DefaultCacheSize = 256

// Library resolves, uploads and lists sample files.
type Library struct {
	store  blob.Store
	cache  *lru.Cache[domain.ID, domain.FileReference]
	expiry time.Duration
	now    func() time.Time
}

var _ domain.FileResolver = (*Library)(nil)

// Option configures a Library.
type Option func(*Library)

// WithURLExpiry sets the lifetime requested for presigned URLs.
func WithURLExpiry(d time.Duration) Option {
	return func(l *Library) {
		if d > 0 {
			l.expiry = d
		}
	}
}

// WithClock overrides the time source used to name uploads.
func WithClock(now func() time.Time) Option {
	return func(l *Library) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a library over store caching up to size references.
func New(store blob.Store, size int, opts ...Option) (*Library, error) {
	if store == nil {
		return nil, errors.New("samples: nil blob store")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[domain.ID, domain.FileReference](size)
	if err != nil {
		return nil, fmt.Errorf("samples cache: %w", err)
	}
	l := &Library{store: store, cache: cache, expiry: 15 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Resolve implements domain.FileResolver. Missing files report
// domain.ErrNotFound. The URL is empty when the driver cannot presign.
func (l *Library) Resolve(ctx context.Context, fileID domain.ID) (domain.FileReference, error) {
	if ref, ok := l.cache.Get(fileID); ok {
		return ref, nil
	}
	info, err := l.store.Head(ctx, fileID.String())
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.FileReference{}, domain.ErrNotFound{Entity: domain.EntityFile, ID: fileID}
		}
		return domain.FileReference{}, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	url, err := l.store.PresignURL(ctx, info.Key, blob.SignedURLOptions{Expiry: l.expiry})
	if err != nil && !errors.Is(err, blob.ErrUnsupported) {
		return domain.FileReference{}, fmt.Errorf("presign file %s: %w", fileID, err)
	}
	ref := reference(info, url)
	l.cache.Add(fileID, ref)
	return ref, nil
}

// Upload stores r as a new sample owned by owner and returns its reference.
func (l *Library) Upload(ctx context.Context, owner, name string, r io.Reader, contentType string) (domain.FileReference, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.FileReference{}, errors.New("samples: owner required")
	}
	key := owner + "/" + strconv.FormatInt(l.now().UnixNano(), 10) + "-" + Slug(name)
	info, err := l.store.Put(ctx, key, r, blob.PutOptions{ContentType: contentType, Metadata: map[string]string{NameKey: name}})
	if err != nil {
		return domain.FileReference{}, fmt.Errorf("upload %s: %w", name, err)
	}
	l.cache.Remove(domain.ID(key))
	return l.Resolve(ctx, domain.ID(info.Key))
}

// List returns the samples owned by owner, ordered by key. Listings from
// drivers without metadata in listings fall back to Head per file.
func (l *Library) List(ctx context.Context, owner string) ([]domain.FileReference, error) {
	prefix := ""
	if owner != "" {
		prefix = owner + "/"
	}
	infos, err := l.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	out := make([]domain.FileReference, 0, len(infos))
	for _, info := range infos {
		if info.Metadata == nil {
			ref, err := l.Resolve(ctx, domain.ID(info.Key))
			if err != nil {
				return nil, err
			}
			out = append(out, ref)
			continue
		}
		out = append(out, reference(info, ""))
	}
	return out, nil
}

// Delete removes a sample and drops it from the cache.
func (l *Library) Delete(ctx context.Context, fileID domain.ID) (bool, error) {
	l.cache.Remove(fileID)
	ok, err := l.store.Delete(ctx, fileID.String())
	if err != nil {
		return false, fmt.Errorf("delete file %s: %w", fileID, err)
	}
	return ok, nil
}

// Forget drops cached references; with no ids the whole cache is purged.
func (l *Library) Forget(ids ...domain.ID) {
	if len(ids) == 0 {
		l.cache.Purge()
		return
	}
	for _, id := range ids {
		l.cache.Remove(id)
	}
}

// Cached reports the number of cached references.
func (l *Library) Cached() int { return l.cache.Len() }

func reference(info blob.Info, url string) domain.FileReference {
	name := info.Metadata[NameKey]
	if name == "" {
		name = path.Base(info.Key)
	}
	return domain.FileReference{ID: domain.ID(info.Key), Name: name, URL: url, ContentType: info.ContentType, Size: info.Size}
}

// Slug lowercases name and replaces runs of anything but letters, digits,
// dots and dashes with a single dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			b.WriteRune(r)
			dash = r == '-'
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.Trim(strings.ReplaceAll(b.String(), "-.", "."), "-.")
	if s == "" {
		return "sample"
	}
	return s
}
