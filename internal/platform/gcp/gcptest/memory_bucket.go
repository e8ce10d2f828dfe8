// Package gcptest provides an in-memory BucketService for tests.
package gcptest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/storybook-admin/internal/platform/gcp"
)

type MemoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Fail, when set, is returned by every operation on a key it reports true for.
	Fail func(op, key string) error
}

var _ gcp.BucketService = (*MemoryBucket)(nil)

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: map[string][]byte{}}
}

func (b *MemoryBucket) fail(op, key string) error {
	if b.Fail == nil {
		return nil
	}
	return b.Fail(op, key)
}

func (b *MemoryBucket) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
}

func (b *MemoryBucket) Get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

func (b *MemoryBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	if err := b.fail("upload", key); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.Put(key, data)
	return nil
}

func (b *MemoryBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := b.fail("download", key); err != nil {
		return nil, err
	}
	data, ok := b.Get(key)
	if !ok {
		return nil, fmt.Errorf("download %q: %w", key, gcp.ErrObjectNotFound)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (b *MemoryBucket) DeleteFile(ctx context.Context, key string) error {
	if err := b.fail("delete", key); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[key]; !ok {
		return fmt.Errorf("delete %q: %w", key, gcp.ErrObjectNotFound)
	}
	delete(b.objects, key)
	return nil
}

func (b *MemoryBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := b.fail("list", prefix); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []string{}
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *MemoryBucket) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := b.ListKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.DeleteFile(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBucket) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (b *MemoryBucket) Close() error { return nil }
