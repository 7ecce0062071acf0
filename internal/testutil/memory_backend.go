package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// MemoryBackend is an artifact.Backend held in a map. FailWrites makes
// every Write for the listed keys fail.
type MemoryBackend struct {
	mu         sync.RWMutex
	docs       map[string][]byte
	FailWrites map[string]error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte), FailWrites: make(map[string]error)}
}

func (b *MemoryBackend) Write(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.FailWrites[key]; ok {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.docs[key] = cp
	return nil
}

func (b *MemoryBackend) Read(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.docs[key]
	if !ok {
		return nil, errors.New(errors.ErrCodeArtifactNotFound, "artifact not found").WithDetail(key)
	}
	return data, nil
}

func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.docs[key]
	return ok, nil
}

// Keys returns the stored keys.
func (b *MemoryBackend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.docs))
	for k := range b.docs {
		out = append(out, k)
	}
	return out
}

// Day parses a YYYY-MM-DD date in UTC and panics on malformed input.
func Day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
