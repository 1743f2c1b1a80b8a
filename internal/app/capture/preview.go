package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// A PreviewStore hands out locally playable references for staged media.
type PreviewStore interface {
	Put(ctx context.Context, blob *Blob) (string, error)
	Release(ctx context.Context, ref string) error
}

// MemoryPreviews keeps previews in process memory. References are URL paths
// under prefix, served by the bridge.
type MemoryPreviews struct {
	prefix string
	mu     sync.RWMutex
	blobs  map[string]*Blob
}

func NewMemoryPreviews(prefix string) *MemoryPreviews {
	return &MemoryPreviews{
		prefix: strings.TrimRight(prefix, "/") + "/",
		blobs:  make(map[string]*Blob),
	}
}

func (p *MemoryPreviews) Put(_ context.Context, blob *Blob) (string, error) {
	if blob == nil {
		return "", fmt.Errorf("failed to store preview: nil blob")
	}
	id := uuid.NewString()
	p.mu.Lock()
	p.blobs[id] = blob
	p.mu.Unlock()
	return p.prefix + id, nil
}

func (p *MemoryPreviews) Release(_ context.Context, ref string) error {
	p.mu.Lock()
	delete(p.blobs, strings.TrimPrefix(ref, p.prefix))
	p.mu.Unlock()
	return nil
}

// Get looks a preview up by its id, the last path element of its reference.
func (p *MemoryPreviews) Get(id string) (*Blob, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.blobs[id]
	return b, ok
}

func (p *MemoryPreviews) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.blobs)
}
