package mapbuffer

import (
	"fmt"
	"sync"

	"github.com/gridscan/pyratiff"
)

// A Registry maps u64 buffer keys to MapBuffer instances. Keys are
// monotone; removal is explicit. Components that cannot share a buffer
// pointer directly (separate stages of a scanning pipeline) rendezvous on
// the key.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	buffers map[uint64]*MapBuffer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{next: 1, buffers: make(map[uint64]*MapBuffer)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first
// use. Callers wanting isolation pass their own Registry instead.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Initialize creates a buffer and returns its key.
func (r *Registry) Initialize(options ...BufferOption) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.next
	r.next++
	r.buffers[key] = NewMapBuffer(options...)
	return key
}

// Get resolves a key.
func (r *Registry) Get(key uint64) (*MapBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[key]
	if !ok {
		return nil, fmt.Errorf("%w: no map buffer with key %d", pyratiff.ErrInvalidArgument, key)
	}
	return b, nil
}

// Remove destroys the buffer under key.
func (r *Registry) Remove(key uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buffers[key]; !ok {
		return fmt.Errorf("%w: no map buffer with key %d", pyratiff.ErrInvalidArgument, key)
	}
	delete(r.buffers, key)
	return nil
}

// Keys lists the live keys in undefined order.
func (r *Registry) Keys() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]uint64, 0, len(r.buffers))
	for k := range r.buffers {
		keys = append(keys, k)
	}
	return keys
}
