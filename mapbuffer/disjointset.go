// Package mapbuffer assembles frame-by-frame scans of labeled object maps
// into coherent buffers: bounded frame retention, cross-frame label
// stitching via a concurrent union-find, and reindexing that keeps only
// completed objects.
package mapbuffer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gridscan/pyratiff"
)

// MaxObjects bounds the disjoint-set size; the margin below 2^31-1 keeps
// index arithmetic clear of overflow.
const MaxObjects = 1<<31 - 1001

// resolveBlockSize is the work unit of the parallel base resolution.
const resolveBlockSize = 256

// A DisjointSet is a union-find over object ids with path compression and
// union by size. Element slots are int32 on purpose: the concurrent
// FindBase relies on tear-free 32-bit loads and stores, and overlapping
// writers may each store a different — but always valid — base that
// converges on the next call. 64-bit elements would break this.
type DisjointSet struct {
	// mu guards the slice headers during expansion; element access goes
	// through atomics under the read lock.
	mu sync.RWMutex

	parent []int32
	card   []int32
}

// NewDisjointSet returns an empty set.
func NewDisjointSet() *DisjointSet {
	return &DisjointSet{}
}

// Count returns the number of tracked ids.
func (s *DisjointSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parent)
}

// Expand grows the set so id i is tracked, self-initializing new slots to
// parent[k] = k, cardinality[k] = 1. Growth doubles geometrically. Fails
// with ResourceExhausted past MaxObjects.
func (s *DisjointSet) Expand(i int) error {
	if i < 0 {
		return fmt.Errorf("%w: negative object id %d", pyratiff.ErrInvalidArgument, i)
	}
	if i >= MaxObjects {
		return fmt.Errorf("%w: object id %d exceeds %d", pyratiff.ErrResourceExhausted, i, MaxObjects)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.parent) {
		return nil
	}
	newLen := len(s.parent)
	if newLen == 0 {
		newLen = 16
	}
	for newLen <= i {
		newLen *= 2
	}
	if newLen > MaxObjects {
		newLen = MaxObjects
	}
	parent := make([]int32, newLen)
	card := make([]int32, newLen)
	copy(parent, s.parent)
	copy(card, s.card)
	for k := len(s.parent); k < newLen; k++ {
		parent[k] = int32(k)
		card[k] = 1
	}
	s.parent = parent
	s.card = card
	return nil
}

// ParentOrThis returns i unchanged when i is outside the tracked range,
// else the direct parent. Used for reads that race with scanning: an
// untracked id is its own base by definition.
func (s *DisjointSet) ParentOrThis(i int32) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || int(i) >= len(s.parent) {
		return i
	}
	return atomic.LoadInt32(&s.parent[i])
}

// FindBase returns the canonical base of i with single-pass path
// compression: the final base is written back to parent[i]. Concurrent
// callers may overwrite each other with different intermediate bases; both
// are valid at the moment of the store and converge on the next call.
func (s *DisjointSet) FindBase(i int32) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findBaseLocked(i)
}

func (s *DisjointSet) findBaseLocked(i int32) int32 {
	if i < 0 || int(i) >= len(s.parent) {
		return i
	}
	base := i
	for {
		p := atomic.LoadInt32(&s.parent[base])
		if p == base {
			break
		}
		base = p
	}
	if base != i {
		atomic.StoreInt32(&s.parent[i], base)
	}
	return base
}

// Cardinality returns the tree size rooted at base.
func (s *DisjointSet) Cardinality(base int32) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if base < 0 || int(base) >= len(s.card) {
		return 1
	}
	return atomic.LoadInt32(&s.card[base])
}

// JointBases unions the trees of two bases by size and returns the
// surviving base. Both arguments must already be bases.
func (s *DisjointSet) JointBases(a, b int32) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jointBasesLocked(a, b)
}

func (s *DisjointSet) jointBasesLocked(a, b int32) int32 {
	if a == b {
		return a
	}
	ca := atomic.LoadInt32(&s.card[a])
	cb := atomic.LoadInt32(&s.card[b])
	if ca < cb {
		a, b = b, a
		ca, cb = cb, ca
	}
	atomic.StoreInt32(&s.parent[b], a)
	atomic.StoreInt32(&s.card[a], ca+cb)
	return a
}

// JointObjects expands the set to cover both ids, then unions their bases.
func (s *DisjointSet) JointObjects(a, b int) (int32, error) {
	hi := a
	if b > hi {
		hi = b
	}
	if err := s.Expand(hi); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ba := s.findBaseLocked(int32(a))
	bb := s.findBaseLocked(int32(b))
	return s.jointBasesLocked(ba, bb), nil
}

// ResolveAllBases path-compresses every tracked id, fanning out over
// blocks of consecutive indices across the available CPUs.
func (s *DisjointSet) ResolveAllBases() {
	s.mu.RLock()
	n := len(s.parent)
	s.mu.RUnlock()
	if n == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for start := 0; start < n; start += resolveBlockSize {
		start := start
		g.Go(func() error {
			end := start + resolveBlockSize
			if end > n {
				end = n
			}
			s.mu.RLock()
			for i := start; i < end; i++ {
				s.findBaseLocked(int32(i))
			}
			s.mu.RUnlock()
			return nil
		})
	}
	g.Wait()
}

// Clear resets the set to empty.
func (s *DisjointSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parent = nil
	s.card = nil
}
