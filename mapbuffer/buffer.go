package mapbuffer

import (
	"fmt"
	"sync"

	"github.com/gridscan/pyratiff"
)

// A MapBuffer is a bounded in-memory cache of labeled frames: an eviction
// ring of at most capacity frames, the union rectangle of the retained
// positions, and the object-pair union-find that stitches labels across
// frame seams.
type MapBuffer struct {
	mu sync.RWMutex

	frames   []*Frame
	capacity int

	containing Rect
	hasRect    bool

	objectPairs *DisjointSet
	completed   *LabelSet
	boundary    *LabelSet

	nextLabel int32

	stitchingLabels   bool
	autoReindexLabels bool
	zeroIsBackground  bool
	jointingAutoCrop  bool
}

// BufferOption configures a MapBuffer.
type BufferOption func(*MapBuffer)

// Capacity bounds the retained frame count; the oldest frame is evicted
// first. Minimum 1.
func Capacity(n int) BufferOption {
	return func(b *MapBuffer) {
		if n >= 1 {
			b.capacity = n
		}
	}
}

// StitchingLabels joins object labels across abutting frame seams.
func StitchingLabels(enabled bool) BufferOption {
	return func(b *MapBuffer) { b.stitchingLabels = enabled }
}

// AutoReindexLabels offsets every incoming frame's non-zero labels by the
// running label counter so labels stay unique across frames.
func AutoReindexLabels(enabled bool) BufferOption {
	return func(b *MapBuffer) { b.autoReindexLabels = enabled }
}

// ZeroIsBackground treats label 0 as background rather than an object.
func ZeroIsBackground(enabled bool) BufferOption {
	return func(b *MapBuffer) { b.zeroIsBackground = enabled }
}

// JointingAutoCrop crops reindex-and-retain results to the non-zero
// content by default.
func JointingAutoCrop(enabled bool) BufferOption {
	return func(b *MapBuffer) { b.jointingAutoCrop = enabled }
}

// NewMapBuffer returns an empty buffer.
func NewMapBuffer(options ...BufferOption) *MapBuffer {
	b := &MapBuffer{
		capacity:         1,
		objectPairs:      NewDisjointSet(),
		completed:        NewLabelSet(0),
		boundary:         NewLabelSet(0),
		zeroIsBackground: true,
	}
	b.nextLabel = b.firstLabel()
	for _, o := range options {
		o(b)
	}
	return b
}

func (b *MapBuffer) firstLabel() int32 {
	if b.zeroIsBackground {
		return 1
	}
	return 0
}

// Capacity returns the frame bound.
func (b *MapBuffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capacity
}

// SetCapacity adjusts the bound, evicting oldest frames if needed.
func (b *MapBuffer) SetCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: capacity %d", pyratiff.ErrInvalidArgument, n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = n
	for len(b.frames) > b.capacity {
		b.frames = b.frames[1:]
	}
	b.recomputeRectLocked()
	return nil
}

// NumberOfFrames returns the retained count.
func (b *MapBuffer) NumberOfFrames() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// ContainingRectangle returns the union of the retained frame positions.
func (b *MapBuffer) ContainingRectangle() (Rect, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.containing, b.hasRect
}

// ObjectPairs exposes the stitching union-find.
func (b *MapBuffer) ObjectPairs() *DisjointSet { return b.objectPairs }

// NextLabel returns the running label counter.
func (b *MapBuffer) NextLabel() int32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextLabel
}

// ObjectCount returns the number of distinct raw labels handed out.
func (b *MapBuffer) ObjectCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := int(b.nextLabel)
	if b.zeroIsBackground {
		n--
	}
	return n
}

func (b *MapBuffer) recomputeRectLocked() {
	b.hasRect = false
	b.containing = Rect{}
	for _, f := range b.frames {
		if b.hasRect {
			b.containing = b.containing.Union(f.Rect())
		} else {
			b.containing = f.Rect()
			b.hasRect = true
		}
	}
}

// Add inserts a frame: evicts the oldest past capacity, refreshes the
// containing rectangle, optionally offsets the frame's labels by the
// running counter, and stitches the new frame's seams against every
// retained neighbour.
func (b *MapBuffer) Add(f *Frame) error {
	if f == nil || f.DimX <= 0 || f.DimY <= 0 {
		return fmt.Errorf("%w: empty frame", pyratiff.ErrInvalidArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.autoReindexLabels && f.Stitchable() {
		offset := b.nextLabel - b.firstLabel()
		var maxv int32
		for i, v := range f.Ints {
			if v != 0 {
				f.Ints[i] = v + offset
				if f.Ints[i] > maxv {
					maxv = f.Ints[i]
				}
			}
		}
		if maxv >= b.nextLabel {
			b.nextLabel = maxv + 1
		}
	} else if f.Stitchable() {
		if maxv := f.MaxLabel(); maxv >= b.nextLabel {
			b.nextLabel = maxv + 1
		}
	}
	if int(b.nextLabel) >= MaxObjects {
		return fmt.Errorf("%w: label counter reached %d", pyratiff.ErrResourceExhausted, b.nextLabel)
	}

	if b.stitchingLabels && f.Stitchable() {
		for _, old := range b.frames {
			if !old.Stitchable() {
				continue
			}
			if err := b.stitchSeams(old, f); err != nil {
				return err
			}
		}
	}

	b.frames = append(b.frames, f)
	if len(b.frames) > b.capacity {
		b.frames = b.frames[1:]
	}
	b.recomputeRectLocked()
	return nil
}

// Frames returns the retained frames, oldest first.
func (b *MapBuffer) Frames() []*Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// topLabelAt returns the raw label of the top-most (most recently added)
// retained frame covering the global point, or 0.
func (b *MapBuffer) topLabelAt(x, y int) int32 {
	for i := len(b.frames) - 1; i >= 0; i-- {
		f := b.frames[i]
		if f.Rect().Contains(x, y) {
			return f.LabelGlobal(x, y)
		}
	}
	return 0
}

// Clear empties the ring; with resetIndexing the label counter restarts
// and the union-find is dropped.
func (b *MapBuffer) Clear(resetIndexing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.hasRect = false
	b.containing = Rect{}
	if resetIndexing {
		b.nextLabel = b.firstLabel()
		b.objectPairs.Clear()
		b.completed.Clear()
		b.boundary.Clear()
	}
}

// ReadMatrix composes a plain view of the query area: each pixel carries
// the raw label of the top-most retained frame containing it.
func (b *MapBuffer) ReadMatrix(area Rect) *Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := NewFrame(area.MinX, area.MinY, area.DimX(), area.DimY(), make([]int32, area.DimX()*area.DimY()))
	for y := area.MinY; y <= area.MaxY; y++ {
		for x := area.MinX; x <= area.MaxX; x++ {
			out.SetLabel(x-area.MinX, y-area.MinY, b.topLabelAt(x, y))
		}
	}
	return out
}

// ReadMatrixReindexedByObjectPairs composes the query area with every raw
// label mapped to its canonical base. With resolveFirst all bases are
// path-compressed in parallel before composition.
func (b *MapBuffer) ReadMatrixReindexedByObjectPairs(area Rect, resolveFirst bool) *Frame {
	if resolveFirst {
		b.objectPairs.ResolveAllBases()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := NewFrame(area.MinX, area.MinY, area.DimX(), area.DimY(), make([]int32, area.DimX()*area.DimY()))
	for y := area.MinY; y <= area.MaxY; y++ {
		for x := area.MinX; x <= area.MaxX; x++ {
			raw := b.topLabelAt(x, y)
			if raw != 0 {
				raw = b.objectPairs.ParentOrThis(raw)
			}
			out.SetLabel(x-area.MinX, y-area.MinY, raw)
		}
	}
	return out
}
