package mapbuffer

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RetainResult is the output of reindex-and-retain: a composed frame plus
// the crop actually applied.
type RetainResult struct {
	Frame *Frame
	Crop  Rect
}

// ReindexAndRetainCompleted composes a single label matrix covering
// largeArea in which only completed objects survive, mapped to their
// canonical bases. A pixel becomes zero when it lies outside every
// retained frame, when its base is not completed (or touches outside
// space), or when it lies outside smallFrameArea and its object does not
// extend into smallFrameArea. Scan lines are processed in parallel; with
// autoCrop the result is cut to the non-zero content.
func (b *MapBuffer) ReindexAndRetainCompleted(largeArea, smallFrameArea Rect, autoCrop bool) (*RetainResult, error) {
	b.objectPairs.ResolveAllBases()

	b.mu.Lock()
	b.classifyObjects(largeArea)
	completed := b.completed
	boundary := b.boundary
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	// bases of objects reaching into the small (current-frame) area keep
	// their out-of-area pixels
	smallBases := NewLabelSet(int(b.nextLabel))
	small := smallFrameArea.Intersect(largeArea)
	if !small.Empty() {
		for y := small.MinY; y <= small.MaxY; y++ {
			for x := small.MinX; x <= small.MaxX; x++ {
				raw := b.topLabelAt(x, y)
				if raw == 0 && b.zeroIsBackground {
					continue
				}
				smallBases.Add(b.objectPairs.ParentOrThis(raw))
			}
		}
	}

	dimX, dimY := largeArea.DimX(), largeArea.DimY()
	out := make([]int32, dimX*dimY)

	// per-line non-zero extents for the auto-crop
	lineMin := make([]int, dimY)
	lineMax := make([]int, dimY)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	const lineBlock = 64
	for blockStart := 0; blockStart < dimY; blockStart += lineBlock {
		blockStart := blockStart
		g.Go(func() error {
			blockEnd := blockStart + lineBlock
			if blockEnd > dimY {
				blockEnd = dimY
			}
			for line := blockStart; line < blockEnd; line++ {
				y := largeArea.MinY + line
				minX, maxX := -1, -1
				row := out[line*dimX : (line+1)*dimX]
				for i := 0; i < dimX; i++ {
					x := largeArea.MinX + i
					raw := b.topLabelAt(x, y)
					if raw == 0 {
						continue
					}
					base := b.objectPairs.ParentOrThis(raw)
					if !completed.Contains(base) || boundary.Contains(base) {
						continue
					}
					if !small.Contains(x, y) && !smallBases.Contains(base) {
						continue
					}
					row[i] = base
					if minX < 0 {
						minX = i
					}
					maxX = i
				}
				lineMin[line] = minX
				lineMax[line] = maxX
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	crop := largeArea
	if autoCrop || b.jointingAutoCrop {
		crop = cropExtent(largeArea, lineMin, lineMax)
		if crop.Empty() {
			return &RetainResult{
				Frame: NewFrame(largeArea.MinX, largeArea.MinY, 0, 0, nil),
				Crop:  crop,
			}, nil
		}
		if crop != largeArea {
			out = cropMatrix(out, largeArea, crop)
			dimX, dimY = crop.DimX(), crop.DimY()
		}
	}
	return &RetainResult{
		Frame: NewFrame(crop.MinX, crop.MinY, dimX, dimY, out),
		Crop:  crop,
	}, nil
}

func cropExtent(area Rect, lineMin, lineMax []int) Rect {
	crop := Rect{MinX: area.MaxX + 1, MinY: area.MaxY + 1, MaxX: area.MinX - 1, MaxY: area.MinY - 1}
	for line := range lineMin {
		if lineMin[line] < 0 {
			continue
		}
		y := area.MinY + line
		if y < crop.MinY {
			crop.MinY = y
		}
		if y > crop.MaxY {
			crop.MaxY = y
		}
		if x := area.MinX + lineMin[line]; x < crop.MinX {
			crop.MinX = x
		}
		if x := area.MinX + lineMax[line]; x > crop.MaxX {
			crop.MaxX = x
		}
	}
	return crop
}

func cropMatrix(src []int32, from, to Rect) []int32 {
	out := make([]int32, to.DimX()*to.DimY())
	for y := 0; y < to.DimY(); y++ {
		srcOff := (to.MinY-from.MinY+y)*from.DimX() + (to.MinX - from.MinX)
		copy(out[y*to.DimX():(y+1)*to.DimX()], src[srcOff:srcOff+to.DimX()])
	}
	return out
}
