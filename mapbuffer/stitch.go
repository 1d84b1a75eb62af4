package mapbuffer

// Seam-wise label joining: when a new frame abuts a retained one (their
// edges touch with no gap), every pair of non-zero labels facing each
// other across the seam belongs to one object and is joined in the
// union-find.

// stitchSeams joins labels across every seam shared by old and new.
// Callers hold the buffer write lock.
func (b *MapBuffer) stitchSeams(old, next *Frame) error {
	or, nr := old.Rect(), next.Rect()

	// vertical seam: old's right column touching next's left column
	if or.MaxX+1 == nr.MinX {
		if err := b.stitchVertical(old, next, or.MaxX, nr.MinX, or, nr); err != nil {
			return err
		}
	}
	// vertical seam, other side
	if nr.MaxX+1 == or.MinX {
		if err := b.stitchVertical(next, old, nr.MaxX, or.MinX, nr, or); err != nil {
			return err
		}
	}
	// horizontal seam: old's bottom row touching next's top row
	if or.MaxY+1 == nr.MinY {
		if err := b.stitchHorizontal(old, next, or.MaxY, nr.MinY, or, nr); err != nil {
			return err
		}
	}
	if nr.MaxY+1 == or.MinY {
		if err := b.stitchHorizontal(next, old, nr.MaxY, or.MinY, nr, or); err != nil {
			return err
		}
	}
	return nil
}

func (b *MapBuffer) stitchVertical(left, right *Frame, leftX, rightX int, lr, rr Rect) error {
	y0 := lr.MinY
	if rr.MinY > y0 {
		y0 = rr.MinY
	}
	y1 := lr.MaxY
	if rr.MaxY < y1 {
		y1 = rr.MaxY
	}
	for y := y0; y <= y1; y++ {
		a := left.LabelGlobal(leftX, y)
		c := right.LabelGlobal(rightX, y)
		if a != 0 && c != 0 {
			if _, err := b.objectPairs.JointObjects(int(a), int(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *MapBuffer) stitchHorizontal(top, bottom *Frame, topY, bottomY int, tr, br Rect) error {
	x0 := tr.MinX
	if br.MinX > x0 {
		x0 = br.MinX
	}
	x1 := tr.MaxX
	if br.MaxX < x1 {
		x1 = br.MaxX
	}
	for x := x0; x <= x1; x++ {
		a := top.LabelGlobal(x, topY)
		c := bottom.LabelGlobal(x, bottomY)
		if a != 0 && c != 0 {
			if _, err := b.objectPairs.JointObjects(int(a), int(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

// covered reports whether any retained frame contains the global point.
// Callers hold at least the read lock.
func (b *MapBuffer) covered(x, y int) bool {
	for _, f := range b.frames {
		if f.Rect().Contains(x, y) {
			return true
		}
	}
	return false
}

// classifyObjects rebuilds the completed / boundary-with-outside label
// sets for the query area. An object is completed when none of its pixels
// lies on a frame edge adjacent to space not covered by any retained
// frame. Callers hold the write lock.
func (b *MapBuffer) classifyObjects(area Rect) {
	b.completed = NewLabelSet(int(b.nextLabel))
	b.boundary = NewLabelSet(int(b.nextLabel))

	seen := NewLabelSet(int(b.nextLabel))
	for _, f := range b.frames {
		fr := f.Rect().Intersect(area)
		if fr.Empty() {
			continue
		}
		r := f.Rect()
		// edge scan: a boundary pixel whose outward neighbour is
		// uncovered marks its base as touching outside
		for x := fr.MinX; x <= fr.MaxX; x++ {
			b.scanBoundaryPixel(f, x, r.MinY, x, r.MinY-1, seen)
			b.scanBoundaryPixel(f, x, r.MaxY, x, r.MaxY+1, seen)
		}
		for y := fr.MinY; y <= fr.MaxY; y++ {
			b.scanBoundaryPixel(f, r.MinX, y, r.MinX-1, y, seen)
			b.scanBoundaryPixel(f, r.MaxX, y, r.MaxX+1, y, seen)
		}
		// every base present in the area is a candidate
		for y := fr.MinY; y <= fr.MaxY; y++ {
			for x := fr.MinX; x <= fr.MaxX; x++ {
				raw := f.LabelGlobal(x, y)
				if raw == 0 && b.zeroIsBackground {
					continue
				}
				seen.Add(b.objectPairs.ParentOrThis(raw))
			}
		}
	}

	// completed = seen \ boundary
	for i := int32(0); int(i) < int(b.nextLabel); i++ {
		if seen.Contains(i) && !b.boundary.Contains(i) {
			b.completed.Add(i)
		}
	}
}

// scanBoundaryPixel marks the base at (x, y) of frame f as
// boundary-with-outside when the outward neighbour (nx, ny) is uncovered.
func (b *MapBuffer) scanBoundaryPixel(f *Frame, x, y, nx, ny int, seen *LabelSet) {
	if !f.Rect().Contains(x, y) {
		return
	}
	if b.covered(nx, ny) {
		return
	}
	raw := f.LabelGlobal(x, y)
	if raw == 0 && b.zeroIsBackground {
		return
	}
	base := b.objectPairs.ParentOrThis(raw)
	b.boundary.Add(base)
	seen.Add(base)
}

// CompletedObjects returns the base set classified as completed for the
// query area.
func (b *MapBuffer) CompletedObjects(area Rect) *LabelSet {
	b.objectPairs.ResolveAllBases()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.classifyObjects(area)
	return b.completed
}

// BoundaryObjects returns the base set touching external space for the
// query area.
func (b *MapBuffer) BoundaryObjects(area Rect) *LabelSet {
	b.objectPairs.ResolveAllBases()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.classifyObjects(area)
	return b.boundary
}
