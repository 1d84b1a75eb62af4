package pyratiff

// A Tile is one rectangular piece of an IFD image: either a real tile or,
// for strip layout, one strip. It owns at most one decoded and one encoded
// representation of its pixels plus the file range the encoded bytes were
// read from or written to.
type Tile struct {
	ifd *IFD

	plane          int
	xIndex, yIndex int

	// pixel rectangle inside the image; w/h are the full grid cell size
	// except for bottom/right strips, which are cropped to image extent
	x, y, w, h int

	decoded []byte
	encoded []byte

	offset uint64
	length uint64
	stored bool

	// separated is set when decoded holds channel-separated samples that
	// must be interleaved during encode
	separated bool

	// unset tracks the sub-rectangles never written to. A fresh tile is
	// fully unset; UpdateSamples carves written areas out.
	unset []tileRect
}

type tileRect struct {
	x, y, w, h int
}

func (r tileRect) empty() bool { return r.w <= 0 || r.h <= 0 }

// subtract returns r minus s as up to four disjoint rectangles.
func (r tileRect) subtract(s tileRect) []tileRect {
	ix0 := max(r.x, s.x)
	iy0 := max(r.y, s.y)
	ix1 := min(r.x+r.w, s.x+s.w)
	iy1 := min(r.y+r.h, s.y+s.h)
	if ix0 >= ix1 || iy0 >= iy1 {
		return []tileRect{r}
	}
	var out []tileRect
	if iy0 > r.y {
		out = append(out, tileRect{r.x, r.y, r.w, iy0 - r.y})
	}
	if iy1 < r.y+r.h {
		out = append(out, tileRect{r.x, iy1, r.w, r.y + r.h - iy1})
	}
	if ix0 > r.x {
		out = append(out, tileRect{r.x, iy0, ix0 - r.x, iy1 - iy0})
	}
	if ix1 < r.x+r.w {
		out = append(out, tileRect{ix1, iy0, r.x + r.w - ix1, iy1 - iy0})
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Rect returns the tile's pixel rectangle (x, y, w, h) inside the image.
func (t *Tile) Rect() (x, y, w, h int) { return t.x, t.y, t.w, t.h }

func (t *Tile) Plane() int { return t.plane }

func (t *Tile) Index() (xIndex, yIndex int) { return t.xIndex, t.yIndex }

func (t *Tile) HasDecoded() bool { return t.decoded != nil }
func (t *Tile) HasEncoded() bool { return t.encoded != nil }

// Stored reports whether the encoded bytes have a file range.
func (t *Tile) Stored() bool { return t.stored }

// FileRange returns the (offset, length) of the stored encoded bytes.
func (t *Tile) FileRange() (offset, length uint64) { return t.offset, t.length }

func (t *Tile) setFileRange(offset, length uint64) {
	t.offset, t.length = offset, length
	t.stored = true
}

// Empty reports whether no pixel of the tile has ever been written.
func (t *Tile) Empty() bool {
	return len(t.unset) == 1 && t.unset[0] == tileRect{0, 0, t.w, t.h}
}

// Completed reports whether every pixel of the tile has been written.
func (t *Tile) Completed() bool { return len(t.unset) == 0 }

// SamplesSeparated reports whether the decoded buffer holds per-channel
// planes that must be interleaved on encode.
func (t *Tile) SamplesSeparated() bool { return t.separated }

// Decoded returns the decoded pixel buffer, or nil.
func (t *Tile) Decoded() []byte { return t.decoded }

// Encoded returns the encoded byte stream, or nil.
func (t *Tile) Encoded() []byte { return t.encoded }

// SetDecoded replaces the decoded buffer and invalidates the encoded one.
func (t *Tile) SetDecoded(data []byte) {
	t.decoded = data
	t.encoded = nil
	t.stored = false
}

// SetEncoded replaces the encoded buffer.
func (t *Tile) SetEncoded(data []byte) {
	t.encoded = data
}

// FreeEncoded drops the encoded bytes, keeping the file range if stored.
func (t *Tile) FreeEncoded() { t.encoded = nil }

// FreeDecoded drops the decoded bytes.
func (t *Tile) FreeDecoded() { t.decoded = nil }

// channelsInTile returns the channel count held by this tile's buffers:
// one for separate planar configuration, all for chunky.
func (t *Tile) channelsInTile() int {
	if t.ifd.IsPlanarSeparated() {
		return 1
	}
	return t.ifd.SamplesPerPixel()
}

// reduceUnset removes the written rectangle (in tile-local coordinates)
// from the unset region.
func (t *Tile) reduceUnset(x, y, w, h int) {
	if len(t.unset) == 0 {
		return
	}
	written := tileRect{x, y, w, h}
	var next []tileRect
	for _, r := range t.unset {
		for _, rest := range r.subtract(written) {
			if !rest.empty() {
				next = append(next, rest)
			}
		}
	}
	t.unset = next
}

// markFullyWritten clears the unset region entirely.
func (t *Tile) markFullyWritten() { t.unset = nil }

// UnsetRegions returns a copy of the not-yet-written rectangles in
// tile-local (x, y, w, h) coordinates.
func (t *Tile) UnsetRegions() [][4]int {
	out := make([][4]int, len(t.unset))
	for i, r := range t.unset {
		out[i] = [4]int{r.x, r.y, r.w, r.h}
	}
	return out
}
