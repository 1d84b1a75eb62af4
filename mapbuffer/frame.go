package mapbuffer

// A Rect is an inclusive pixel rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// RectAt builds a rectangle from origin and size.
func RectAt(x, y, w, h int) Rect {
	return Rect{MinX: x, MinY: y, MaxX: x + w - 1, MaxY: y + h - 1}
}

func (r Rect) Empty() bool { return r.MaxX < r.MinX || r.MaxY < r.MinY }

func (r Rect) DimX() int { return r.MaxX - r.MinX + 1 }
func (r Rect) DimY() int { return r.MaxY - r.MinY + 1 }

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Union returns the minimal rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	if o.MinX < r.MinX {
		r.MinX = o.MinX
	}
	if o.MinY < r.MinY {
		r.MinY = o.MinY
	}
	if o.MaxX > r.MaxX {
		r.MaxX = o.MaxX
	}
	if o.MaxY > r.MaxY {
		r.MaxY = o.MaxY
	}
	return r
}

// Intersect returns the common rectangle of r and o (possibly empty).
func (r Rect) Intersect(o Rect) Rect {
	if o.MinX > r.MinX {
		r.MinX = o.MinX
	}
	if o.MinY > r.MinY {
		r.MinY = o.MinY
	}
	if o.MaxX < r.MaxX {
		r.MaxX = o.MaxX
	}
	if o.MaxY < r.MaxY {
		r.MaxY = o.MaxY
	}
	return r
}

// A Frame is one rectangular readout of labeled pixels positioned in the
// buffer's global coordinate space. Ints is the fast path: directly
// addressable 32-bit labels in row-major order. Frames produced by exotic
// matrix kinds supply At instead and take the generic (per-element) path;
// such frames pass through the buffer but cannot be stitched in place.
type Frame struct {
	X, Y       int
	DimX, DimY int

	Ints []int32
	At   func(x, y int) int32
}

// NewFrame wraps a row-major int32 label matrix.
func NewFrame(x, y, dimX, dimY int, labels []int32) *Frame {
	return &Frame{X: x, Y: y, DimX: dimX, DimY: dimY, Ints: labels}
}

// Rect returns the frame's position rectangle.
func (f *Frame) Rect() Rect {
	return RectAt(f.X, f.Y, f.DimX, f.DimY)
}

// Stitchable reports whether the frame's labels are directly addressable.
func (f *Frame) Stitchable() bool { return f.Ints != nil }

// Label returns the label at frame-local (x, y).
func (f *Frame) Label(x, y int) int32 {
	if f.Ints != nil {
		return f.Ints[y*f.DimX+x]
	}
	if f.At != nil {
		return f.At(x, y)
	}
	return 0
}

// SetLabel stores a label at frame-local (x, y); only for addressable
// frames.
func (f *Frame) SetLabel(x, y int, v int32) {
	if f.Ints != nil {
		f.Ints[y*f.DimX+x] = v
	}
}

// LabelGlobal returns the label at buffer-global (x, y); the point must
// lie inside the frame.
func (f *Frame) LabelGlobal(x, y int) int32 {
	return f.Label(x-f.X, y-f.Y)
}

// MaxLabel scans for the largest label in the frame.
func (f *Frame) MaxLabel() int32 {
	var maxv int32
	if f.Ints != nil {
		for _, v := range f.Ints {
			if v > maxv {
				maxv = v
			}
		}
		return maxv
	}
	for y := 0; y < f.DimY; y++ {
		for x := 0; x < f.DimX; x++ {
			if v := f.Label(x, y); v > maxv {
				maxv = v
			}
		}
	}
	return maxv
}
