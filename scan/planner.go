package scan

import (
	"fmt"
)

// ROI is one inclusive region of interest in level pixels.
type ROI struct {
	X1, Y1, X2, Y2 int64
}

func (r ROI) DimX() int64 { return r.X2 - r.X1 + 1 }
func (r ROI) DimY() int64 { return r.Y2 - r.Y1 + 1 }

func (r ROI) Empty() bool { return r.DimX() <= 0 || r.DimY() <= 0 }

// intersects reports common pixels. Rectangles sharing only a boundary
// line with no common pixel do not intersect.
func (r ROI) intersects(o ROI) bool {
	return r.X1 <= o.X2 && o.X1 <= r.X2 && r.Y1 <= o.Y2 && o.Y1 <= r.Y2
}

// ValidateNonIntersecting rejects ROI lists with pairwise common pixels.
// Two rectangles abutting edge-to-edge (no shared pixel) pass.
func ValidateNonIntersecting(rois []ROI) error {
	for i := range rois {
		for j := i + 1; j < len(rois); j++ {
			if rois[i].intersects(rois[j]) {
				return fmt.Errorf("rectangles %d and %d intersect", i, j)
			}
		}
	}
	return nil
}

// FramePlan is one planned frame readout.
type FramePlan struct {
	X, Y, W, H int64

	RoiIndex   int
	XIndex     int
	YIndex     int
	FrameIndex int

	FramesPerSeries int

	FirstInRoi     bool
	LastInRoi      bool
	FirstInPyramid bool
	LastInPyramid  bool
	LastOverall    bool
}

// roiGrid is the frame decomposition of one ROI.
type roiGrid struct {
	roi          ROI
	frameW       int64
	frameH       int64
	nCols, nRows int
	byRows       bool
	snake        bool
}

func buildGrid(roi ROI, frameW, frameH int64, seq Sequence, equalize bool) roiGrid {
	g := roiGrid{roi: roi, frameW: frameW, frameH: frameH}
	if g.frameW > roi.DimX() {
		g.frameW = roi.DimX()
	}
	if g.frameH > roi.DimY() {
		g.frameH = roi.DimY()
	}
	g.nCols = int((roi.DimX() + g.frameW - 1) / g.frameW)
	g.nRows = int((roi.DimY() + g.frameH - 1) / g.frameH)
	if equalize {
		// balance the last cell: shrink the frame to the ceiling of an
		// equal split, keeping the cell count
		g.frameW = (roi.DimX() + int64(g.nCols) - 1) / int64(g.nCols)
		g.frameH = (roi.DimY() + int64(g.nRows) - 1) / int64(g.nRows)
	}
	g.byRows = seq.resolveOrientation(roi.DimX(), roi.DimY())
	g.snake = seq.snake()
	return g
}

func (g roiGrid) frames() int { return g.nCols * g.nRows }

// framesPerSeries is the length of one scanning series: a row for row
// orientation, a column otherwise.
func (g roiGrid) framesPerSeries() int {
	if g.byRows {
		return g.nCols
	}
	return g.nRows
}

// cell returns the grid indices of the k-th frame under the grid's
// orientation and snake rule.
func (g roiGrid) cell(k int) (xIdx, yIdx int) {
	if g.byRows {
		yIdx = k / g.nCols
		xIdx = k % g.nCols
		if g.snake && yIdx%2 == 1 {
			xIdx = g.nCols - 1 - xIdx
		}
		return xIdx, yIdx
	}
	xIdx = k / g.nRows
	yIdx = k % g.nRows
	if g.snake && xIdx%2 == 1 {
		yIdx = g.nRows - 1 - yIdx
	}
	return xIdx, yIdx
}

// rect returns the pixel rectangle of the grid cell, cropped to the ROI.
func (g roiGrid) rect(xIdx, yIdx int) (x, y, w, h int64) {
	x = g.roi.X1 + int64(xIdx)*g.frameW
	y = g.roi.Y1 + int64(yIdx)*g.frameH
	w = g.frameW
	h = g.frameH
	if x+w-1 > g.roi.X2 {
		w = g.roi.X2 - x + 1
	}
	if y+h-1 > g.roi.Y2 {
		h = g.roi.Y2 - y + 1
	}
	return x, y, w, h
}

// A Planner lazily enumerates the frames of all ROIs of one pyramid in
// scanning order. It is a pull-style sequence: each Next call yields one
// frame, and Cancel stops the enumeration between yields.
type Planner struct {
	grids []roiGrid

	total       int
	lastPyramid bool

	roiIdx    int
	inRoi     int
	produced  int
	cancelled bool
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// LastPyramid marks this planner's final frame as the last overall.
func LastPyramid(last bool) PlannerOption {
	return func(p *Planner) { p.lastPyramid = last }
}

// NewPlanner builds the frame enumeration for the given ROIs. Empty ROIs
// are dropped.
func NewPlanner(rois []ROI, frameW, frameH int64, seq Sequence, equalize bool, options ...PlannerOption) (*Planner, error) {
	if frameW < 1 || frameH < 1 {
		return nil, fmt.Errorf("frame size %dx%d must be positive", frameW, frameH)
	}
	p := &Planner{}
	for _, roi := range rois {
		if roi.Empty() {
			continue
		}
		g := buildGrid(roi, frameW, frameH, seq, equalize)
		p.grids = append(p.grids, g)
		p.total += g.frames()
	}
	for _, o := range options {
		o(p)
	}
	return p, nil
}

// TotalFrames returns the full enumeration length.
func (p *Planner) TotalFrames() int { return p.total }

// NumberOfROIs returns the retained ROI count.
func (p *Planner) NumberOfROIs() int { return len(p.grids) }

// Cancel stops the enumeration; subsequent Next calls return false.
func (p *Planner) Cancel() { p.cancelled = true }

// Next yields the next planned frame. The second result is false when the
// enumeration is exhausted or cancelled.
func (p *Planner) Next() (FramePlan, bool) {
	if p.cancelled || p.roiIdx >= len(p.grids) {
		return FramePlan{}, false
	}
	g := p.grids[p.roiIdx]
	xIdx, yIdx := g.cell(p.inRoi)
	x, y, w, h := g.rect(xIdx, yIdx)
	plan := FramePlan{
		X: x, Y: y, W: w, H: h,
		RoiIndex:        p.roiIdx,
		XIndex:          xIdx,
		YIndex:          yIdx,
		FrameIndex:      p.produced,
		FramesPerSeries: g.framesPerSeries(),
		FirstInRoi:      p.inRoi == 0,
		LastInRoi:       p.inRoi == g.frames()-1,
		FirstInPyramid:  p.produced == 0,
		LastInPyramid:   p.produced == p.total-1,
	}
	plan.LastOverall = plan.LastInPyramid && p.lastPyramid
	p.inRoi++
	p.produced++
	if p.inRoi >= g.frames() {
		p.inRoi = 0
		p.roiIdx++
	}
	return plan, true
}

// RecommendedFramesInBuffer suggests a map-buffer capacity: one full
// series plus the neighbour frame the stitcher joins against.
func (p *Planner) RecommendedFramesInBuffer() int {
	maxSeries := 0
	for _, g := range p.grids {
		if s := g.framesPerSeries(); s > maxSeries {
			maxSeries = s
		}
	}
	return maxSeries + 1
}
