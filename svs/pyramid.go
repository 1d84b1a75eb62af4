package svs

import (
	"math"

	"github.com/gridscan/pyratiff"
)

// MinPyramidLevelSide stops virtual level synthesis: no published level has
// a side shorter than this.
const MinPyramidLevelSide = 64

// Level describes one published pyramid resolution.
type Level struct {
	BandCount int
	DimX      int
	DimY      int

	// ActualIFD is the index of the stored IFD serving this level, or -1
	// for a virtual level (served by downscaling ScaleFrom).
	ActualIFD int

	// ScaleFrom is the index into Pyramid.Stored of the nearest stored
	// level a virtual level is computed from; -1 for stored levels.
	ScaleFrom int

	// Scale is the integer downscale factor from ScaleFrom.
	Scale int
}

// Pyramid is the resolved level structure of one SVS file.
type Pyramid struct {
	Levels []Level

	// Compression is the published inter-level factor; ActualCompression
	// the factor between physically stored levels. They differ when
	// virtual levels are synthesized.
	Compression       int
	ActualCompression int

	// StoredIFDs lists the IFD indices serving stored levels, finest
	// first.
	StoredIFDs []int

	// Stored keeps the stored level descriptors when virtual levels are
	// published; Level.ScaleFrom indexes into it.
	Stored []Level
}

// assemblePyramid derives the stored level chain from the non-special
// IFDs: the actual compression is fixed on the first transition, and the
// chain stops at the first IFD whose dimensions do not continue the
// geometric sequence (remaining IFDs are skipped even if not special).
func assemblePyramid(ifds []*pyratiff.IFD, cls Classification) (Pyramid, error) {
	p := Pyramid{ActualCompression: 1, Compression: 1}
	if len(ifds) == 0 {
		return p, nil
	}
	w0, err := ifds[0].ImageDimX()
	if err != nil {
		return p, err
	}
	h0, err := ifds[0].ImageDimY()
	if err != nil {
		return p, err
	}
	bands := ifds[0].SamplesPerPixel()
	p.StoredIFDs = []int{0}
	p.Levels = []Level{{BandCount: bands, DimX: w0, DimY: h0, ActualIFD: 0, ScaleFrom: -1}}

	prevW, prevH := w0, h0
	for i := 1; i < len(ifds); i++ {
		if cls.Special(i) {
			continue
		}
		w, err := ifds[i].ImageDimX()
		if err != nil {
			break
		}
		h, err := ifds[i].ImageDimY()
		if err != nil {
			break
		}
		if w <= 0 || h <= 0 || w > prevW || h > prevH {
			break
		}
		if p.ActualCompression == 1 {
			f := math.Max(float64(prevW)/float64(w), float64(prevH)/float64(h))
			p.ActualCompression = int(math.Round(f))
			if p.ActualCompression < 2 {
				p.ActualCompression = 1
				break
			}
		}
		expectW := prevW / p.ActualCompression
		expectH := prevH / p.ActualCompression
		if absInt(w-expectW) > 1 || absInt(h-expectH) > 1 {
			break
		}
		p.StoredIFDs = append(p.StoredIFDs, i)
		p.Levels = append(p.Levels, Level{BandCount: bands, DimX: w, DimY: h, ActualIFD: i, ScaleFrom: -1})
		prevW, prevH = w, h
	}
	if p.ActualCompression > 1 {
		p.Compression = p.ActualCompression
	}
	return p, nil
}

// synthesizeVirtualLevels republishes the pyramid with compression factor
// 2, one level per halving of level 0 until a side would drop under
// MinPyramidLevelSide. Stored levels whose size matches a halving serve it
// directly; the rest are virtual, served by box-average downscale of the
// nearest finer stored level.
func (p *Pyramid) synthesizeVirtualLevels() {
	if len(p.Levels) == 0 {
		return
	}
	stored := p.Levels
	w, h := stored[0].DimX, stored[0].DimY
	bands := stored[0].BandCount
	var levels []Level
	for factor := 1; min(w, h) >= MinPyramidLevelSide; factor *= 2 {
		lvl := Level{BandCount: bands, DimX: w, DimY: h, ActualIFD: -1, ScaleFrom: -1}
		for si := len(stored) - 1; si >= 0; si-- {
			// nearest stored level at least as fine as this halving
			if stored[si].DimX >= w {
				if stored[si].DimX == w || absInt(stored[si].DimX-w) <= 1 {
					lvl.ActualIFD = stored[si].ActualIFD
				} else {
					lvl.ScaleFrom = si
					lvl.Scale = stored[si].DimX / w
				}
				break
			}
		}
		levels = append(levels, lvl)
		w, h = w/2, h/2
	}
	p.Stored = stored
	p.Levels = levels
	p.Compression = 2
}

// canSynthesize reports whether the stored chain admits factor-2 virtual
// levels: the actual compression must be a power of two.
func (p *Pyramid) canSynthesize() bool {
	c := p.ActualCompression
	return c >= 2 && c&(c-1) == 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
