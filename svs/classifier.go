// Package svs implements a multi-resolution pyramid source over the Aperio
// SVS dialect of TIFF: special-image classification, virtual pyramid
// levels, and whole-slide composition.
package svs

import (
	"github.com/gridscan/pyratiff"
)

// SpecialKind identifies an auxiliary (non-pyramid) image in an SVS file.
type SpecialKind int

const (
	KindNone SpecialKind = iota
	KindWholeSlide
	KindThumbnail
	KindLabel
	KindMacro
	KindCustom1
	KindCustom2
	KindCustom3
	KindCustom4
	KindCustom5
)

func (k SpecialKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindWholeSlide:
		return "whole-slide"
	case KindThumbnail:
		return "thumbnail"
	case KindLabel:
		return "label"
	case KindMacro:
		return "macro"
	case KindCustom1, KindCustom2, KindCustom3, KindCustom4, KindCustom5:
		return "custom"
	}
	return "unknown"
}

// ParseSpecialKind resolves a configuration string to a kind.
func ParseSpecialKind(s string) (SpecialKind, bool) {
	switch s {
	case "WHOLE_SLIDE", "whole-slide", "whole_slide":
		return KindWholeSlide, true
	case "THUMBNAIL", "thumbnail":
		return KindThumbnail, true
	case "LABEL", "label":
		return KindLabel, true
	case "MACRO", "macro":
		return KindMacro, true
	case "CUSTOM_1", "custom1":
		return KindCustom1, true
	case "CUSTOM_2", "custom2":
		return KindCustom2, true
	case "CUSTOM_3", "custom3":
		return KindCustom3, true
	case "CUSTOM_4", "custom4":
		return KindCustom4, true
	case "CUSTOM_5", "custom5":
		return KindCustom5, true
	}
	return KindNone, false
}

// macroAspect is the width/height ratio of a standard 75x26 mm slide; an
// auxiliary image close to it is almost certainly the macro photograph.
// The suitability of this constant outside medical slide scanners is an
// open question inherited from the SVS dialect itself.
const (
	macroAspect          = 75000.0 / 26000.0
	macroAspectTolerance = 0.2
	smallImagePixelLimit = 2048 * 2048
)

// Classification assigns a SpecialKind to each auxiliary IFD index.
type Classification struct {
	Kinds map[int]SpecialKind

	Thumbnail int
	Label     int
	Macro     int
	Customs   []int
}

// Special reports whether IFD #index was classified as an auxiliary image.
func (c Classification) Special(index int) bool {
	_, ok := c.Kinds[index]
	return ok
}

// IndexOf returns the IFD index classified as kind, or -1.
func (c Classification) IndexOf(kind SpecialKind) int {
	for i, k := range c.Kinds {
		if k == kind {
			return i
		}
	}
	return -1
}

// isSmall reports the heuristic "auxiliary image" shape: strip layout (no
// tile offsets) and under the pixel limit.
func isSmall(ifd *pyratiff.IFD) bool {
	if ifd.IsTiled() {
		return false
	}
	w, err := ifd.ImageDimX()
	if err != nil {
		return false
	}
	h, err := ifd.ImageDimY()
	if err != nil {
		return false
	}
	return w*h < smallImagePixelLimit
}

func aspect(ifd *pyratiff.IFD) float64 {
	w, _ := ifd.ImageDimX()
	h, _ := ifd.ImageDimY()
	if h == 0 {
		return 0
	}
	if w < h {
		w, h = h, w
	}
	return float64(w) / float64(h)
}

func aspectNearMacro(a float64) bool {
	return a > macroAspect*(1-macroAspectTolerance) && a < macroAspect*(1+macroAspectTolerance)
}

func area(ifd *pyratiff.IFD) int {
	w, _ := ifd.ImageDimX()
	h, _ := ifd.ImageDimY()
	return w * h
}

// Classify identifies thumbnail, label, macro and custom images among the
// IFDs of an SVS-style file. With explicitCompression the label/macro
// ambiguity is resolved by the (LZW, JPEG) compression pair the Aperio
// writers produce; otherwise the macro-slide aspect ratio and finally the
// larger area decide.
func Classify(ifds []*pyratiff.IFD, explicitCompression bool) Classification {
	c := Classification{
		Kinds:     make(map[int]SpecialKind),
		Thumbnail: -1,
		Label:     -1,
		Macro:     -1,
	}
	n := len(ifds)
	if n > 1 && isSmall(ifds[1]) {
		c.Thumbnail = 1
		c.Kinds[1] = KindThumbnail
	}
	lastSmall := n > 1 && isSmall(ifds[n-1]) && !c.Special(n-1)
	prevSmall := n > 2 && isSmall(ifds[n-2]) && !c.Special(n-2)
	switch {
	case lastSmall && prevSmall:
		a, b := n-2, n-1
		if labelFirst(ifds[a], ifds[b], explicitCompression) {
			c.Label, c.Macro = a, b
		} else {
			c.Label, c.Macro = b, a
		}
		c.Kinds[c.Label] = KindLabel
		c.Kinds[c.Macro] = KindMacro
	case lastSmall:
		i := n - 1
		ar := aspect(ifds[i])
		if aspectNearMacro(ar) {
			c.Macro = i
			c.Kinds[i] = KindMacro
		} else if ifds[i].Compression() != pyratiff.CompressionJPEG && ar < 1.5 {
			c.Label = i
			c.Kinds[i] = KindLabel
		}
	}
	// remaining small IFDs past the thumbnail become customs in index order
	custom := KindCustom1
	for i := 2; i < n && custom <= KindCustom5; i++ {
		if c.Special(i) || !isSmall(ifds[i]) {
			continue
		}
		c.Kinds[i] = custom
		c.Customs = append(c.Customs, i)
		custom++
	}
	return c
}

// labelFirst reports whether the first of the trailing pair is the label
// (and the second the macro).
func labelFirst(first, second *pyratiff.IFD, explicitCompression bool) bool {
	if explicitCompression {
		fc, sc := first.Compression(), second.Compression()
		if fc == pyratiff.CompressionLZW && sc == pyratiff.CompressionJPEG {
			return true
		}
		if fc == pyratiff.CompressionJPEG && sc == pyratiff.CompressionLZW {
			return false
		}
	}
	fa, sa := aspectNearMacro(aspect(first)), aspectNearMacro(aspect(second))
	switch {
	case sa && !fa:
		return true
	case fa && !sa:
		return false
	}
	return area(second) >= area(first)
}
