package svs

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
)

// Sidecar metadata: an optional <pyramid>.meta JSON next to the pyramid
// file carrying ROI contours. A malformed sidecar is logged and treated as
// "no metadata" rather than failing the open.

// MetaPoint is one contour vertex in level-0 pixel coordinates.
type MetaPoint struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// MetaROI is one region of interest.
type MetaROI struct {
	Points []MetaPoint `json:"points"`
}

// Metadata is the parsed sidecar content.
type Metadata struct {
	ROIs []MetaROI `json:"rois"`
}

// ROIRect is the minimum containing rectangle of one contour, scaled to a
// resolution level; the centre and sizes are the canonical outputs.
type ROIRect struct {
	X1, Y1, X2, Y2   int64
	CenterX, CenterY int64
	SizeX, SizeY     int64
}

// LoadMetadata reads the sidecar next to pyramidPath. A missing or
// unreadable file yields nil; a malformed one is logged and dropped.
func LoadMetadata(pyramidPath string) *Metadata {
	path := pyramidPath + ".meta"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("ignoring malformed metadata %s: %v", path, err)
		return nil
	}
	return &m
}

// Rectangles returns the containing rectangles of all contours, scaled by
// the given level divisor. Rectangles with any zero dimension are dropped.
func (m *Metadata) Rectangles(levelDivisor int64) []ROIRect {
	if m == nil || levelDivisor < 1 {
		return nil
	}
	var out []ROIRect
	for _, roi := range m.ROIs {
		if len(roi.Points) == 0 {
			continue
		}
		x1, y1 := roi.Points[0].X, roi.Points[0].Y
		x2, y2 := x1, y1
		for _, p := range roi.Points[1:] {
			if p.X < x1 {
				x1 = p.X
			}
			if p.X > x2 {
				x2 = p.X
			}
			if p.Y < y1 {
				y1 = p.Y
			}
			if p.Y > y2 {
				y2 = p.Y
			}
		}
		x1, y1 = x1/levelDivisor, y1/levelDivisor
		x2, y2 = x2/levelDivisor, y2/levelDivisor
		r := ROIRect{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			CenterX: (x1 + x2) / 2,
			CenterY: (y1 + y2) / 2,
			SizeX:   x2 - x1 + 1,
			SizeY:   y2 - y1 + 1,
		}
		if r.SizeX <= 0 || r.SizeY <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParsePixelSize extracts the micron-per-pixel value from an Aperio image
// description ("…|MPP = 0.4990|…"). Zero means unavailable.
func ParsePixelSize(description string) float64 {
	for _, field := range strings.Split(description, "|") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) != "MPP" {
			continue
		}
		mpp, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil && mpp > 0 {
			return mpp
		}
	}
	return 0
}

// ParseMagnification extracts the AppMag field, or 0.
func ParseMagnification(description string) float64 {
	for _, field := range strings.Split(description, "|") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) != "AppMag" {
			continue
		}
		mag, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil && mag > 0 {
			return mag
		}
	}
	return 0
}
