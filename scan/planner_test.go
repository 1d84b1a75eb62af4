package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p *Planner) []FramePlan {
	t.Helper()
	var out []FramePlan
	for {
		plan, ok := p.Next()
		if !ok {
			return out
		}
		out = append(out, plan)
	}
}

// TestRowsSnake is the 1000x500 ROI with 128x128 frames: 8x4 grid, row 0
// left-to-right, row 1 right-to-left.
func TestRowsSnake(t *testing.T) {
	roi := ROI{X1: 0, Y1: 0, X2: 999, Y2: 499}
	p, err := NewPlanner([]ROI{roi}, 128, 128, SequenceRowsSnake, false, LastPyramid(true))
	require.NoError(t, err)

	frames := collect(t, p)
	require.Len(t, frames, 32)
	assert.Equal(t, 8, frames[0].FramesPerSeries)

	for i := 0; i < 8; i++ {
		assert.Equal(t, i, frames[i].XIndex, "row 0 frame %d", i)
		assert.Equal(t, 0, frames[i].YIndex)
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, 7-i, frames[8+i].XIndex, "row 1 frame %d", i)
		assert.Equal(t, 1, frames[8+i].YIndex)
	}

	assert.True(t, frames[0].FirstInRoi)
	assert.True(t, frames[0].FirstInPyramid)
	assert.False(t, frames[1].FirstInRoi)
	last := frames[31]
	assert.True(t, last.LastInRoi)
	assert.True(t, last.LastInPyramid)
	assert.True(t, last.LastOverall)

	// border frames are cropped to the ROI
	assert.Equal(t, int64(104), frames[7].W)
	assert.Equal(t, int64(116), frames[31].H)
}

func TestRowsLTRNoSnake(t *testing.T) {
	roi := ROI{X1: 0, Y1: 0, X2: 255, Y2: 255}
	p, err := NewPlanner([]ROI{roi}, 128, 128, SequenceRowsLTR, false)
	require.NoError(t, err)
	frames := collect(t, p)
	require.Len(t, frames, 4)
	assert.Equal(t, []int{0, 1, 0, 1}, []int{frames[0].XIndex, frames[1].XIndex, frames[2].XIndex, frames[3].XIndex})
}

func TestColumnsSnake(t *testing.T) {
	roi := ROI{X1: 0, Y1: 0, X2: 255, Y2: 383}
	p, err := NewPlanner([]ROI{roi}, 128, 128, SequenceColsSnake, false)
	require.NoError(t, err)
	frames := collect(t, p)
	require.Len(t, frames, 6)
	assert.Equal(t, 3, frames[0].FramesPerSeries)
	// column 0 top-to-bottom, column 1 bottom-to-top
	ys := []int{frames[0].YIndex, frames[1].YIndex, frames[2].YIndex, frames[3].YIndex, frames[4].YIndex, frames[5].YIndex}
	assert.Equal(t, []int{0, 1, 2, 2, 1, 0}, ys)
}

func TestShortestSideOrientation(t *testing.T) {
	wide := ROI{X1: 0, Y1: 0, X2: 999, Y2: 99}
	p, err := NewPlanner([]ROI{wide}, 50, 50, SequenceShortestSide, false)
	require.NoError(t, err)
	plan, ok := p.Next()
	require.True(t, ok)
	// wide ROI scans by rows
	assert.Equal(t, 20, plan.FramesPerSeries)

	tall := ROI{X1: 0, Y1: 0, X2: 99, Y2: 999}
	p, err = NewPlanner([]ROI{tall}, 50, 50, SequenceShortestSide, false)
	require.NoError(t, err)
	plan, ok = p.Next()
	require.True(t, ok)
	assert.Equal(t, 20, plan.FramesPerSeries)
}

func TestEqualizeGrid(t *testing.T) {
	roi := ROI{X1: 0, Y1: 0, X2: 999, Y2: 499}
	p, err := NewPlanner([]ROI{roi}, 300, 300, SequenceRowsLTR, true)
	require.NoError(t, err)
	frames := collect(t, p)
	// 4x2 cells survive equalization, sizes balance to 250x250
	require.Len(t, frames, 8)
	for _, f := range frames {
		assert.Equal(t, int64(250), f.W)
		assert.Equal(t, int64(250), f.H)
	}
}

func TestMultipleROIs(t *testing.T) {
	rois := []ROI{
		{X1: 0, Y1: 0, X2: 99, Y2: 99},
		{X1: 200, Y1: 0, X2: 299, Y2: 99},
		{X1: 0, Y1: 0, X2: -1, Y2: 9}, // empty: dropped
	}
	p, err := NewPlanner(rois, 100, 100, SequenceRowsLTR, false)
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumberOfROIs())
	frames := collect(t, p)
	require.Len(t, frames, 2)
	assert.True(t, frames[0].FirstInRoi)
	assert.True(t, frames[0].LastInRoi)
	assert.True(t, frames[1].FirstInRoi)
	assert.Equal(t, 1, frames[1].RoiIndex)
	assert.True(t, frames[1].LastInPyramid)
	assert.False(t, frames[1].LastOverall)
}

func TestPlannerCancel(t *testing.T) {
	roi := ROI{X1: 0, Y1: 0, X2: 999, Y2: 999}
	p, err := NewPlanner([]ROI{roi}, 100, 100, SequenceRowsLTR, false)
	require.NoError(t, err)
	_, ok := p.Next()
	require.True(t, ok)
	p.Cancel()
	_, ok = p.Next()
	assert.False(t, ok)
}

func TestValidateNonIntersecting(t *testing.T) {
	// sharing a boundary coordinate means sharing pixels: rejected
	overlapping := []ROI{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 10, Y1: 0, X2: 20, Y2: 10},
	}
	assert.Error(t, ValidateNonIntersecting(overlapping))

	// truly abutting rectangles share no pixel: accepted
	abutting := []ROI{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 11, Y1: 0, X2: 20, Y2: 10},
	}
	assert.NoError(t, ValidateNonIntersecting(abutting))
}

func TestParseBoolString(t *testing.T) {
	assert.True(t, ParseBoolString("true"))
	assert.True(t, ParseBoolString("TRUE"))
	assert.True(t, ParseBoolString(" True "))
	assert.False(t, ParseBoolString("yes"))
	assert.False(t, ParseBoolString(""))
	assert.False(t, ParseBoolString("1"))
}

func TestParseConfig(t *testing.T) {
	data := []byte(`{
		"file": "slide.svs",
		"resolution_level": 1,
		"scanning_sequence": "ROWS_SNAKE",
		"equalize_grid": true,
		"close_file": "True",
		"size_unit": "PIXEL",
		"opening_mode": "OPEN_ON_FIRST_CALL"
	}`)
	c, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, "slide.svs", c.File)
	assert.Equal(t, SequenceRowsSnake, c.Sequence())
	assert.True(t, c.CloseAfterLastFrame())
	mode, err := ParseOpeningMode(c.OpeningMode)
	require.NoError(t, err)
	assert.Equal(t, OpenOnFirstCall, mode)
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	_, err := ParseConfig([]byte(`{"resolution_level": -1}`))
	assert.Error(t, err)
	_, err = ParseConfig([]byte(`{"scanning_sequence": "SPIRAL"}`))
	assert.Error(t, err)
	_, err = ParseConfig([]byte(`not json`))
	assert.Error(t, err)
}

func TestRecommendedFramesInBuffer(t *testing.T) {
	roi := ROI{X1: 0, Y1: 0, X2: 999, Y2: 499}
	p, err := NewPlanner([]ROI{roi}, 128, 128, SequenceRowsSnake, false)
	require.NoError(t, err)
	assert.Equal(t, 9, p.RecommendedFramesInBuffer())
}
