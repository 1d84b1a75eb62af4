package svs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridscan/pyratiff"
)

// makeIFD builds a synthetic directory; tiled images carry a 256x256 tile
// grid, small strip images a RowsPerStrip.
func makeIFD(t *testing.T, w, h int, tiled bool, compression pyratiff.Compression) *pyratiff.IFD {
	t.Helper()
	ifd := pyratiff.NewIFD()
	require.NoError(t, ifd.Put(pyratiff.TagImageWidth, []uint32{uint32(w)}))
	require.NoError(t, ifd.Put(pyratiff.TagImageLength, []uint32{uint32(h)}))
	require.NoError(t, ifd.Put(pyratiff.TagSamplesPerPixel, []uint16{3}))
	require.NoError(t, ifd.Put(pyratiff.TagBitsPerSample, []uint16{8, 8, 8}))
	require.NoError(t, ifd.Put(pyratiff.TagCompression, []uint16{uint16(compression)}))
	if tiled {
		require.NoError(t, ifd.Put(pyratiff.TagTileWidth, []uint16{256}))
		require.NoError(t, ifd.Put(pyratiff.TagTileLength, []uint16{256}))
	} else {
		require.NoError(t, ifd.Put(pyratiff.TagRowsPerStrip, []uint32{16}))
	}
	return ifd
}

// svsLayout is the canonical Aperio IFD order: main, thumbnail, coarser
// levels, label, macro.
func svsLayout(t *testing.T) []*pyratiff.IFD {
	t.Helper()
	return []*pyratiff.IFD{
		makeIFD(t, 8192, 6144, true, pyratiff.CompressionJPEG),
		makeIFD(t, 256, 256, false, pyratiff.CompressionJPEG),
		makeIFD(t, 2048, 1536, true, pyratiff.CompressionJPEG),
		makeIFD(t, 1024, 768, true, pyratiff.CompressionJPEG),
		makeIFD(t, 512, 500, false, pyratiff.CompressionLZW),
		makeIFD(t, 1440, 500, false, pyratiff.CompressionJPEG),
	}
}

func TestClassifySVSLayout(t *testing.T) {
	ifds := svsLayout(t)
	cls := Classify(ifds, false)

	assert.Equal(t, 1, cls.Thumbnail)
	assert.Equal(t, 4, cls.Label)
	assert.Equal(t, 5, cls.Macro)
	assert.Equal(t, KindThumbnail, cls.Kinds[1])
	assert.Equal(t, KindLabel, cls.Kinds[4])
	assert.Equal(t, KindMacro, cls.Kinds[5])
	assert.False(t, cls.Special(0))
	assert.False(t, cls.Special(2))
	assert.False(t, cls.Special(3))
}

func TestClassifyExplicitCompressionPair(t *testing.T) {
	// square-ish trailing pair where only the compression convention can
	// decide
	ifds := []*pyratiff.IFD{
		makeIFD(t, 4096, 4096, true, pyratiff.CompressionJPEG),
		makeIFD(t, 256, 240, false, pyratiff.CompressionJPEG),
		makeIFD(t, 1024, 1024, true, pyratiff.CompressionJPEG),
		makeIFD(t, 400, 380, false, pyratiff.CompressionJPEG),
		makeIFD(t, 420, 400, false, pyratiff.CompressionLZW),
	}
	cls := Classify(ifds, true)
	assert.Equal(t, 4, cls.Label)
	assert.Equal(t, 3, cls.Macro)
}

func TestClassifyLargerAreaWinsMacro(t *testing.T) {
	ifds := []*pyratiff.IFD{
		makeIFD(t, 4096, 4096, true, pyratiff.CompressionJPEG),
		makeIFD(t, 256, 240, false, pyratiff.CompressionJPEG),
		makeIFD(t, 2048, 2048, true, pyratiff.CompressionJPEG),
		makeIFD(t, 300, 300, false, pyratiff.CompressionJPEG),
		makeIFD(t, 600, 600, false, pyratiff.CompressionJPEG),
	}
	cls := Classify(ifds, false)
	// neither aspect is near the slide ratio: the bigger one is the macro
	assert.Equal(t, 4, cls.Macro)
	assert.Equal(t, 3, cls.Label)
}

func TestClassifyCustoms(t *testing.T) {
	ifds := []*pyratiff.IFD{
		makeIFD(t, 4096, 4096, true, pyratiff.CompressionJPEG),
		makeIFD(t, 256, 256, false, pyratiff.CompressionJPEG),
		makeIFD(t, 128, 100, false, pyratiff.CompressionJPEG),
		makeIFD(t, 130, 100, false, pyratiff.CompressionJPEG),
		makeIFD(t, 512, 500, false, pyratiff.CompressionLZW),
		makeIFD(t, 1440, 500, false, pyratiff.CompressionJPEG),
	}
	cls := Classify(ifds, false)
	assert.Equal(t, 1, cls.Thumbnail)
	assert.Equal(t, []int{2, 3}, cls.Customs)
	assert.Equal(t, KindCustom1, cls.Kinds[2])
	assert.Equal(t, KindCustom2, cls.Kinds[3])
}

func TestPyramidAssembly(t *testing.T) {
	ifds := svsLayout(t)
	cls := Classify(ifds, false)
	pyr, err := assemblePyramid(ifds, cls)
	require.NoError(t, err)

	// 8192/2048 fixes the factor at 4; 1024x768 breaks the sequence
	assert.Equal(t, 4, pyr.ActualCompression)
	assert.Equal(t, []int{0, 2}, pyr.StoredIFDs)
	require.Len(t, pyr.Levels, 2)
	assert.Equal(t, 8192, pyr.Levels[0].DimX)
	assert.Equal(t, 2048, pyr.Levels[1].DimX)
}

func TestVirtualLevels(t *testing.T) {
	ifds := svsLayout(t)
	cls := Classify(ifds, false)
	pyr, err := assemblePyramid(ifds, cls)
	require.NoError(t, err)
	require.True(t, pyr.canSynthesize())
	pyr.synthesizeVirtualLevels()

	assert.Equal(t, 2, pyr.Compression)
	assert.Equal(t, 4, pyr.ActualCompression)
	expected := [][2]int{
		{8192, 6144}, {4096, 3072}, {2048, 1536}, {1024, 768},
		{512, 384}, {256, 192}, {128, 96},
	}
	require.Len(t, pyr.Levels, len(expected))
	for i, e := range expected {
		assert.Equal(t, e[0], pyr.Levels[i].DimX, "level %d", i)
		assert.Equal(t, e[1], pyr.Levels[i].DimY, "level %d", i)
	}
	// stored halvings are served directly, the rest by downscale
	assert.Equal(t, 0, pyr.Levels[0].ActualIFD)
	assert.Equal(t, 2, pyr.Levels[2].ActualIFD)
	assert.Equal(t, -1, pyr.Levels[1].ActualIFD)
	assert.Equal(t, 0, pyr.Levels[1].ScaleFrom)
	assert.Equal(t, 2, pyr.Levels[1].Scale)
}

func TestPyramidNonPowerOfTwoCompression(t *testing.T) {
	ifds := []*pyratiff.IFD{
		makeIFD(t, 9000, 9000, true, pyratiff.CompressionJPEG),
		makeIFD(t, 3000, 3000, true, pyratiff.CompressionJPEG),
		makeIFD(t, 1000, 1000, true, pyratiff.CompressionJPEG),
	}
	cls := Classify(ifds, false)
	pyr, err := assemblePyramid(ifds, cls)
	require.NoError(t, err)
	assert.Equal(t, 3, pyr.ActualCompression)
	assert.Len(t, pyr.Levels, 3)
	assert.False(t, pyr.canSynthesize())
}
