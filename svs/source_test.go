package svs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridscan/pyratiff"
)

// writeSyntheticSVS produces a little pyramid file: a 512x512 main level,
// a 128x128 stored level (factor 4), and a strip-layout macro.
func writeSyntheticSVS(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "slide.svs")
	w, err := pyratiff.NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.StartNewFile())

	writeLevel := func(dim, tile int, description string) {
		t.Helper()
		ifd := pyratiff.NewIFD()
		require.NoError(t, ifd.Put(pyratiff.TagImageWidth, []uint32{uint32(dim)}))
		require.NoError(t, ifd.Put(pyratiff.TagImageLength, []uint32{uint32(dim)}))
		require.NoError(t, ifd.Put(pyratiff.TagSamplesPerPixel, []uint16{1}))
		require.NoError(t, ifd.Put(pyratiff.TagTileWidth, []uint16{uint16(tile)}))
		require.NoError(t, ifd.Put(pyratiff.TagTileLength, []uint16{uint16(tile)}))
		if description != "" {
			require.NoError(t, ifd.Put(pyratiff.TagImageDescription, description))
		}
		m, err := w.NewMap(ifd, false)
		require.NoError(t, err)
		data := make([]byte, dim*dim)
		for i := range data {
			data[i] = byte(i % 251)
		}
		require.NoError(t, m.UpdateSamples(data, 0, 0, dim, dim))
		require.NoError(t, w.Complete(m))
	}

	writeStrips := func(dimX, dimY int) {
		t.Helper()
		ifd := pyratiff.NewIFD()
		require.NoError(t, ifd.Put(pyratiff.TagImageWidth, []uint32{uint32(dimX)}))
		require.NoError(t, ifd.Put(pyratiff.TagImageLength, []uint32{uint32(dimY)}))
		require.NoError(t, ifd.Put(pyratiff.TagSamplesPerPixel, []uint16{1}))
		require.NoError(t, ifd.Put(pyratiff.TagRowsPerStrip, []uint32{32}))
		m, err := w.NewMap(ifd, false)
		require.NoError(t, err)
		data := make([]byte, dimX*dimY)
		require.NoError(t, m.UpdateSamples(data, 0, 0, dimX, dimY))
		require.NoError(t, w.Complete(m))
	}

	writeLevel(512, 256, "Synthetic slide|AppMag = 20|MPP = 0.5")
	writeLevel(128, 128, "")
	writeStrips(288, 100) // 2.88 aspect: the macro
	require.NoError(t, w.Close())
	return path
}

func TestSourceOpenAndStructure(t *testing.T) {
	path := writeSyntheticSVS(t, t.TempDir())
	s := OpenFile(path)
	defer s.Close()

	n, err := s.NumberOfResolutions()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ac, err := s.ActualCompression()
	require.NoError(t, err)
	assert.Equal(t, 4, ac)

	dims, err := s.LevelDimensions(0)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 512, 512}, dims)

	cls, err := s.Classification()
	require.NoError(t, err)
	assert.Equal(t, 2, cls.Macro)

	mpp, err := s.PixelSize()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mpp, 1e-9)
}

func TestSourceReadLevels(t *testing.T) {
	path := writeSyntheticSVS(t, t.TempDir())
	s := OpenFile(path)
	defer s.Close()

	data, err := s.ReadRegion(context.Background(), 0, 10, 20, 64, 32)
	require.NoError(t, err)
	require.Len(t, data, 64*32)
	assert.Equal(t, byte((20*512+10)%251), data[0])

	coarse, err := s.ReadRegion(context.Background(), 1, 0, 0, 128, 128)
	require.NoError(t, err)
	assert.Len(t, coarse, 128*128)
}

func TestSourceSpecialImage(t *testing.T) {
	path := writeSyntheticSVS(t, t.TempDir())
	s := OpenFile(path)
	defer s.Close()

	_, dims, err := s.SpecialImage(context.Background(), KindMacro)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 288, 100}, dims)

	_, _, err = s.SpecialImage(context.Background(), KindLabel)
	assert.ErrorIs(t, err, pyratiff.ErrInvalidArgument)
}

func TestSourceCloseReopen(t *testing.T) {
	path := writeSyntheticSVS(t, t.TempDir())
	s := OpenFile(path)

	_, err := s.NumberOfResolutions()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())

	// the next read reopens lazily
	_, err = s.ReadRegion(context.Background(), 0, 0, 0, 16, 16)
	require.NoError(t, err)
	assert.False(t, s.Closed())
	require.NoError(t, s.Close())
}

func TestSourceOpenFailureLeavesClosed(t *testing.T) {
	s := OpenFile(filepath.Join(t.TempDir(), "missing.svs"))
	_, err := s.NumberOfResolutions()
	require.Error(t, err)
	assert.True(t, s.Closed())
}

func TestSourceWholeSlideComposition(t *testing.T) {
	path := writeSyntheticSVS(t, t.TempDir())
	s := OpenFile(path,
		CombineWithWholeSlide(true),
		Geometry(WholeSlideGeometry{
			SlideWidthMicrons:  1024,
			SlideHeightMicrons: 1024,
			ImageLeftMicrons:   128,
			ImageTopMicrons:    128,
			PixelSizeMicrons:   1,
		}),
		SkipCoarseData(true),
	)
	defer s.Close()

	// virtual levels: 512, 256, 128, 64
	n, err := s.NumberOfResolutions()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	dims, err := s.LevelDimensions(0)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 1024, 1024}, dims)

	rect, err := s.ActualRectangle(0)
	require.NoError(t, err)
	assert.Equal(t, [4]int{128, 639, 128, 639}, rect)

	// wholly outside the scanned area: filler
	out, err := s.ReadRegion(context.Background(), 0, 0, 0, 64, 64)
	require.NoError(t, err)
	for _, b := range out {
		require.Equal(t, byte(DefaultFiller), b)
	}

	// wholly inside: stored pixels
	in, err := s.ReadRegion(context.Background(), 0, 128, 128, 32, 32)
	require.NoError(t, err)
	assert.Equal(t, byte(0), in[0]%251)

	// straddling: filler outside, data inside
	mixed, err := s.ReadRegion(context.Background(), 0, 96, 96, 64, 64)
	require.NoError(t, err)
	assert.Equal(t, byte(DefaultFiller), mixed[0])
	inside := mixed[(32+1)*64+33]
	assert.Equal(t, byte((1*512+1)%251), inside)
}

func TestSourceMetadataSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticSVS(t, dir)
	sidecar := `{"rois": [{"points": [{"x": 0, "y": 0}, {"x": 99, "y": 49}]}]}`
	require.NoError(t, os.WriteFile(path+".meta", []byte(sidecar), 0o644))

	s := OpenFile(path)
	defer s.Close()
	meta, err := s.Metadata()
	require.NoError(t, err)
	require.NotNil(t, meta)
	rects := meta.Rectangles(1)
	require.Len(t, rects, 1)
	assert.Equal(t, int64(100), rects[0].SizeX)
}

func TestSourceMalformedSidecarIgnored(t *testing.T) {
	dir := t.TempDir()
	path := writeSyntheticSVS(t, dir)
	require.NoError(t, os.WriteFile(path+".meta", []byte("{broken"), 0o644))

	s := OpenFile(path)
	defer s.Close()
	meta, err := s.Metadata()
	require.NoError(t, err)
	assert.Nil(t, meta)
}
