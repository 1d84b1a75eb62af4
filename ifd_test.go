package pyratiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIFD(t *testing.T, w, h, channels, bits int) *IFD {
	t.Helper()
	ifd := NewIFD()
	require.NoError(t, ifd.Put(TagImageWidth, []uint32{uint32(w)}))
	require.NoError(t, ifd.Put(TagImageLength, []uint32{uint32(h)}))
	require.NoError(t, ifd.Put(TagSamplesPerPixel, []uint16{uint16(channels)}))
	bps := make([]uint16, channels)
	for i := range bps {
		bps[i] = uint16(bits)
	}
	require.NoError(t, ifd.Put(TagBitsPerSample, bps))
	return ifd
}

func TestIFDDerivedAccessors(t *testing.T) {
	ifd := newTestIFD(t, 300, 200, 3, 8)
	require.NoError(t, ifd.Put(TagTileWidth, []uint16{128}))
	require.NoError(t, ifd.Put(TagTileLength, []uint16{128}))

	w, err := ifd.ImageDimX()
	require.NoError(t, err)
	assert.Equal(t, 300, w)
	h, err := ifd.ImageDimY()
	require.NoError(t, err)
	assert.Equal(t, 200, h)

	assert.True(t, ifd.IsTiled())
	nx, err := ifd.TilesPerRow()
	require.NoError(t, err)
	assert.Equal(t, 3, nx)
	ny, err := ifd.TilesPerColumn()
	require.NoError(t, err)
	assert.Equal(t, 2, ny)

	assert.Equal(t, 3, ifd.SamplesPerPixel())
	assert.True(t, ifd.IsChunky())
	assert.Equal(t, CompressionNone, ifd.Compression())

	st, err := ifd.SampleType()
	require.NoError(t, err)
	assert.Equal(t, SampleUint8, st)
}

func TestIFDStripLayout(t *testing.T) {
	ifd := newTestIFD(t, 500, 300, 1, 8)
	require.NoError(t, ifd.Put(TagRowsPerStrip, []uint32{64}))

	assert.False(t, ifd.IsTiled())
	tsx, err := ifd.TileSizeX()
	require.NoError(t, err)
	assert.Equal(t, 500, tsx)
	tsy, err := ifd.TileSizeY()
	require.NoError(t, err)
	assert.Equal(t, 64, tsy)
	ny, err := ifd.TilesPerColumn()
	require.NoError(t, err)
	assert.Equal(t, 5, ny)
}

func TestIFDBytesPerSample(t *testing.T) {
	cases := []struct {
		bits   int
		byBits int
		byType int
	}{
		{1, 1, 1},
		{8, 1, 1},
		{12, 2, 2},
		{16, 2, 2},
		{24, 3, 4},
		{32, 4, 4},
		{64, 8, 8},
	}
	for _, c := range cases {
		ifd := newTestIFD(t, 10, 10, 1, c.bits)
		byBits, err := ifd.BytesPerSampleByBits()
		require.NoError(t, err)
		assert.Equal(t, c.byBits, byBits, "bits %d", c.bits)
		byType, err := ifd.BytesPerSampleByType()
		require.NoError(t, err)
		assert.Equal(t, c.byType, byType, "bits %d", c.bits)
	}
}

func TestIFDMixedBitDepthRejected(t *testing.T) {
	ifd := NewIFD()
	require.NoError(t, ifd.Put(TagBitsPerSample, []uint16{8, 16, 8}))
	_, err := ifd.BitsPerSample()
	assert.ErrorIs(t, err, ErrUnsupportedIFD)
}

func TestIFDFreeze(t *testing.T) {
	ifd := newTestIFD(t, 10, 10, 1, 8)
	ifd.Freeze()
	assert.ErrorIs(t, ifd.Put(TagCompression, []uint16{5}), ErrUnsupportedIFD)
	assert.ErrorIs(t, ifd.Remove(TagImageWidth), ErrUnsupportedIFD)
}

func TestCorrectForWritingDefaults(t *testing.T) {
	ifd := NewIFD()
	require.NoError(t, ifd.Put(TagImageWidth, []uint32{16}))
	require.NoError(t, ifd.Put(TagImageLength, []uint32{16}))
	require.NoError(t, ifd.Put(TagSamplesPerPixel, []uint16{3}))

	require.NoError(t, ifd.CorrectForWriting(true))

	bits, err := ifd.BitsPerSample()
	require.NoError(t, err)
	assert.Equal(t, 8, bits)
	assert.Equal(t, CompressionNone, ifd.Compression())
	assert.Equal(t, PhotometricRGB, ifd.Photometric())
}

func TestCorrectForWritingJPEGConstraints(t *testing.T) {
	ifd := newTestIFD(t, 16, 16, 4, 8)
	require.NoError(t, ifd.Put(TagCompression, []uint16{uint16(CompressionJPEG)}))
	assert.ErrorIs(t, ifd.CorrectForWriting(true), ErrUnsupportedIFD)

	ifd = newTestIFD(t, 16, 16, 3, 16)
	require.NoError(t, ifd.Put(TagCompression, []uint16{uint16(CompressionJPEG)}))
	assert.ErrorIs(t, ifd.CorrectForWriting(true), ErrUnsupportedIFD)

	ifd = newTestIFD(t, 16, 16, 3, 8)
	require.NoError(t, ifd.Put(TagCompression, []uint16{uint16(CompressionJPEG)}))
	require.NoError(t, ifd.Put(TagPhotometricInterpretation, []uint16{uint16(PhotometricPalette)}))
	assert.ErrorIs(t, ifd.CorrectForWriting(true), ErrUnsupportedIFD)

	ifd = newTestIFD(t, 16, 16, 1, 8)
	require.NoError(t, ifd.Put(TagCompression, []uint16{uint16(CompressionJPEG)}))
	require.NoError(t, ifd.CorrectForWriting(true))
	assert.Equal(t, PhotometricBlackIsZero, ifd.Photometric())
}

func TestCorrectForWritingStrictBits(t *testing.T) {
	ifd := newTestIFD(t, 16, 16, 1, 12)
	assert.ErrorIs(t, ifd.CorrectForWriting(true), ErrUnsupportedIFD)
	ifd = newTestIFD(t, 16, 16, 1, 12)
	assert.NoError(t, ifd.CorrectForWriting(false))
}
