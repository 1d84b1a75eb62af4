package pyratiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/orcaman/writerseeker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRejection(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"bad order", []byte{'X', 'X', 42, 0, 8, 0, 0, 0}},
		{"bad magic", []byte{'I', 'I', 44, 0, 8, 0, 0, 0}},
		{"bad bigtiff offset size", []byte{'I', 'I', 43, 0, 4, 0, 0, 0, 16, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(c.data))
			assert.ErrorIs(t, err, ErrInvalidFile)
		})
	}
}

func TestBigEndianHeader(t *testing.T) {
	// MM classic header with first-IFD offset 0: an empty valid file
	data := []byte{'M', 'M', 0, 42, 0, 0, 0, 0}
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, r.LittleEndian())
	n, err := r.NumberOfIFDs()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIFDCycleDetection(t *testing.T) {
	// classic LE file whose single IFD's next pointer loops to itself
	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	// IFD at 8: one entry (ImageWidth SHORT 1 = 16), next -> 8 again
	entry := make([]byte, 2+12+4)
	binary.LittleEndian.PutUint16(entry[0:], 1)
	binary.LittleEndian.PutUint16(entry[2:], TagImageWidth)
	binary.LittleEndian.PutUint16(entry[4:], TShort)
	binary.LittleEndian.PutUint32(entry[6:], 1)
	binary.LittleEndian.PutUint16(entry[10:], 16)
	binary.LittleEndian.PutUint32(entry[14:], 8)
	buf.Write(entry)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	ifds, err := r.ReadIFDs()
	require.NoError(t, err)
	// the cycle terminates the walk instead of looping forever
	assert.Len(t, ifds, 1)
}

func TestUnknownEntryTypeSkipped(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	entries := make([]byte, 2+2*12+4)
	binary.LittleEndian.PutUint16(entries[0:], 2)
	// entry 0: unknown type 200, must be skipped
	binary.LittleEndian.PutUint16(entries[2:], 40000)
	binary.LittleEndian.PutUint16(entries[4:], 200)
	binary.LittleEndian.PutUint32(entries[6:], 1)
	// entry 1: ImageWidth
	binary.LittleEndian.PutUint16(entries[14:], TagImageWidth)
	binary.LittleEndian.PutUint16(entries[16:], TShort)
	binary.LittleEndian.PutUint32(entries[18:], 1)
	binary.LittleEndian.PutUint16(entries[22:], 99)
	buf.Write(entries)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	ifds, err := r.ReadIFDs()
	require.NoError(t, err)
	require.Len(t, ifds, 1)
	assert.False(t, ifds[0].Has(40000))
	w, err := ifds[0].ImageDimX()
	require.NoError(t, err)
	assert.Equal(t, 99, w)
}

func TestOversizePayloadClamped(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	// one entry: LONG count 1000 at offset 26 (only 2 longs fit the file)
	entries := make([]byte, 2+12+4)
	binary.LittleEndian.PutUint16(entries[0:], 1)
	binary.LittleEndian.PutUint16(entries[2:], TagTileOffsets)
	binary.LittleEndian.PutUint16(entries[4:], TLong)
	binary.LittleEndian.PutUint32(entries[6:], 1000)
	binary.LittleEndian.PutUint32(entries[10:], 26)
	buf.Write(entries)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], 111)
	binary.LittleEndian.PutUint32(payload[4:], 222)
	buf.Write(payload)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	ifds, err := r.ReadIFDs()
	require.NoError(t, err)
	require.Len(t, ifds, 1)
	offsets := ifds[0].uintValues(TagTileOffsets)
	assert.Equal(t, []uint64{111, 222}, offsets)
}

func TestRegionReadArguments(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	w := NewWriter(ws)
	require.NoError(t, w.StartNewFile())
	m := writeImageIFD(t, w, 64, 64, 1, CompressionNone, false, 0)
	require.NoError(t, m.UpdateSamples(gradientImage(64, 64, 1), 0, 0, 64, 64))
	require.NoError(t, w.Complete(m))

	r, err := NewReader(snapshot(t, ws), WithCaching(true))
	require.NoError(t, err)
	ifd, err := r.IFD(0)
	require.NoError(t, err)

	_, err = r.ReadRegion(context.Background(), ifd, -1, 0, 8, 8)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.ReadRegion(context.Background(), ifd, 0, 0, MaxImageDim, 8)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegionReadFillerOutsideImage(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	w := NewWriter(ws)
	require.NoError(t, w.StartNewFile())
	m := writeImageIFD(t, w, 32, 32, 1, CompressionNone, false, 0)
	require.NoError(t, m.UpdateSamples(gradientImage(32, 32, 1), 0, 0, 32, 32))
	require.NoError(t, w.Complete(m))

	r, err := NewReader(snapshot(t, ws), WithCaching(true), WithFiller(0xF0))
	require.NoError(t, err)
	ifd, err := r.IFD(0)
	require.NoError(t, err)

	got, err := r.ReadRegion(context.Background(), ifd, 16, 16, 32, 32)
	require.NoError(t, err)
	// the bottom-right quadrant of the image lands top-left; everything
	// past the image edge keeps the filler byte
	src := gradientImage(32, 32, 1)
	assert.Equal(t, src[16*32+16], got[0])
	assert.Equal(t, byte(0xF0), got[31])
	assert.Equal(t, byte(0xF0), got[31*32+31])
}

func TestMissingTileReadsAsFiller(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	w := NewWriter(ws, MissingTilesAllowed(true))
	require.NoError(t, w.StartNewFile())
	m := writeImageIFD(t, w, 128, 128, 1, CompressionNone, false, 64)
	require.NoError(t, m.UpdateSamples(gradientImage(64, 64, 1), 0, 0, 64, 64))
	require.NoError(t, w.Complete(m))

	r, err := NewReader(snapshot(t, ws), WithCaching(true), WithFiller(0xF0))
	require.NoError(t, err)
	ifd, err := r.IFD(0)
	require.NoError(t, err)

	tile, err := r.ReadTile(ifd, 0, 1, 1)
	require.NoError(t, err)
	for _, b := range tile {
		require.Equal(t, byte(0xF0), b)
	}
}

func TestRegionReadCancellation(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	w := NewWriter(ws)
	require.NoError(t, w.StartNewFile())
	m := writeImageIFD(t, w, 64, 64, 1, CompressionNone, false, 0)
	require.NoError(t, m.UpdateSamples(gradientImage(64, 64, 1), 0, 0, 64, 64))
	require.NoError(t, w.Complete(m))

	r, err := NewReader(snapshot(t, ws), WithCaching(true))
	require.NoError(t, err)
	ifd, err := r.IFD(0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ReadRegion(ctx, ifd, 0, 0, 64, 64)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValueDecodeTypes(t *testing.T) {
	order := binary.LittleEndian
	raw := make([]byte, 8)
	order.PutUint32(raw[0:], 3)
	order.PutUint32(raw[4:], 4)
	v := decodeValue(TRational, 1, raw, order)
	assert.Equal(t, []Rational{{3, 4}}, v)

	raw = []byte{'h', 'i', 0}
	assert.Equal(t, "hi", decodeValue(TAscii, 3, raw, order))

	raw = make([]byte, 4)
	order.PutUint32(raw, 0x3F800000)
	assert.Equal(t, []float32{1.0}, decodeValue(TFloat, 1, raw, order))
}
