package pyratiff

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/300)
	}
	return data
}

func TestLosslessCodecRoundTrips(t *testing.T) {
	opts := CodecOptions{
		TileWidth: 64, TileHeight: 64,
		SamplesPerPixel: 1, BitsPerSample: 8,
		ByteOrder: binary.LittleEndian, Interleaved: true,
		Quality: -1,
	}
	data := testPattern(64 * 64)
	for _, code := range []Compression{CompressionNone, CompressionLZW, CompressionDeflate, CompressionPackBits} {
		codec, err := LookupCodec(code)
		require.NoError(t, err, "code %d", code)
		encoded, err := codec.Encode(data, opts)
		require.NoError(t, err, "code %d", code)
		decoded, err := codec.Decode(encoded, opts)
		require.NoError(t, err, "code %d", code)
		assert.Equal(t, data, decoded, "code %d", code)
	}
}

func TestLZWCompressesRepetitiveData(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i / 256)
	}
	codec, err := LookupCodec(CompressionLZW)
	require.NoError(t, err)
	encoded, err := codec.Encode(data, CodecOptions{Quality: -1})
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(data))
	decoded, err := codec.Decode(encoded, CodecOptions{})
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestLZWLongInput(t *testing.T) {
	// long enough to exercise code-width growth and a table reset
	data := make([]byte, 200000)
	for i := range data {
		data[i] = byte(i*31 + i>>9)
	}
	codec, err := LookupCodec(CompressionLZW)
	require.NoError(t, err)
	encoded, err := codec.Encode(data, CodecOptions{})
	require.NoError(t, err)
	decoded, err := codec.Decode(encoded, CodecOptions{})
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestPackBitsKnownVectors(t *testing.T) {
	codec, err := LookupCodec(CompressionPackBits)
	require.NoError(t, err)

	decoded, err := codec.Decode([]byte{0xFE, 0xAA, 0x02, 0x80, 0x00, 0x2A, 0xFD, 0xAA,
		0x03, 0x80, 0x00, 0x2A, 0x22, 0xF7, 0xAA}, CodecOptions{})
	require.NoError(t, err)
	expected := []byte{
		0xAA, 0xAA, 0xAA, 0x80, 0x00, 0x2A, 0xAA, 0xAA, 0xAA, 0xAA,
		0x80, 0x00, 0x2A, 0x22, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
		0xAA, 0xAA, 0xAA, 0xAA,
	}
	assert.Equal(t, expected, decoded)

	// encode must round-trip through its own decoder
	encoded, err := codec.Encode(expected, CodecOptions{})
	require.NoError(t, err)
	again, err := codec.Decode(encoded, CodecOptions{})
	require.NoError(t, err)
	assert.Equal(t, expected, again)
}

func TestJPEGRoundTripPSNR(t *testing.T) {
	const w, h = 64, 64
	data := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 3
			data[off] = byte(x * 4)
			data[off+1] = byte(y * 4)
			data[off+2] = byte((x + y) * 2)
		}
	}
	opts := CodecOptions{
		TileWidth: w, TileHeight: h,
		SamplesPerPixel: 3, BitsPerSample: 8,
		ByteOrder: binary.LittleEndian, Interleaved: true,
		Quality: 0.9, Photometric: PhotometricYCbCr,
	}
	codec, err := LookupCodec(CompressionJPEG)
	require.NoError(t, err)
	encoded, err := codec.Encode(data, opts)
	require.NoError(t, err)
	decoded, err := codec.Decode(encoded, opts)
	require.NoError(t, err)
	require.Len(t, decoded, len(data))
	assert.Greater(t, psnr(data, decoded), 30.0)
}

func TestJPEGRefusals(t *testing.T) {
	codec, err := LookupCodec(CompressionJPEG)
	require.NoError(t, err)
	_, err = codec.Encode(make([]byte, 16*16*2), CodecOptions{
		TileWidth: 16, TileHeight: 16, SamplesPerPixel: 1, BitsPerSample: 16,
	})
	assert.ErrorIs(t, err, ErrUnsupportedPixelLayout)
	_, err = codec.Encode(make([]byte, 16*16*3), CodecOptions{
		TileWidth: 16, TileHeight: 16, SamplesPerPixel: 3, BitsPerSample: 8,
		Photometric: PhotometricRGB,
	})
	assert.ErrorIs(t, err, ErrUnsupportedPixelLayout)
}

func TestUnknownCompression(t *testing.T) {
	_, err := LookupCodec(Compression(60000))
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func psnr(a, b []byte) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var mse float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		mse += d * d
	}
	mse /= float64(len(a))
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

func TestPredictorRoundTrip(t *testing.T) {
	cases := []struct {
		bits     int
		channels int
	}{
		{8, 1}, {8, 3}, {16, 1}, {16, 3}, {32, 1},
	}
	for _, c := range cases {
		opts := CodecOptions{
			TileWidth: 16, TileHeight: 4,
			SamplesPerPixel: c.channels, BitsPerSample: c.bits,
			ByteOrder: binary.LittleEndian, Interleaved: true,
		}
		elem := (c.bits + 7) / 8
		data := testPattern(16 * 4 * c.channels * elem)
		orig := append([]byte(nil), data...)
		applyPredictor(data, opts)
		assert.NotEqual(t, orig, data, "bits %d ch %d", c.bits, c.channels)
		reversePredictor(data, opts)
		assert.Equal(t, orig, data, "bits %d ch %d", c.bits, c.channels)
	}
}

func TestFillOrderInversion(t *testing.T) {
	data := []byte{0x01, 0x80, 0xF0, 0xAA}
	invertFillOrder(data)
	assert.Equal(t, []byte{0x80, 0x01, 0x0F, 0x55}, data)
	invertFillOrder(data)
	assert.Equal(t, []byte{0x01, 0x80, 0xF0, 0xAA}, data)
}

func TestFloat16Expansion(t *testing.T) {
	cases := []struct {
		packed   uint16
		expected float32
	}{
		{0x3C00, 1.0},
		{0xBC00, -1.0},
		{0x3800, 0.5},
		{0x4200, 3.0},
		{0x0000, 0.0},
		{0x8000, float32(math.Copysign(0, -1))},
		{0x0001, 5.960464477539063e-08}, // smallest subnormal
	}
	for _, c := range cases {
		src := make([]byte, 2)
		binary.LittleEndian.PutUint16(src, c.packed)
		out := expandFloat16(src, binary.LittleEndian)
		require.Len(t, out, 4)
		got := math.Float32frombits(binary.LittleEndian.Uint32(out))
		assert.Equal(t, c.expected, got, "packed %04x", c.packed)
	}
}

func TestFloat16Infinity(t *testing.T) {
	src := make([]byte, 2)
	binary.LittleEndian.PutUint16(src, 0x7C00)
	out := expandFloat16(src, binary.LittleEndian)
	assert.True(t, math.IsInf(float64(math.Float32frombits(binary.LittleEndian.Uint32(out))), 1))
}

func TestFloat24Expansion(t *testing.T) {
	// 1.0 in 1-7-16 layout: sign 0, exponent 63, mantissa 0
	bits := uint32(63) << 16
	src := []byte{byte(bits), byte(bits >> 8), byte(bits >> 16)}
	out := expandFloat24(src, binary.LittleEndian)
	got := math.Float32frombits(binary.LittleEndian.Uint32(out))
	assert.Equal(t, float32(1.0), got)
}
