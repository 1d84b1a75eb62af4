package pyratiff

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// CodecOptions carries everything a codec needs for one encode or decode
// call. Codecs are stateless; every call is self-contained.
type CodecOptions struct {
	TileWidth       int
	TileHeight      int
	SamplesPerPixel int
	BitsPerSample   int
	ByteOrder       binary.ByteOrder

	// Interleaved reports chunky sample layout in the decoded buffer.
	Interleaved bool

	// Quality in [0, 1] selects lossy quality (JPEG) or compression level
	// (Deflate). Negative means codec default.
	Quality float64

	// Photometric steers JPEG colour handling: RGB suppresses the YCbCr
	// conversion on decode.
	Photometric PhotometricInterpretation

	// JPEGTables is the shared-tables stream of the owning IFD, already
	// spliced into the tile stream by the reader before decode.
	JPEGTables []byte

	// YCbCrSubSampling as read from the IFD (horizontal, vertical);
	// zero values mean unspecified.
	YCbCrSubSampling [2]int
}

// A Codec turns decoded tile pixels into an encoded byte stream and back.
// Implementations must be safe for concurrent use; they hold no session
// state between calls.
type Codec interface {
	Encode(data []byte, opts CodecOptions) ([]byte, error)
	Decode(data []byte, opts CodecOptions) ([]byte, error)
}

var (
	codecMu  sync.RWMutex
	codecs   = map[Compression]Codec{}
	codecsUp sync.Once
)

func registerDefaults() {
	codecs[CompressionNone] = rawCodec{}
	codecs[CompressionLZW] = lzwCodec{}
	codecs[CompressionDeflate] = deflateCodec{}
	codecs[CompressionPackBits] = packBitsCodec{}
	codecs[CompressionJPEG] = jpegCodec{}
	codecs[CompressionCCITTRLE] = ccittCodec{mode: ccittModeRLE}
	codecs[CompressionCCITTT4] = ccittCodec{mode: ccittModeT4}
	codecs[CompressionCCITTT6] = ccittCodec{mode: ccittModeT6}
}

// RegisterCodec installs or replaces the codec for a compression code.
// JPEG-2000 flavours have no built-in codec; callers with a bitstream
// implementation register it here for all four wire codes.
func RegisterCodec(code Compression, c Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecsUp.Do(registerDefaults)
	codecs[code] = c
}

// LookupCodec returns the codec registered for code.
func LookupCodec(code Compression) (Codec, error) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	codecsUp.Do(registerDefaults)
	c, ok := codecs[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %d", ErrUnsupportedCompression, code)
	}
	return c, nil
}

// DefaultCodecOptions derives per-tile codec options from an IFD.
func DefaultCodecOptions(ifd *IFD, tile *Tile) (CodecOptions, error) {
	bits, err := ifd.BitsPerSample()
	if err != nil {
		return CodecOptions{}, err
	}
	_, _, w, h := tile.Rect()
	opts := CodecOptions{
		TileWidth:       w,
		TileHeight:      h,
		SamplesPerPixel: tile.channelsInTile(),
		BitsPerSample:   bits,
		ByteOrder:       ifd.ByteOrder(),
		Interleaved:     ifd.IsChunky(),
		Quality:         -1,
		Photometric:     ifd.Photometric(),
	}
	if tables, ok := ifd.Get(TagJPEGTables).([]byte); ok {
		opts.JPEGTables = tables
	}
	if sub := ifd.uintValues(TagYCbCrSubSampling); len(sub) == 2 {
		opts.YCbCrSubSampling = [2]int{int(sub[0]), int(sub[1])}
	}
	return opts, nil
}
