// Package pyratiff reads and writes large multi-resolution TIFF and
// BigTIFF images: random-access IFD and tile reads, append-mode writing,
// and per-tile compression pipelines with predictor, fill-order and
// packed-float post-processing.
package pyratiff

// TIFF field types as they appear on the wire.
const (
	TByte      = 1
	TAscii     = 2
	TShort     = 3
	TLong      = 4
	TRational  = 5
	TSByte     = 6
	TUndefined = 7
	TSShort    = 8
	TSLong     = 9
	TSRational = 10
	TFloat     = 11
	TDouble    = 12
	TIFD       = 13
	TLong8     = 16
	TSLong8    = 17
	TIFD8      = 18
)

// typeSize returns the on-disk byte size of a single value of the given
// field type, or 0 for an unknown type (which the reader skips).
func typeSize(typ uint16) uint64 {
	switch typ {
	case TByte, TAscii, TSByte, TUndefined:
		return 1
	case TShort, TSShort:
		return 2
	case TLong, TSLong, TFloat, TIFD:
		return 4
	case TRational, TSRational, TDouble, TLong8, TSLong8, TIFD8:
		return 8
	}
	return 0
}

// Baseline and extension tags used by the core. Values are from TIFF 6.0
// unless noted otherwise.
const (
	TagNewSubfileType            = 254
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagFillOrder                 = 266
	TagDocumentName              = 269
	TagImageDescription          = 270
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagXResolution               = 282
	TagYResolution               = 283
	TagPlanarConfiguration       = 284
	TagResolutionUnit            = 296
	TagSoftware                  = 305
	TagDateTime                  = 306
	TagPredictor                 = 317
	TagColorMap                  = 320
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagSampleFormat              = 339
	TagJPEGTables                = 347
	TagYCbCrSubSampling          = 530
)

// Pseudo-tags attached to an in-core IFD to remember the file context it
// was read with. They are never serialized.
const (
	PseudoTagLittleEndian = 65550
	PseudoTagBigTiff      = 65551
)

type Compression uint16

const (
	CompressionNone           Compression = 1
	CompressionCCITTRLE       Compression = 2
	CompressionCCITTT4        Compression = 3
	CompressionCCITTT6        Compression = 4
	CompressionLZW            Compression = 5
	CompressionJPEG           Compression = 7
	CompressionDeflate        Compression = 8
	CompressionPackBits       Compression = 32773
	CompressionJPEG2000       Compression = 34712
	CompressionJPEG2000Aperio Compression = 33003
	CompressionJP2KLossless   Compression = 33004
	CompressionJP2KAperio     Compression = 33005
)

type PhotometricInterpretation uint16

const (
	PhotometricWhiteIsZero PhotometricInterpretation = 0
	PhotometricBlackIsZero PhotometricInterpretation = 1
	PhotometricRGB         PhotometricInterpretation = 2
	PhotometricPalette     PhotometricInterpretation = 3
	PhotometricMask        PhotometricInterpretation = 4
	PhotometricSeparated   PhotometricInterpretation = 5
	PhotometricYCbCr       PhotometricInterpretation = 6
	PhotometricCIELab      PhotometricInterpretation = 8
	PhotometricICCLab      PhotometricInterpretation = 9
	PhotometricITULab      PhotometricInterpretation = 10
	PhotometricCFA         PhotometricInterpretation = 32803
)

type PlanarConfiguration uint16

const (
	PlanarConfigurationChunky   PlanarConfiguration = 1
	PlanarConfigurationSeparate PlanarConfiguration = 2
)

type Predictor uint16

const (
	PredictorNone       Predictor = 1
	PredictorHorizontal Predictor = 2
)

type SampleFormat uint16

const (
	SampleFormatUInt   SampleFormat = 1
	SampleFormatInt    SampleFormat = 2
	SampleFormatIEEEFP SampleFormat = 3
	SampleFormatVoid   SampleFormat = 4
)

// SampleType is the in-core element kind of one channel sample.
type SampleType int

const (
	SampleUint8 SampleType = iota
	SampleInt8
	SampleUint16
	SampleInt16
	SampleUint32
	SampleInt32
	SampleFloat
	SampleDouble
)

// BitsPerSample reports the nominal bit width of the sample type.
func (t SampleType) BitsPerSample() int {
	switch t {
	case SampleUint8, SampleInt8:
		return 8
	case SampleUint16, SampleInt16:
		return 16
	case SampleUint32, SampleInt32, SampleFloat:
		return 32
	case SampleDouble:
		return 64
	}
	return 0
}

// Signed reports whether the sample type is a signed integer type.
func (t SampleType) Signed() bool {
	return t == SampleInt8 || t == SampleInt16 || t == SampleInt32
}

func (t SampleType) String() string {
	switch t {
	case SampleUint8:
		return "uint8"
	case SampleInt8:
		return "int8"
	case SampleUint16:
		return "uint16"
	case SampleInt16:
		return "int16"
	case SampleUint32:
		return "uint32"
	case SampleInt32:
		return "int32"
	case SampleFloat:
		return "float"
	case SampleDouble:
		return "double"
	}
	return "unknown"
}
