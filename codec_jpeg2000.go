package pyratiff

// JPEG-2000 wire codes (34712 plus the three Aperio dialects) are published
// by the registry but carry no built-in bitstream implementation: the core
// defines only the codec contract. Slide scanners that need them install a
// codec once at startup; until then any use fails ErrUnsupportedCompression
// from LookupCodec.

// JPEG2000Codes lists every JPEG-2000 compression code the SVS dialect uses.
var JPEG2000Codes = []Compression{
	CompressionJPEG2000,
	CompressionJPEG2000Aperio,
	CompressionJP2KLossless,
	CompressionJP2KAperio,
}

// RegisterJPEG2000 installs one codec implementation for all JPEG-2000
// flavours. The lossy/lossless distinction travels in CodecOptions.Quality:
// negative or >= 1 requests lossless, values in (0, 1) lossy (floor 0.3 for
// usable slide imagery).
func RegisterJPEG2000(c Codec) {
	for _, code := range JPEG2000Codes {
		RegisterCodec(code, c)
	}
}
