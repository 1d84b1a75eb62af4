package pyratiff

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// MaxImageDim bounds in-core image and tile dimensions: width, height and
// any from+size must fit in 31 bits so that pixel offsets stay inside int32
// arithmetic on every platform.
const MaxImageDim = 1 << 31

// An IFD is a sorted mapping from 16-bit tag to a typed value, together
// with the file context (endianness, BigTIFF) it was read with or will be
// written in. Values are held as native Go slices; the wire type is derived
// from the Go type on serialization:
//
//	[]uint16 -> SHORT, []uint32 -> LONG, []uint64 -> LONG8,
//	[]int8/[]int16/[]int32 -> SBYTE/SSHORT/SLONG,
//	[]float32 -> FLOAT, []float64 -> DOUBLE,
//	string -> ASCII, []byte -> UNDEFINED.
//
// Raw byte payloads therefore round-trip as UNDEFINED even if they were
// declared BYTE in the source file; callers needing strict type fidelity
// must carry the type alongside the value.
type IFD struct {
	entries map[uint16]interface{}

	// file context pseudo-state, never serialized as real entries
	littleEndian bool
	bigTiff      bool

	frozen bool
}

// NewIFD returns an empty little-endian classic-TIFF directory.
func NewIFD() *IFD {
	return &IFD{
		entries:      make(map[uint16]interface{}),
		littleEndian: true,
	}
}

// ByteOrder returns the binary order the IFD was read with or will be
// written in.
func (ifd *IFD) ByteOrder() binary.ByteOrder {
	if ifd.littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (ifd *IFD) LittleEndian() bool { return ifd.littleEndian }
func (ifd *IFD) BigTiff() bool      { return ifd.bigTiff }

// SetByteOrder stamps the endianness pseudo-tag. Fails once frozen.
func (ifd *IFD) SetByteOrder(littleEndian bool) error {
	if ifd.frozen {
		return unsupportedIFDf("IFD is frozen")
	}
	ifd.littleEndian = littleEndian
	return nil
}

// SetBigTiff stamps the BigTIFF pseudo-tag. Fails once frozen.
func (ifd *IFD) SetBigTiff(bigTiff bool) error {
	if ifd.frozen {
		return unsupportedIFDf("IFD is frozen")
	}
	ifd.bigTiff = bigTiff
	return nil
}

// Freeze marks the IFD immutable. A writer freezes every IFD attached to it
// so late mutation cannot desynchronize the serialized directory from the
// tile grid built for it.
func (ifd *IFD) Freeze() { ifd.frozen = true }

func (ifd *IFD) Frozen() bool { return ifd.frozen }

// Get returns the raw typed value stored for tag, or nil.
func (ifd *IFD) Get(tag uint16) interface{} {
	return ifd.entries[tag]
}

// Has reports whether tag is present.
func (ifd *IFD) Has(tag uint16) bool {
	_, ok := ifd.entries[tag]
	return ok
}

// Put stores value for tag. Fails once frozen.
func (ifd *IFD) Put(tag uint16, value interface{}) error {
	if ifd.frozen {
		return unsupportedIFDf("IFD is frozen, cannot set tag %d", tag)
	}
	if value == nil {
		delete(ifd.entries, tag)
		return nil
	}
	ifd.entries[tag] = value
	return nil
}

// Remove deletes tag. Fails once frozen.
func (ifd *IFD) Remove(tag uint16) error {
	if ifd.frozen {
		return unsupportedIFDf("IFD is frozen, cannot remove tag %d", tag)
	}
	delete(ifd.entries, tag)
	return nil
}

// Tags returns all present tags in ascending order.
func (ifd *IFD) Tags() []uint16 {
	tags := make([]uint16, 0, len(ifd.entries))
	for t := range ifd.entries {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Clone returns an unfrozen deep-enough copy (slices are shared; callers
// replace, never mutate in place).
func (ifd *IFD) Clone() *IFD {
	c := &IFD{
		entries:      make(map[uint16]interface{}, len(ifd.entries)),
		littleEndian: ifd.littleEndian,
		bigTiff:      ifd.bigTiff,
	}
	for t, v := range ifd.entries {
		c.entries[t] = v
	}
	return c
}

// uintValues coerces any stored integer slice to []uint64, the common
// currency for size/offset tags that may arrive as SHORT, LONG or LONG8.
func (ifd *IFD) uintValues(tag uint16) []uint64 {
	switch v := ifd.entries[tag].(type) {
	case []uint16:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out
	case []uint32:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out
	case []uint64:
		return v
	case []byte:
		out := make([]uint64, len(v))
		for i, x := range v {
			out[i] = uint64(x)
		}
		return out
	}
	return nil
}

func (ifd *IFD) uintValue(tag uint16, def uint64) uint64 {
	v := ifd.uintValues(tag)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// ImageDimX returns the image width. Values outside 31 bits are rejected.
func (ifd *IFD) ImageDimX() (int, error) {
	return ifd.dim(TagImageWidth, "ImageWidth")
}

// ImageDimY returns the image height.
func (ifd *IFD) ImageDimY() (int, error) {
	return ifd.dim(TagImageLength, "ImageLength")
}

func (ifd *IFD) dim(tag uint16, name string) (int, error) {
	v := ifd.uintValues(tag)
	if len(v) == 0 {
		return 0, unsupportedIFDf("missing %s tag", name)
	}
	if v[0] >= MaxImageDim {
		return 0, unsupportedIFDf("%s %d does not fit in 31 bits", name, v[0])
	}
	return int(v[0]), nil
}

// IsTiled reports whether the image uses tile layout (TileWidth present)
// rather than strip layout.
func (ifd *IFD) IsTiled() bool {
	return ifd.Has(TagTileWidth)
}

// TileSizeX returns the tile width, or the image width for strip layout.
func (ifd *IFD) TileSizeX() (int, error) {
	if ifd.IsTiled() {
		return ifd.dim(TagTileWidth, "TileWidth")
	}
	return ifd.ImageDimX()
}

// TileSizeY returns the tile height; for strip layout this is RowsPerStrip,
// where an absent or zero tag means the whole image height.
func (ifd *IFD) TileSizeY() (int, error) {
	if ifd.IsTiled() {
		return ifd.dim(TagTileLength, "TileLength")
	}
	rows := ifd.uintValue(TagRowsPerStrip, 0)
	if rows == 0 || rows >= MaxImageDim {
		return ifd.ImageDimY()
	}
	dimY, err := ifd.ImageDimY()
	if err != nil {
		return 0, err
	}
	if int(rows) > dimY {
		return dimY, nil
	}
	return int(rows), nil
}

// TilesPerRow returns ceil(dimX / tileSizeX).
func (ifd *IFD) TilesPerRow() (int, error) {
	dimX, err := ifd.ImageDimX()
	if err != nil {
		return 0, err
	}
	tsx, err := ifd.TileSizeX()
	if err != nil {
		return 0, err
	}
	if tsx == 0 {
		return 0, unsupportedIFDf("zero tile width")
	}
	return (dimX + tsx - 1) / tsx, nil
}

// TilesPerColumn returns ceil(dimY / tileSizeY).
func (ifd *IFD) TilesPerColumn() (int, error) {
	dimY, err := ifd.ImageDimY()
	if err != nil {
		return 0, err
	}
	tsy, err := ifd.TileSizeY()
	if err != nil {
		return 0, err
	}
	if tsy == 0 {
		return 0, unsupportedIFDf("zero tile height")
	}
	return (dimY + tsy - 1) / tsy, nil
}

// SamplesPerPixel returns the declared channel count, defaulting to 1.
func (ifd *IFD) SamplesPerPixel() int {
	return int(ifd.uintValue(TagSamplesPerPixel, 1))
}

// BitsPerSample returns the per-channel bit depth. All channels must carry
// the same depth in this implementation.
func (ifd *IFD) BitsPerSample() (int, error) {
	v := ifd.uintValues(TagBitsPerSample)
	if len(v) == 0 {
		return 1, nil
	}
	first := v[0]
	for _, b := range v[1:] {
		if b != first {
			return 0, unsupportedIFDf("mixed bits per sample %v", v)
		}
	}
	if first == 0 || first > 64 {
		return 0, unsupportedIFDf("bits per sample %d out of range", first)
	}
	return int(first), nil
}

// BytesPerSampleByBits returns ceil(bits/8): the packed unit size.
func (ifd *IFD) BytesPerSampleByBits() (int, error) {
	bits, err := ifd.BitsPerSample()
	if err != nil {
		return 0, err
	}
	return (bits + 7) / 8, nil
}

// BytesPerSampleByType rounds the packed unit up to a standard element size
// of 1, 2, 4 or 8 bytes: the unpacked in-core unit.
func (ifd *IFD) BytesPerSampleByType() (int, error) {
	b, err := ifd.BytesPerSampleByBits()
	if err != nil {
		return 0, err
	}
	switch {
	case b <= 1:
		return 1, nil
	case b <= 2:
		return 2, nil
	case b <= 4:
		return 4, nil
	default:
		return 8, nil
	}
}

// SampleType derives the in-core element kind from BitsPerSample and
// SampleFormat.
func (ifd *IFD) SampleType() (SampleType, error) {
	bits, err := ifd.BitsPerSample()
	if err != nil {
		return 0, err
	}
	format := SampleFormat(ifd.uintValue(TagSampleFormat, uint64(SampleFormatUInt)))
	switch format {
	case SampleFormatIEEEFP:
		switch {
		case bits == 16 || bits == 24 || bits == 32:
			return SampleFloat, nil
		case bits == 64:
			return SampleDouble, nil
		}
		return 0, unsupportedIFDf("%d-bit floating point samples", bits)
	case SampleFormatInt:
		switch {
		case bits <= 8:
			return SampleInt8, nil
		case bits <= 16:
			return SampleInt16, nil
		case bits <= 32:
			return SampleInt32, nil
		}
		return 0, unsupportedIFDf("%d-bit signed samples", bits)
	case SampleFormatUInt, SampleFormatVoid:
		switch {
		case bits <= 8:
			return SampleUint8, nil
		case bits <= 16:
			return SampleUint16, nil
		case bits <= 32:
			return SampleUint32, nil
		}
		return 0, unsupportedIFDf("%d-bit unsigned samples", bits)
	}
	return 0, unsupportedIFDf("sample format %d", format)
}

// Compression returns the compression code, defaulting to uncompressed.
func (ifd *IFD) Compression() Compression {
	return Compression(ifd.uintValue(TagCompression, uint64(CompressionNone)))
}

// Photometric returns the photometric interpretation, defaulting to
// BlackIsZero.
func (ifd *IFD) Photometric() PhotometricInterpretation {
	return PhotometricInterpretation(ifd.uintValue(TagPhotometricInterpretation, uint64(PhotometricBlackIsZero)))
}

// Predictor returns the predictor, defaulting to none.
func (ifd *IFD) Predictor() Predictor {
	return Predictor(ifd.uintValue(TagPredictor, uint64(PredictorNone)))
}

// ReversedBitOrder reports FillOrder 2: bits of every byte are stored least
// significant first and must be reversed on read.
func (ifd *IFD) ReversedBitOrder() bool {
	return ifd.uintValue(TagFillOrder, 1) == 2
}

// IsPlanarSeparated reports PlanarConfiguration 2 (per-channel planes).
func (ifd *IFD) IsPlanarSeparated() bool {
	return PlanarConfiguration(ifd.uintValue(TagPlanarConfiguration, uint64(PlanarConfigurationChunky))) == PlanarConfigurationSeparate
}

// IsChunky reports interleaved channel storage.
func (ifd *IFD) IsChunky() bool { return !ifd.IsPlanarSeparated() }

// SeparatedPlanes returns the number of stored planes: SamplesPerPixel for
// separate planar configuration, else 1.
func (ifd *IFD) SeparatedPlanes() int {
	if ifd.IsPlanarSeparated() {
		return ifd.SamplesPerPixel()
	}
	return 1
}

// TileOffsets returns the per-tile file offsets for whichever of tile or
// strip layout is in use.
func (ifd *IFD) TileOffsets() []uint64 {
	if ifd.IsTiled() {
		return ifd.uintValues(TagTileOffsets)
	}
	return ifd.uintValues(TagStripOffsets)
}

// TileByteCounts returns the per-tile encoded lengths.
func (ifd *IFD) TileByteCounts() []uint64 {
	if ifd.IsTiled() {
		return ifd.uintValues(TagTileByteCounts)
	}
	return ifd.uintValues(TagStripByteCounts)
}

// Description returns the ImageDescription tag, or "".
func (ifd *IFD) Description() string {
	if s, ok := ifd.entries[TagImageDescription].(string); ok {
		return s
	}
	return ""
}

// TileCount returns planes * tilesPerColumn * tilesPerRow.
func (ifd *IFD) TileCount() (int, error) {
	nx, err := ifd.TilesPerRow()
	if err != nil {
		return 0, err
	}
	ny, err := ifd.TilesPerColumn()
	if err != nil {
		return 0, err
	}
	return ifd.SeparatedPlanes() * nx * ny, nil
}

// jpegAllowedPhotometrics lists the photometrics the writer accepts per
// channel count under JPEG compression.
func jpegAllowedPhotometrics(channels int) []PhotometricInterpretation {
	if channels == 1 {
		return []PhotometricInterpretation{PhotometricBlackIsZero}
	}
	return []PhotometricInterpretation{PhotometricYCbCr, PhotometricRGB}
}

// CorrectForWriting normalizes and validates the directory before it is
// attached to a writer:
//
//   - BitsPerSample defaults to 8 and must be equal across channels;
//   - strict mode accepts only 8/16/32/64-bit samples, FLOAT only at 32 bits;
//   - Compression defaults to uncompressed; JPEG requires 1 or 3 channels of
//     8-bit unsigned samples;
//   - Photometric is auto-chosen from the channel count and colormap
//     presence when absent, and validated against the per-compression
//     allow-list when present.
//
// The endianness and BigTIFF pseudo-tags of the owning writer are stamped by
// the writer itself.
func (ifd *IFD) CorrectForWriting(strict bool) error {
	if ifd.frozen {
		return unsupportedIFDf("IFD is frozen")
	}
	channels := ifd.SamplesPerPixel()
	if channels < 1 {
		return unsupportedIFDf("samples per pixel %d", channels)
	}
	if !ifd.Has(TagBitsPerSample) {
		bps := make([]uint16, channels)
		for i := range bps {
			bps[i] = 8
		}
		ifd.entries[TagBitsPerSample] = bps
	}
	bits, err := ifd.BitsPerSample()
	if err != nil {
		return err
	}
	if strict {
		switch bits {
		case 8, 16, 32, 64:
		default:
			return unsupportedIFDf("%d bits per sample not writable in strict mode", bits)
		}
	}
	sampleType, err := ifd.SampleType()
	if err != nil {
		return err
	}
	if sampleType == SampleFloat && bits != 32 {
		return unsupportedIFDf("FLOAT samples must be 32-bit on write, have %d", bits)
	}
	if !ifd.Has(TagCompression) {
		ifd.entries[TagCompression] = []uint16{uint16(CompressionNone)}
	}
	compression := ifd.Compression()
	if compression == CompressionJPEG {
		if channels != 1 && channels != 3 {
			return unsupportedIFDf("JPEG requires 1 or 3 channels, have %d", channels)
		}
		if sampleType != SampleUint8 {
			return unsupportedIFDf("JPEG requires 8-bit unsigned samples, have %s", sampleType)
		}
	}
	if !ifd.Has(TagPhotometricInterpretation) {
		var photometric PhotometricInterpretation
		switch {
		case ifd.Has(TagColorMap):
			photometric = PhotometricPalette
		case channels >= 3:
			photometric = PhotometricRGB
		default:
			photometric = PhotometricBlackIsZero
		}
		ifd.entries[TagPhotometricInterpretation] = []uint16{uint16(photometric)}
	} else if compression == CompressionJPEG {
		photometric := ifd.Photometric()
		allowed := jpegAllowedPhotometrics(channels)
		ok := false
		for _, p := range allowed {
			if p == photometric {
				ok = true
				break
			}
		}
		if !ok {
			return unsupportedIFDf("photometric %d not allowed for JPEG with %d channels", photometric, channels)
		}
	}
	return nil
}

// String renders the sorted tag listing, one entry per line.
func (ifd *IFD) String() string {
	var sb strings.Builder
	for _, tag := range ifd.Tags() {
		fmt.Fprintf(&sb, "%d: %v\n", tag, ifd.entries[tag])
	}
	return sb.String()
}
