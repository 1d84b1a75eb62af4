package pyratiff

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

// ReadAtReadSeeker is the seekable byte stream the reader consumes, the
// same contract github.com/google/tiff parses from.
type ReadAtReadSeeker interface {
	io.ReaderAt
	io.ReadSeeker
}

// Rational is an unsigned TIFF RATIONAL value.
type Rational struct {
	Num, Den uint32
}

// SRational is a signed TIFF SRATIONAL value.
type SRational struct {
	Num, Den int32
}

// A Reader parses TIFF and BigTIFF containers and serves random tile and
// region reads. One Reader owns its stream; concurrent reads are allowed
// once the IFD chain has been fully materialized (ReadIFDs), otherwise
// calls are serialized by the internal lock.
type Reader struct {
	mu sync.RWMutex

	r       ReadAtReadSeeker
	closer  io.Closer
	fileLen int64

	order        binary.ByteOrder
	littleEndian bool
	bigTiff      bool

	firstIFDOffset uint64

	caching bool
	ifds    []*IFD
	offsets []uint64

	// nextPositions[i] is the file position of IFD #i's next-IFD cell;
	// the append-mode writer patches the last one.
	nextPositions []uint64

	// filler pre-fills buffers for missing tiles; SVS files use 0xF0.
	filler byte
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithFiller sets the byte used to pre-fill missing tiles and uncovered
// region parts.
func WithFiller(b byte) ReaderOption {
	return func(r *Reader) { r.filler = b }
}

// WithCaching enables eager IFD materialization on open; required before
// the Reader may be shared between goroutines.
func WithCaching(enabled bool) ReaderOption {
	return func(r *Reader) { r.caching = enabled }
}

// WithCloser attaches a closer released by Close; used when the Reader owns
// the underlying file handle.
func WithCloser(c io.Closer) ReaderOption {
	return func(r *Reader) { r.closer = c }
}

// NewReader parses the header of stream and prepares IFD chain walking.
func NewReader(stream ReadAtReadSeeker, options ...ReaderOption) (*Reader, error) {
	r := &Reader{r: stream}
	for _, o := range options {
		o(r)
	}
	var err error
	if r.fileLen, err = stream.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("determine file length: %w", err)
	}
	if err := r.parseHeader(); err != nil {
		if r.closer != nil {
			r.closer.Close()
		}
		return nil, err
	}
	if r.caching {
		if _, err := r.ReadIFDs(); err != nil {
			if r.closer != nil {
				r.closer.Close()
			}
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	var head [16]byte
	if _, err := r.r.ReadAt(head[:8], 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	switch {
	case head[0] == 'I' && head[1] == 'I':
		r.order = binary.LittleEndian
		r.littleEndian = true
	case head[0] == 'M' && head[1] == 'M':
		r.order = binary.BigEndian
	default:
		return invalidFilef("bad byte order mark %q", head[:2])
	}
	switch magic := r.order.Uint16(head[2:4]); magic {
	case 42:
		r.firstIFDOffset = uint64(r.order.Uint32(head[4:8]))
	case 43:
		r.bigTiff = true
		if _, err := r.r.ReadAt(head[8:16], 8); err != nil {
			return fmt.Errorf("read BigTIFF header: %w", err)
		}
		if r.order.Uint16(head[4:6]) != 8 || r.order.Uint16(head[6:8]) != 0 {
			return invalidFilef("bad BigTIFF offset size")
		}
		r.firstIFDOffset = r.order.Uint64(head[8:16])
	default:
		return invalidFilef("bad magic %d", magic)
	}
	return nil
}

func (r *Reader) BigTiff() bool                 { return r.bigTiff }
func (r *Reader) LittleEndian() bool            { return r.littleEndian }
func (r *Reader) ByteOrder() binary.ByteOrder   { return r.order }
func (r *Reader) FileLength() int64             { return r.fileLen }
func (r *Reader) FirstIFDOffset() uint64        { return r.firstIFDOffset }
func (r *Reader) Filler() byte                  { return r.filler }
func (r *Reader) SetFiller(b byte)              { r.filler = b }
func (r *Reader) Stream() ReadAtReadSeeker      { return r.r }
func (r *Reader) CachingEnabled() bool          { return r.caching }
func (r *Reader) IFDOffsets() []uint64          { return r.offsets }

// Close releases the attached closer, if any.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// ReadIFDs walks the whole IFD chain, caching the parsed directories.
// A next-IFD offset pointing at an already-visited directory terminates
// the walk: without this check a cyclic chain would loop forever.
func (r *Reader) ReadIFDs() ([]*IFD, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readIFDsLocked()
}

func (r *Reader) readIFDsLocked() ([]*IFD, error) {
	if r.ifds != nil {
		return r.ifds, nil
	}
	visited := make(map[uint64]bool)
	offset := r.firstIFDOffset
	var ifds []*IFD
	var offsets, nextPositions []uint64
	for offset != 0 {
		if int64(offset) >= r.fileLen {
			return nil, invalidFilef("IFD offset %d beyond file end %d", offset, r.fileLen)
		}
		visited[offset] = true
		ifd, next, nextPos, err := r.readIFDAt(offset)
		if err != nil {
			return nil, err
		}
		ifds = append(ifds, ifd)
		offsets = append(offsets, offset)
		nextPositions = append(nextPositions, nextPos)
		if visited[next] {
			break
		}
		offset = next
	}
	r.ifds = ifds
	r.offsets = offsets
	r.nextPositions = nextPositions
	return ifds, nil
}

// LastIFDOffsetPosition returns the file position of the cell holding the
// final next-IFD offset: the last IFD's next cell, or the header's
// first-IFD cell for an empty chain.
func (r *Reader) LastIFDOffsetPosition() (uint64, error) {
	if _, err := r.ReadIFDs(); err != nil {
		return 0, err
	}
	if n := len(r.nextPositions); n > 0 {
		return r.nextPositions[n-1], nil
	}
	if r.bigTiff {
		return 8, nil
	}
	return 4, nil
}

// NumberOfIFDs returns the chain length, walking it if needed.
func (r *Reader) NumberOfIFDs() (int, error) {
	ifds, err := r.ReadIFDs()
	if err != nil {
		return 0, err
	}
	return len(ifds), nil
}

// IFD returns directory #index.
func (r *Reader) IFD(index int) (*IFD, error) {
	ifds, err := r.ReadIFDs()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ifds) {
		return nil, invalidArgf("IFD index %d out of [0, %d)", index, len(ifds))
	}
	return ifds[index], nil
}

// readIFDAt parses one directory and returns it, the next-IFD offset and
// the file position of the next-IFD cell.
func (r *Reader) readIFDAt(offset uint64) (*IFD, uint64, uint64, error) {
	ifd := NewIFD()
	ifd.littleEndian = r.littleEndian
	ifd.bigTiff = r.bigTiff

	var nEntries uint64
	entryOffset := offset
	if r.bigTiff {
		var buf [8]byte
		if _, err := r.r.ReadAt(buf[:], int64(offset)); err != nil {
			return nil, 0, 0, fmt.Errorf("read IFD count at %d: %w", offset, err)
		}
		nEntries = r.order.Uint64(buf[:])
		entryOffset += 8
	} else {
		var buf [2]byte
		if _, err := r.r.ReadAt(buf[:], int64(offset)); err != nil {
			return nil, 0, 0, fmt.Errorf("read IFD count at %d: %w", offset, err)
		}
		nEntries = uint64(r.order.Uint16(buf[:]))
		entryOffset += 2
	}
	entrySize := uint64(12)
	if r.bigTiff {
		entrySize = 20
	}
	if int64(entryOffset+nEntries*entrySize) > r.fileLen {
		return nil, 0, 0, invalidFilef("IFD at %d with %d entries overruns file", offset, nEntries)
	}
	entryBuf := make([]byte, nEntries*entrySize)
	if _, err := r.r.ReadAt(entryBuf, int64(entryOffset)); err != nil {
		return nil, 0, 0, fmt.Errorf("read IFD entries at %d: %w", entryOffset, err)
	}
	for i := uint64(0); i < nEntries; i++ {
		e := entryBuf[i*entrySize : (i+1)*entrySize]
		tag := r.order.Uint16(e[0:2])
		typ := r.order.Uint16(e[2:4])
		var count uint64
		var inline []byte
		if r.bigTiff {
			count = r.order.Uint64(e[4:12])
			inline = e[12:20]
		} else {
			count = uint64(r.order.Uint32(e[4:8]))
			inline = e[8:12]
		}
		value, err := r.readEntryValue(typ, count, inline)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("tag %d: %w", tag, err)
		}
		if value != nil {
			ifd.entries[tag] = value
		}
	}
	nextOffsetPos := entryOffset + nEntries*entrySize
	var next uint64
	if r.bigTiff {
		var buf [8]byte
		if _, err := r.r.ReadAt(buf[:], int64(nextOffsetPos)); err != nil {
			return nil, 0, 0, fmt.Errorf("read next-IFD offset: %w", err)
		}
		next = r.order.Uint64(buf[:])
	} else {
		var buf [4]byte
		if _, err := r.r.ReadAt(buf[:], int64(nextOffsetPos)); err != nil {
			return nil, 0, 0, fmt.Errorf("read next-IFD offset: %w", err)
		}
		next = uint64(r.order.Uint32(buf[:]))
	}
	return ifd, next, nextOffsetPos, nil
}

// readEntryValue materializes one entry payload. Unknown types yield nil
// and are skipped: TIFF extensions invent new types and a reader must not
// choke on them. Oversize counts are clamped to the remaining file length.
func (r *Reader) readEntryValue(typ uint16, count uint64, inline []byte) (interface{}, error) {
	unit := typeSize(typ)
	if unit == 0 {
		return nil, nil
	}
	byteLen := count * unit
	var raw []byte
	if byteLen <= uint64(len(inline)) {
		raw = inline[:byteLen]
	} else {
		var offset uint64
		if r.bigTiff {
			offset = r.order.Uint64(inline)
		} else {
			offset = uint64(r.order.Uint32(inline))
		}
		if int64(offset) >= r.fileLen {
			return nil, invalidFilef("value offset %d beyond file end", offset)
		}
		if int64(offset+byteLen) > r.fileLen {
			// clamp to what the file can hold and rewrite the count
			avail := uint64(r.fileLen) - offset
			count = avail / unit
			byteLen = count * unit
			if count == 0 {
				return nil, invalidFilef("tag payload at %d truncated below one value", offset)
			}
		}
		raw = make([]byte, byteLen)
		if _, err := r.r.ReadAt(raw, int64(offset)); err != nil {
			return nil, fmt.Errorf("read value at %d: %w", offset, err)
		}
	}
	return decodeValue(typ, count, raw, r.order), nil
}

func decodeValue(typ uint16, count uint64, raw []byte, order binary.ByteOrder) interface{} {
	switch typ {
	case TByte, TUndefined:
		out := make([]byte, count)
		copy(out, raw)
		return out
	case TAscii:
		end := len(raw)
		for end > 0 && raw[end-1] == 0 {
			end--
		}
		return string(raw[:end])
	case TShort:
		out := make([]uint16, count)
		for i := range out {
			out[i] = order.Uint16(raw[i*2:])
		}
		return out
	case TLong, TIFD:
		out := make([]uint32, count)
		for i := range out {
			out[i] = order.Uint32(raw[i*4:])
		}
		return out
	case TLong8, TIFD8:
		out := make([]uint64, count)
		for i := range out {
			out[i] = order.Uint64(raw[i*8:])
		}
		return out
	case TSByte:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out
	case TSShort:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(order.Uint16(raw[i*2:]))
		}
		return out
	case TSLong:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(order.Uint32(raw[i*4:]))
		}
		return out
	case TSLong8:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(order.Uint64(raw[i*8:]))
		}
		return out
	case TRational:
		out := make([]Rational, count)
		for i := range out {
			out[i] = Rational{order.Uint32(raw[i*8:]), order.Uint32(raw[i*8+4:])}
		}
		return out
	case TSRational:
		out := make([]SRational, count)
		for i := range out {
			out[i] = SRational{int32(order.Uint32(raw[i*8:])), int32(order.Uint32(raw[i*8+4:]))}
		}
		return out
	case TFloat:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(raw[i*4:]))
		}
		return out
	case TDouble:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
		return out
	}
	return nil
}

// InCoreBytesPerSample returns the element size of decoded pixels: packed
// 16/24-bit floats expand to 4 bytes, everything else rounds to a standard
// unit.
func (ifd *IFD) InCoreBytesPerSample() (int, error) {
	st, err := ifd.SampleType()
	if err != nil {
		return 0, err
	}
	switch st {
	case SampleFloat:
		return 4, nil
	case SampleDouble:
		return 8, nil
	}
	return ifd.BytesPerSampleByType()
}

// ReadTile reads and decodes tile (plane, xIndex, yIndex) of ifd, applying
// the full post-processing chain: JPEGTables splice, codec decode,
// predictor reversal, fill-order inversion and packed-float expansion.
// A missing tile (zero length or out-of-file offset) yields a buffer
// pre-filled with the reader's filler byte.
func (r *Reader) ReadTile(ifd *IFD, plane, xIndex, yIndex int) ([]byte, error) {
	if !r.caching {
		r.mu.Lock()
		defer r.mu.Unlock()
	} else {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return r.readTileLocked(ifd, plane, xIndex, yIndex)
}

func (r *Reader) readTileLocked(ifd *IFD, plane, xIndex, yIndex int) ([]byte, error) {
	nx, err := ifd.TilesPerRow()
	if err != nil {
		return nil, err
	}
	ny, err := ifd.TilesPerColumn()
	if err != nil {
		return nil, err
	}
	planes := ifd.SeparatedPlanes()
	if plane < 0 || plane >= planes || xIndex < 0 || xIndex >= nx || yIndex < 0 || yIndex >= ny {
		return nil, invalidArgf("tile (%d, %d, %d) out of %dx%dx%d grid", plane, xIndex, yIndex, planes, ny, nx)
	}
	tileIndex := plane*ny*nx + yIndex*nx + xIndex

	w, h, err := r.tileDims(ifd, xIndex, yIndex)
	if err != nil {
		return nil, err
	}
	elem, err := ifd.InCoreBytesPerSample()
	if err != nil {
		return nil, err
	}
	channels := ifd.SamplesPerPixel()
	if ifd.IsPlanarSeparated() {
		channels = 1
	}
	decodedLen := w * h * elem * channels

	offsets := ifd.TileOffsets()
	counts := ifd.TileByteCounts()
	if tileIndex >= len(offsets) || tileIndex >= len(counts) ||
		counts[tileIndex] == 0 || int64(offsets[tileIndex]) >= r.fileLen {
		return fillBuffer(decodedLen, r.filler), nil
	}
	length := counts[tileIndex]
	offset := offsets[tileIndex]
	if int64(offset)+int64(length) > r.fileLen {
		length = uint64(r.fileLen) - offset
	}
	encoded := make([]byte, length)
	if _, err := r.r.ReadAt(encoded, int64(offset)); err != nil {
		return nil, fmt.Errorf("read tile %d at %d: %w", tileIndex, offset, err)
	}

	compression := ifd.Compression()
	codec, err := LookupCodec(compression)
	if err != nil {
		return nil, err
	}
	// the tile rectangle seen by the codec
	tmpTile := &Tile{ifd: ifd, plane: plane, xIndex: xIndex, yIndex: yIndex, w: w, h: h}
	opts, err := DefaultCodecOptions(ifd, tmpTile)
	if err != nil {
		return nil, err
	}
	if compression == CompressionJPEG && len(opts.JPEGTables) > 4 {
		encoded = spliceJPEGTables(opts.JPEGTables, encoded)
	}
	decoded, err := codec.Decode(encoded, opts)
	if err != nil {
		return nil, err
	}
	if ifd.Predictor() == PredictorHorizontal && compressionSupportsPredictor(compression) {
		reversePredictor(decoded, opts)
	}
	if ifd.ReversedBitOrder() {
		invertFillOrder(decoded)
	}
	bits, err := ifd.BitsPerSample()
	if err != nil {
		return nil, err
	}
	if st, _ := ifd.SampleType(); st == SampleFloat {
		switch bits {
		case 16:
			decoded = expandFloat16(decoded, ifd.ByteOrder())
		case 24:
			decoded = expandFloat24(decoded, ifd.ByteOrder())
		}
	}
	if len(decoded) < decodedLen {
		padded := fillBuffer(decodedLen, r.filler)
		copy(padded, decoded)
		decoded = padded
	}
	return decoded[:decodedLen], nil
}

// compressionSupportsPredictor: the CCITT family ignores the predictor tag.
func compressionSupportsPredictor(c Compression) bool {
	switch c {
	case CompressionCCITTRLE, CompressionCCITTT4, CompressionCCITTT6:
		return false
	}
	return true
}

// tileDims mirrors TiffMap.tileDims: strip layout crops border cells,
// tiled layout keeps full cells.
func (r *Reader) tileDims(ifd *IFD, xIndex, yIndex int) (w, h int, err error) {
	tsx, err := ifd.TileSizeX()
	if err != nil {
		return 0, 0, err
	}
	tsy, err := ifd.TileSizeY()
	if err != nil {
		return 0, 0, err
	}
	w, h = tsx, tsy
	if !ifd.IsTiled() {
		dimX, err := ifd.ImageDimX()
		if err != nil {
			return 0, 0, err
		}
		dimY, err := ifd.ImageDimY()
		if err != nil {
			return 0, 0, err
		}
		if x := xIndex * tsx; x+w > dimX {
			w = dimX - x
		}
		if y := yIndex * tsy; y+h > dimY {
			h = dimY - y
		}
	}
	return w, h, nil
}

func fillBuffer(n int, filler byte) []byte {
	buf := make([]byte, n)
	if filler != 0 {
		for i := range buf {
			buf[i] = filler
		}
	}
	return buf
}

// spliceJPEGTables merges the shared quantization/Huffman table stream into
// one tile stream: the table stream minus its trailing EOI, then the tile
// stream minus its leading SOI.
func spliceJPEGTables(tables, tile []byte) []byte {
	t := tables
	if len(t) >= 2 && t[len(t)-2] == 0xff && t[len(t)-1] == 0xd9 {
		t = t[:len(t)-2]
	}
	body := tile
	if len(body) >= 2 && body[0] == 0xff && body[1] == 0xd8 {
		body = body[2:]
	}
	out := make([]byte, 0, len(t)+len(body))
	out = append(out, t...)
	out = append(out, body...)
	return out
}

// ReadRegion assembles the axis-aligned rectangle (fromX, fromY, sizeX,
// sizeY) of ifd. The output is chunky-interleaved for chunky images and
// plane-concatenated for separate planar configuration; uncovered parts
// keep the filler byte. Cancellation is honored between tiles.
func (r *Reader) ReadRegion(ctx context.Context, ifd *IFD, fromX, fromY, sizeX, sizeY int) ([]byte, error) {
	if fromX < 0 || fromY < 0 {
		return nil, invalidArgf("negative origin %d,%d", fromX, fromY)
	}
	if sizeX < 0 || sizeY < 0 || fromX+sizeX > MaxImageDim || fromY+sizeY > MaxImageDim {
		return nil, invalidArgf("region %d,%d %dx%d exceeds 31-bit space", fromX, fromY, sizeX, sizeY)
	}
	elem, err := ifd.InCoreBytesPerSample()
	if err != nil {
		return nil, err
	}
	channels := ifd.SamplesPerPixel()
	out := fillBuffer(sizeX*sizeY*elem*channels, r.filler)
	if sizeX == 0 || sizeY == 0 {
		return out, nil
	}

	dimX, err := ifd.ImageDimX()
	if err != nil {
		return nil, err
	}
	dimY, err := ifd.ImageDimY()
	if err != nil {
		return nil, err
	}
	tsx, err := ifd.TileSizeX()
	if err != nil {
		return nil, err
	}
	tsy, err := ifd.TileSizeY()
	if err != nil {
		return nil, err
	}
	interX0 := fromX
	interY0 := fromY
	interX1 := min(fromX+sizeX, dimX)
	interY1 := min(fromY+sizeY, dimY)
	if interX0 >= interX1 || interY0 >= interY1 {
		return out, nil
	}
	planes := ifd.SeparatedPlanes()
	chTile := channels
	if ifd.IsPlanarSeparated() {
		chTile = 1
	}

	txFirst := interX0 / tsx
	txLast := (interX1 - 1) / tsx
	tyFirst := interY0 / tsy
	tyLast := (interY1 - 1) / tsy

	for p := 0; p < planes; p++ {
		planeOut := out
		if planes > 1 {
			planeOut = out[p*sizeX*sizeY*elem:]
		}
		for ty := tyFirst; ty <= tyLast; ty++ {
			for tx := txFirst; tx <= txLast; tx++ {
				if ctx != nil {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
				}
				tileData, err := r.ReadTile(ifd, p, tx, ty)
				if err != nil {
					return nil, err
				}
				tileX := tx * tsx
				tileY := ty * tsy
				tileW, tileH, err := r.tileDims(ifd, tx, ty)
				if err != nil {
					return nil, err
				}
				insideX0 := max(interX0, tileX)
				insideY0 := max(interY0, tileY)
				insideX1 := min(interX1, tileX+tileW)
				insideY1 := min(interY1, tileY+tileH)
				partW := insideX1 - insideX0
				partH := insideY1 - insideY0
				if partW <= 0 || partH <= 0 {
					continue
				}
				bpp := elem * chTile
				for row := 0; row < partH; row++ {
					srcOff := ((insideY0-tileY+row)*tileW + (insideX0 - tileX)) * bpp
					dstOff := ((insideY0-fromY+row)*sizeX + (insideX0 - fromX)) * bpp
					copy(planeOut[dstOff:dstOff+partW*bpp], tileData[srcOff:])
				}
			}
		}
	}
	return out, nil
}
