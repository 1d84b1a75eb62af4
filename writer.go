package pyratiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxClassicTiffOffset is the refusal threshold for classic TIFF output: a
// safety margin below 2^32-1 so offset arithmetic never wraps.
const maxClassicTiffOffset = 4_000_000_000

type writerState int

const (
	writerFresh writerState = iota
	writerHeader
	writerWriting
	writerClosed
)

// WriteSeeker is the stream a Writer produces into.
type WriteSeeker interface {
	io.Writer
	io.Seeker
}

// A Writer produces TIFF or BigTIFF output, either into a fresh stream or
// appended to an existing file. It owns the chain linkage: every IFD
// written with linkage update becomes the new tail of the in-file chain.
type Writer struct {
	mu sync.Mutex

	w       WriteSeeker
	order   binary.ByteOrder
	little  bool
	bigTiff bool
	state   writerState

	// positionOfLastIFDOffset is the file position of the cell that the
	// next appended IFD's start offset must be patched into.
	positionOfLastIFDOffset int64

	// ifdOffsets lists IFD start offsets already in the in-file chain, to
	// prevent linking an IFD twice (which would create a cycle).
	ifdOffsets []uint64

	missingTilesAllowed bool
	strict              bool
	quality             float64
	filler              byte

	// fillerTiles shares one encoded filler tile per tile geometry when
	// missing tiles are not allowed.
	fillerTiles map[[2]int][2]uint64

	file          *os.File
	path          string
	deleteOnError bool

	// forward remembers where forward-declared IFDs landed so Complete
	// can patch their layout arrays in place.
	forward map[*TiffMap]*writtenIFD
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// BigTiff selects the BigTIFF container with 8-byte offsets.
func BigTiff(enabled bool) WriterOption {
	return func(w *Writer) { w.bigTiff = enabled }
}

// BigEndian selects MM byte order; the default is II.
func BigEndian(enabled bool) WriterOption {
	return func(w *Writer) { w.little = !enabled }
}

// MissingTilesAllowed stores (0, 0) for never-written tiles instead of
// sharing an encoded filler tile.
func MissingTilesAllowed(allowed bool) WriterOption {
	return func(w *Writer) { w.missingTilesAllowed = allowed }
}

// Strict enables the strict bit-depth checks of CorrectForWriting.
func Strict(strict bool) WriterOption {
	return func(w *Writer) { w.strict = strict }
}

// Quality sets the lossy quality / compression level in [0, 1] passed to
// codecs. Negative keeps the codec default.
func Quality(q float64) WriterOption {
	return func(w *Writer) { w.quality = q }
}

// WriterFiller sets the byte used for filler tiles.
func WriterFiller(b byte) WriterOption {
	return func(w *Writer) { w.filler = b }
}

// DeleteFileOnError removes the output file when encoding or completion
// fails; only effective for writers opened with NewFileWriter.
func DeleteFileOnError(enabled bool) WriterOption {
	return func(w *Writer) { w.deleteOnError = enabled }
}

// NewWriter wraps an output stream. Call StartNewFile or StartExistingFile
// before writing anything.
func NewWriter(stream WriteSeeker, options ...WriterOption) *Writer {
	w := &Writer{
		w:           stream,
		little:      true,
		quality:     -1,
		fillerTiles: make(map[[2]int][2]uint64),
		forward:     make(map[*TiffMap]*writtenIFD),
	}
	for _, o := range options {
		o(w)
	}
	if w.little {
		w.order = binary.LittleEndian
	} else {
		w.order = binary.BigEndian
	}
	return w
}

// NewFileWriter creates (or opens for append) the file at path.
func NewFileWriter(path string, options ...WriterOption) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := NewWriter(f, options...)
	w.file = f
	w.path = path
	return w, nil
}

func (w *Writer) BigTiff() bool      { return w.bigTiff }
func (w *Writer) LittleEndian() bool { return w.little }

// ByteOrder returns the output byte order.
func (w *Writer) ByteOrder() binary.ByteOrder { return w.order }

// StartNewFile writes the container header. For a writer opened with
// NewFileWriter it also truncates any previous content after the header;
// other streams are not truncated.
func (w *Writer) StartNewFile() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == writerClosed {
		return invalidArgf("writer is closed")
	}
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to start: %w", err)
	}
	if w.bigTiff {
		buf := [16]byte{}
		if w.little {
			copy(buf[0:], "II")
		} else {
			copy(buf[0:], "MM")
		}
		w.order.PutUint16(buf[2:], 43)
		w.order.PutUint16(buf[4:], 8)
		w.order.PutUint16(buf[6:], 0)
		w.order.PutUint64(buf[8:], 0)
		if _, err := w.w.Write(buf[:]); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.positionOfLastIFDOffset = 8
	} else {
		buf := [8]byte{}
		if w.little {
			copy(buf[0:], "II")
		} else {
			copy(buf[0:], "MM")
		}
		w.order.PutUint16(buf[2:], 42)
		w.order.PutUint32(buf[4:], 0)
		if _, err := w.w.Write(buf[:]); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.positionOfLastIFDOffset = 4
	}
	if w.file != nil {
		pos, err := w.file.Seek(0, io.SeekCurrent)
		if err == nil {
			err = w.file.Truncate(pos)
		}
		if err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}
	w.ifdOffsets = nil
	w.state = writerHeader
	return nil
}

// StartExistingFile adopts the header and IFD chain already present in the
// stream (read through rs, which must view the same bytes) and positions
// the writer for appending.
func (w *Writer) StartExistingFile(rs ReadAtReadSeeker) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == writerClosed {
		return invalidArgf("writer is closed")
	}
	reader, err := NewReader(rs)
	if err != nil {
		return err
	}
	if _, err := reader.ReadIFDs(); err != nil {
		return err
	}
	w.bigTiff = reader.BigTiff()
	w.little = reader.LittleEndian()
	w.order = reader.ByteOrder()
	lastPos, err := reader.LastIFDOffsetPosition()
	if err != nil {
		return err
	}
	w.positionOfLastIFDOffset = int64(lastPos)
	w.ifdOffsets = append([]uint64(nil), reader.IFDOffsets()...)
	if _, err := w.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	w.state = writerHeader
	return nil
}

// Close finishes the writer. No implicit flush happens here: maps must be
// completed explicitly.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = writerClosed
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// fail honours deleteOnError before propagating err.
func (w *Writer) fail(err error) error {
	if w.deleteOnError && w.file != nil {
		w.file.Close()
		os.Remove(w.path)
		w.state = writerClosed
	}
	return err
}

func (w *Writer) fileEnd() (int64, error) {
	return w.w.Seek(0, io.SeekEnd)
}

// padToEven appends one zero byte if the stream end is odd, returning the
// (even) end position.
func (w *Writer) padToEven() (int64, error) {
	end, err := w.fileEnd()
	if err != nil {
		return 0, err
	}
	if end%2 == 1 {
		if _, err := w.w.Write([]byte{0}); err != nil {
			return 0, err
		}
		end++
	}
	return end, nil
}

// NewMap prepares an IFD for writing under this writer: validates it,
// stamps the endianness and BigTIFF pseudo-tags, freezes it and builds the
// tile grid.
func (w *Writer) NewMap(ifd *IFD, resizable bool) (*TiffMap, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == writerFresh || w.state == writerClosed {
		return nil, invalidArgf("writer has no open file")
	}
	if err := ifd.CorrectForWriting(w.strict); err != nil {
		return nil, err
	}
	if err := ifd.SetByteOrder(w.little); err != nil {
		return nil, err
	}
	if err := ifd.SetBigTiff(w.bigTiff); err != nil {
		return nil, err
	}
	m, err := NewTiffMap(ifd, resizable)
	if err != nil {
		return nil, err
	}
	ifd.Freeze()
	w.state = writerWriting
	return m, nil
}

// EncodeTile runs the encode pipeline on a tile holding decoded samples:
// interleave if the map carried separated samples, predictor, codec encode,
// fill-order inversion.
func (w *Writer) EncodeTile(m *TiffMap, tile *Tile) error {
	if tile.decoded == nil {
		return invalidArgf("tile has no decoded samples")
	}
	ifd := m.IFD()
	opts, err := DefaultCodecOptions(ifd, tile)
	if err != nil {
		return err
	}
	opts.Quality = w.quality
	data := tile.decoded
	if tile.separated && ifd.IsChunky() {
		data = interleaveSamples(data, opts)
	} else {
		data = append([]byte(nil), data...)
	}
	if ifd.Predictor() == PredictorHorizontal && compressionSupportsPredictor(ifd.Compression()) {
		applyPredictor(data, opts)
	}
	codec, err := LookupCodec(ifd.Compression())
	if err != nil {
		return err
	}
	encoded, err := codec.Encode(data, opts)
	if err != nil {
		return err
	}
	if ifd.ReversedBitOrder() {
		invertFillOrder(encoded)
	}
	tile.encoded = encoded
	return nil
}

// interleaveSamples converts RRR…GGG…BBB… planes into chunky pixel order.
func interleaveSamples(data []byte, opts CodecOptions) []byte {
	elem := (opts.BitsPerSample + 7) / 8
	switch {
	case elem <= 1:
		elem = 1
	case elem <= 2:
		elem = 2
	case elem <= 4:
		elem = 4
	default:
		elem = 8
	}
	pixels := opts.TileWidth * opts.TileHeight
	channels := opts.SamplesPerPixel
	out := make([]byte, pixels*channels*elem)
	for c := 0; c < channels; c++ {
		plane := data[c*pixels*elem:]
		for i := 0; i < pixels; i++ {
			copy(out[(i*channels+c)*elem:(i*channels+c+1)*elem], plane[i*elem:])
		}
	}
	return out
}

// WriteEncodedTile appends the tile's encoded bytes at EOF (the file is
// first padded to even length, for classic TIFF and BigTIFF alike, so tile
// offsets are always even), refuses classic TIFF writes past the 32-bit
// ceiling, records the file range on the tile and optionally frees the
// buffer.
func (w *Writer) WriteEncodedTile(tile *Tile, freeAfter bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeEncodedTileLocked(tile, freeAfter)
}

func (w *Writer) writeEncodedTileLocked(tile *Tile, freeAfter bool) error {
	if tile.encoded == nil {
		return invalidArgf("tile has no encoded bytes")
	}
	end, err := w.padToEven()
	if err != nil {
		return w.fail(err)
	}
	if !w.bigTiff && end+int64(len(tile.encoded)) > maxClassicTiffOffset {
		return fmt.Errorf("%w: tile write would end at %d", ErrTiffTooLarge, end+int64(len(tile.encoded)))
	}
	if _, err := w.w.Write(tile.encoded); err != nil {
		return w.fail(fmt.Errorf("write tile: %w", err))
	}
	tile.setFileRange(uint64(end), uint64(len(tile.encoded)))
	if freeAfter {
		tile.encoded = nil
	}
	return nil
}

// writtenIFD records where the serialized IFD landed so forward-declared
// directories can be patched in place later.
type writtenIFD struct {
	start   int64
	nextPos int64

	// payloadPos maps tag -> file position of its out-of-line payload
	payloadPos map[uint16]int64
}

// WriteIFDAtFileEnd serializes the IFD at EOF (even-aligned) and links it
// into the chain.
func (w *Writer) WriteIFDAtFileEnd(ifd *IFD, markLast bool) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wi, err := w.writeIFDLocked(ifd, -1, true, markLast)
	if err != nil {
		return 0, err
	}
	return wi.start, nil
}

// writeIFDLocked serializes ifd. offset < 0 means append at even-aligned
// EOF. With updateLinkages the previous chain tail is patched to point
// here, and with markLast the writer's tail becomes this IFD's next cell.
func (w *Writer) writeIFDLocked(ifd *IFD, offset int64, updateLinkages, markLast bool) (*writtenIFD, error) {
	if w.state != writerWriting && w.state != writerHeader {
		return nil, invalidArgf("writer has no open file")
	}
	start := offset
	var err error
	if start < 0 {
		if start, err = w.padToEven(); err != nil {
			return nil, w.fail(err)
		}
	}
	if !w.bigTiff && start > maxClassicTiffOffset {
		return nil, fmt.Errorf("%w: IFD would start at %d", ErrTiffTooLarge, start)
	}

	tags := ifd.Tags()
	nEntries := uint64(len(tags))
	entrySize := int64(12)
	countSize := int64(2)
	nextSize := int64(4)
	inlineCap := 4
	if w.bigTiff {
		entrySize, countSize, nextSize, inlineCap = 20, 8, 8, 8
	}
	nextPos := start + countSize + int64(nEntries)*entrySize
	extraStart := nextPos + nextSize

	head := make([]byte, countSize)
	if w.bigTiff {
		w.order.PutUint64(head, nEntries)
	} else {
		w.order.PutUint16(head, uint16(nEntries))
	}
	body := make([]byte, 0, int64(nEntries)*entrySize)
	var extra []byte
	payloadPos := make(map[uint16]int64, 4)

	for _, tag := range tags {
		typ, count, payload, err := wireValue(ifd.Get(tag), ifd)
		if err != nil {
			return nil, err
		}
		cell := make([]byte, entrySize)
		w.order.PutUint16(cell[0:2], tag)
		w.order.PutUint16(cell[2:4], typ)
		var valueCell []byte
		if w.bigTiff {
			w.order.PutUint64(cell[4:12], count)
			valueCell = cell[12:20]
		} else {
			w.order.PutUint32(cell[4:8], uint32(count))
			valueCell = cell[8:12]
		}
		if len(payload) <= inlineCap {
			copy(valueCell, payload)
		} else {
			pos := extraStart + int64(len(extra))
			if !w.bigTiff {
				if pos+int64(len(payload)) > maxClassicTiffOffset {
					return nil, fmt.Errorf("%w: tag payload would end beyond ceiling", ErrTiffTooLarge)
				}
				w.order.PutUint32(valueCell, uint32(pos))
			} else {
				w.order.PutUint64(valueCell, uint64(pos))
			}
			payloadPos[tag] = pos
			extra = append(extra, payload...)
			if len(extra)%2 == 1 {
				extra = append(extra, 0)
			}
		}
		body = append(body, cell...)
	}

	next := make([]byte, nextSize)

	if _, err := w.w.Seek(start, io.SeekStart); err != nil {
		return nil, w.fail(fmt.Errorf("seek to IFD start: %w", err))
	}
	for _, chunk := range [][]byte{head, body, next, extra} {
		if _, err := w.w.Write(chunk); err != nil {
			return nil, w.fail(fmt.Errorf("write IFD: %w", err))
		}
	}

	if updateLinkages {
		already := false
		for _, o := range w.ifdOffsets {
			if o == uint64(start) {
				already = true
				break
			}
		}
		if !already {
			if err := w.patchOffsetCell(w.positionOfLastIFDOffset, uint64(start)); err != nil {
				return nil, w.fail(err)
			}
			w.ifdOffsets = append(w.ifdOffsets, uint64(start))
		}
		if markLast {
			w.positionOfLastIFDOffset = nextPos
		}
	}
	if _, err := w.w.Seek(0, io.SeekEnd); err != nil {
		return nil, w.fail(fmt.Errorf("seek to end: %w", err))
	}
	return &writtenIFD{start: start, nextPos: nextPos, payloadPos: payloadPos}, nil
}

// patchOffsetCell rewrites one offset cell (4 or 8 bytes) in place.
func (w *Writer) patchOffsetCell(pos int64, value uint64) error {
	if _, err := w.w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to offset cell: %w", err)
	}
	var buf []byte
	if w.bigTiff {
		buf = make([]byte, 8)
		w.order.PutUint64(buf, value)
	} else {
		buf = make([]byte, 4)
		w.order.PutUint32(buf, uint32(value))
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("patch offset cell: %w", err)
	}
	return nil
}

// WriteForward serializes the IFD of a non-resizable map before any tile
// data, with zero placeholder offsets and byte counts, so readers find the
// directory near the start of the file. Complete later patches the arrays
// in place.
func (w *Writer) WriteForward(m *TiffMap) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m.Resizable() {
		return invalidArgf("cannot forward-declare a resizable map")
	}
	ifd := m.IFD()
	if err := w.stampLayout(m, make([]uint64, m.TileCount()), make([]uint64, m.TileCount())); err != nil {
		return err
	}
	wi, err := w.writeIFDLocked(ifd, -1, true, true)
	if err != nil {
		return err
	}
	w.forward[m] = wi
	return nil
}

// stampLayout stores the offset/count arrays into the (frozen) IFD,
// bypassing the freeze: layout tags are owned by the writer.
func (w *Writer) stampLayout(m *TiffMap, offsets, counts []uint64) error {
	ifd := m.IFD()
	offTag, cntTag := uint16(TagTileOffsets), uint16(TagTileByteCounts)
	if !ifd.IsTiled() {
		offTag, cntTag = TagStripOffsets, TagStripByteCounts
	}
	if w.bigTiff {
		ifd.entries[offTag] = offsets
		cnts := make([]uint64, len(counts))
		copy(cnts, counts)
		ifd.entries[cntTag] = cnts
		return nil
	}
	off32 := make([]uint32, len(offsets))
	for i, o := range offsets {
		if o > maxClassicTiffOffset {
			return fmt.Errorf("%w: tile offset %d", ErrTiffTooLarge, o)
		}
		off32[i] = uint32(o)
	}
	cnt32 := make([]uint32, len(counts))
	for i, c := range counts {
		cnt32[i] = uint32(c)
	}
	ifd.entries[offTag] = off32
	ifd.entries[cntTag] = cnt32
	return nil
}

// fillerTileRange returns the shared file range of an encoded filler tile
// of the given geometry, writing it once on first use.
func (w *Writer) fillerTileRange(m *TiffMap, tw, th int) ([2]uint64, error) {
	key := [2]int{tw, th}
	if r, ok := w.fillerTiles[key]; ok {
		return r, nil
	}
	bpp, err := m.bytesPerPixelInTile()
	if err != nil {
		return [2]uint64{}, err
	}
	tile := &Tile{
		ifd: m.IFD(),
		w:   tw, h: th,
		decoded: fillBuffer(tw*th*bpp, w.filler),
	}
	if err := w.EncodeTile(m, tile); err != nil {
		return [2]uint64{}, err
	}
	if err := w.writeEncodedTileLocked(tile, true); err != nil {
		return [2]uint64{}, err
	}
	r := [2]uint64{tile.offset, tile.length}
	w.fillerTiles[key] = r
	return r, nil
}

// Complete finalises a map: resizable maps get their final dimensions,
// remaining decoded tiles are encoded and flushed, missing tiles are
// resolved per policy, and the IFD is written (or patched, if it was
// forward-declared).
func (w *Writer) Complete(m *TiffMap) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ifd := m.IFD()
	if m.Resizable() {
		ifd.frozen = false
		ifd.entries[TagImageWidth] = []uint32{uint32(m.DimX())}
		ifd.entries[TagImageLength] = []uint32{uint32(m.DimY())}
		if !ifd.IsTiled() {
			ifd.entries[TagRowsPerStrip] = []uint32{uint32(m.TileSizeY())}
		}
		ifd.frozen = true
	}

	// encode and flush every tile still holding decoded samples
	for _, tile := range m.Tiles() {
		if tile.Empty() {
			continue
		}
		if !tile.HasEncoded() && tile.HasDecoded() {
			if err := w.EncodeTile(m, tile); err != nil {
				return w.fail(err)
			}
		}
		if tile.HasEncoded() && !tile.Stored() {
			if err := w.writeEncodedTileLocked(tile, true); err != nil {
				return w.fail(err)
			}
		}
	}

	nx, ny := m.TilesPerRow(), m.TilesPerColumn()
	offsets := make([]uint64, m.TileCount())
	counts := make([]uint64, m.TileCount())
	for p := 0; p < m.Planes(); p++ {
		for ty := 0; ty < ny; ty++ {
			for tx := 0; tx < nx; tx++ {
				idx := p*ny*nx + ty*nx + tx
				tile := m.Existing(p, tx, ty)
				if tile != nil && tile.Stored() && !tile.Empty() {
					offsets[idx], counts[idx] = tile.offset, tile.length
					continue
				}
				if w.missingTilesAllowed {
					continue
				}
				tw, th := m.tileDims(tx, ty)
				r, err := w.fillerTileRange(m, tw, th)
				if err != nil {
					return w.fail(err)
				}
				offsets[idx], counts[idx] = r[0], r[1]
			}
		}
	}

	ifd.frozen = false
	err := w.stampLayout(m, offsets, counts)
	ifd.frozen = true
	if err != nil {
		return w.fail(err)
	}

	wi := w.forward[m]
	delete(w.forward, m)
	if wi != nil {
		if err := w.patchForward(m, wi, offsets, counts); err != nil {
			return w.fail(err)
		}
		return nil
	}
	if _, err := w.writeIFDLocked(ifd, -1, true, true); err != nil {
		return w.fail(err)
	}
	return nil
}

// patchForward rewrites the offset and byte-count payloads of a
// forward-declared IFD in place.
func (w *Writer) patchForward(m *TiffMap, wi *writtenIFD, offsets, counts []uint64) error {
	ifd := m.IFD()
	offTag, cntTag := uint16(TagTileOffsets), uint16(TagTileByteCounts)
	if !ifd.IsTiled() {
		offTag, cntTag = TagStripOffsets, TagStripByteCounts
	}
	for _, patch := range []struct {
		tag    uint16
		values []uint64
	}{{offTag, offsets}, {cntTag, counts}} {
		pos, ok := wi.payloadPos[patch.tag]
		if !ok {
			// the array fit inline (single-tile map): rewrite the whole IFD
			// at its original location
			if _, err := w.writeIFDLocked(ifd, wi.start, false, false); err != nil {
				return err
			}
			return nil
		}
		_, _, payload, err := wireValue(ifd.Get(patch.tag), ifd)
		if err != nil {
			return err
		}
		if _, err := w.w.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("seek to payload: %w", err)
		}
		if _, err := w.w.Write(payload); err != nil {
			return fmt.Errorf("patch payload: %w", err)
		}
	}
	_, err := w.w.Seek(0, io.SeekEnd)
	return err
}
