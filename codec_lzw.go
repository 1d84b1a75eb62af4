package pyratiff

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// lzwCodec implements Compression 5: TIFF-flavoured LZW with MSB-first bit
// order and the "early change" code-width switch. Decoding is delegated to
// golang.org/x/image/tiff/lzw; that package is reader-only and the standard
// library's compress/lzw cannot produce the early-change variant, so the
// encoder is implemented here against the same rules the reader expects.
type lzwCodec struct{}

const (
	lzwClearCode = 256
	lzwEOICode   = 257
	lzwFirstFree = 258
	lzwMaxCode   = 4094
)

func (lzwCodec) Decode(data []byte, _ CodecOptions) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("lzw decode: %w", err)
	}
	return out, nil
}

type lzwBitWriter struct {
	buf   bytes.Buffer
	acc   uint32
	nbits uint
}

func (w *lzwBitWriter) write(code uint32, width uint) {
	w.acc = w.acc<<width | code
	w.nbits += width
	for w.nbits >= 8 {
		w.nbits -= 8
		w.buf.WriteByte(byte(w.acc >> w.nbits))
	}
}

func (w *lzwBitWriter) flush() {
	if w.nbits > 0 {
		w.buf.WriteByte(byte(w.acc << (8 - w.nbits)))
		w.nbits = 0
	}
}

func (lzwCodec) Encode(data []byte, _ CodecOptions) ([]byte, error) {
	w := &lzwBitWriter{}
	width := uint(9)
	nextFree := uint32(lzwFirstFree)
	table := make(map[uint32]uint32, 1<<12)

	reset := func() {
		width = 9
		nextFree = lzwFirstFree
		for k := range table {
			delete(table, k)
		}
	}

	w.write(lzwClearCode, width)
	if len(data) == 0 {
		w.write(lzwEOICode, width)
		w.flush()
		return w.buf.Bytes(), nil
	}

	prefix := uint32(data[0])
	for _, b := range data[1:] {
		key := prefix<<8 | uint32(b)
		if code, ok := table[key]; ok {
			prefix = code
			continue
		}
		w.write(prefix, width)
		table[key] = nextFree
		nextFree++
		// early change: the code width grows one code before the
		// power-of-two boundary
		if nextFree == 1<<width && width < 12 {
			width++
		}
		if nextFree >= lzwMaxCode {
			w.write(lzwClearCode, width)
			reset()
		}
		prefix = uint32(b)
	}
	w.write(prefix, width)
	// the reader counts the last code as well and may widen before EOI
	nextFree++
	if nextFree == 1<<width && width < 12 {
		width++
	}
	w.write(lzwEOICode, width)
	w.flush()
	return w.buf.Bytes(), nil
}
