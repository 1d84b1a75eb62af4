package pyratiff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// deflateCodec implements Compression 8 (Adobe deflate): a zlib stream per
// tile. The quality option in [0, 1] maps onto zlib levels 1..9.
type deflateCodec struct{}

func (deflateCodec) Encode(data []byte, opts CodecOptions) ([]byte, error) {
	level := zlib.DefaultCompression
	if opts.Quality >= 0 {
		q := opts.Quality
		if q > 1 {
			q = 1
		}
		level = 1 + int(q*8+0.5)
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("deflate encode: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflate encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decode(data []byte, _ CodecOptions) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("deflate decode: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate decode: %w", err)
	}
	return out, nil
}
