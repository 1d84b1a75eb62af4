package pyratiff

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

type ccittMode int

const (
	ccittModeRLE ccittMode = iota
	ccittModeT4
	ccittModeT6
)

// ccittCodec implements Compressions 2/3/4 for bilevel images. Decoding is
// delegated to golang.org/x/image/ccitt (Group 3 for codes 2 and 3, Group 4
// for code 4); that package is decode-only and nothing in the pyramid write
// paths produces fax data, so encoding is refused.
//
// Decoded output is unpacked to one byte per pixel (0 or 1) so downstream
// region assembly treats bilevel planes like any other 8-bit buffer. The
// predictor is ignored for these codes.
type ccittCodec struct {
	mode ccittMode
}

func (c ccittCodec) subFormat() ccitt.SubFormat {
	if c.mode == ccittModeT6 {
		return ccitt.Group4
	}
	return ccitt.Group3
}

func (c ccittCodec) Decode(data []byte, opts CodecOptions) ([]byte, error) {
	if opts.BitsPerSample != 1 || opts.SamplesPerPixel != 1 {
		return nil, fmt.Errorf("%w: CCITT requires a single 1-bit channel", ErrUnsupportedPixelLayout)
	}
	w, h := opts.TileWidth, opts.TileHeight
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, c.subFormat(), w, h, &ccitt.Options{
		Invert: opts.Photometric == PhotometricBlackIsZero,
		Align:  false,
	})
	rowBytes := (w + 7) / 8
	packed := make([]byte, rowBytes*h)
	if _, err := io.ReadFull(r, packed); err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("ccitt decode: %w", err)
	}
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := packed[y*rowBytes:]
		for x := 0; x < w; x++ {
			if row[x>>3]&(0x80>>(x&7)) != 0 {
				out[y*w+x] = 1
			}
		}
	}
	return out, nil
}

func (c ccittCodec) Encode(_ []byte, _ CodecOptions) ([]byte, error) {
	return nil, fmt.Errorf("%w: CCITT encoding", ErrUnsupportedCompression)
}
