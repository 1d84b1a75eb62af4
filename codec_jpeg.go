package pyratiff

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// jpegCodec implements Compression 7 with the standard library baseline
// JPEG codec. Decoded samples are always 8-bit: one grayscale channel or
// three chunky RGB channels (the codec performs the YCbCr conversion, and
// Adobe-marked RGB streams come out untouched). Under photometric RGB the
// YCbCr conversion is skipped and the three components are returned as
// stored.
//
// Encoding always emits a JFIF YCbCr (or grayscale) stream; requesting
// photometric RGB on encode is refused because the standard library cannot
// emit the Adobe+SOF RGB variant.
type jpegCodec struct{}

func (jpegCodec) Decode(data []byte, opts CodecOptions) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if opts.SamplesPerPixel == 1 {
		out := make([]byte, w*h)
		if gray, ok := img.(*image.Gray); ok {
			for y := 0; y < h; y++ {
				copy(out[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
			}
			return out, nil
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray).Y
			}
		}
		return out, nil
	}
	out := make([]byte, w*h*3)
	switch src := img.(type) {
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.YCbCrAt(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, b := c.Y, c.Cb, c.Cr
				if opts.Photometric != PhotometricRGB {
					r, g, b = color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				}
				off := (y*w + x) * 3
				out[off], out[off+1], out[off+2] = r, g, b
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				off := (y*w + x) * 3
				srcOff := y*src.Stride + x*4
				out[off], out[off+1], out[off+2] = src.Pix[srcOff], src.Pix[srcOff+1], src.Pix[srcOff+2]
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				off := (y*w + x) * 3
				out[off], out[off+1], out[off+2] = byte(r>>8), byte(g>>8), byte(b>>8)
			}
		}
	}
	return out, nil
}

func (jpegCodec) Encode(data []byte, opts CodecOptions) ([]byte, error) {
	if opts.BitsPerSample != 8 {
		return nil, fmt.Errorf("%w: JPEG encode with %d bits per sample", ErrUnsupportedPixelLayout, opts.BitsPerSample)
	}
	if opts.SamplesPerPixel != 1 && opts.SamplesPerPixel != 3 {
		return nil, fmt.Errorf("%w: JPEG encode with %d channels", ErrUnsupportedPixelLayout, opts.SamplesPerPixel)
	}
	if opts.SamplesPerPixel == 3 && opts.Photometric == PhotometricRGB {
		return nil, fmt.Errorf("%w: RGB-coded JPEG is not writable", ErrUnsupportedPixelLayout)
	}
	w, h := opts.TileWidth, opts.TileHeight
	if len(data) < w*h*opts.SamplesPerPixel {
		return nil, fmt.Errorf("%w: JPEG encode buffer %d bytes for %dx%dx%d",
			ErrUnsupportedPixelLayout, len(data), w, h, opts.SamplesPerPixel)
	}
	var img image.Image
	if opts.SamplesPerPixel == 1 {
		gray := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+w], data[y*w:])
		}
		img = gray
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				srcOff := (y*w + x) * 3
				dstOff := y*rgba.Stride + x*4
				rgba.Pix[dstOff] = data[srcOff]
				rgba.Pix[dstOff+1] = data[srcOff+1]
				rgba.Pix[dstOff+2] = data[srcOff+2]
				rgba.Pix[dstOff+3] = 0xff
			}
		}
		img = rgba
	}
	quality := 85
	if opts.Quality >= 0 {
		q := opts.Quality
		if q > 1 {
			q = 1
		}
		quality = 1 + int(q*99+0.5)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
