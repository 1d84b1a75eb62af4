package pyratiff

// Horizontal differencing (Predictor 2) applied per row over decoded tile
// bytes. The sample stride equals the channel count so each channel is
// differenced against its own previous-pixel value.

// applyPredictor replaces samples with left-neighbour differences before
// compression.
func applyPredictor(data []byte, opts CodecOptions) {
	channels := opts.SamplesPerPixel
	if !opts.Interleaved {
		channels = 1
	}
	w, h := opts.TileWidth, opts.TileHeight
	switch {
	case opts.BitsPerSample <= 8:
		stride := w * channels
		for y := 0; y < h; y++ {
			row := data[y*stride : (y+1)*stride]
			for i := len(row) - 1; i >= channels; i-- {
				row[i] -= row[i-channels]
			}
		}
	case opts.BitsPerSample <= 16:
		stride := w * channels
		for y := 0; y < h; y++ {
			row := data[y*stride*2 : (y+1)*stride*2]
			for i := stride - 1; i >= channels; i-- {
				v := opts.ByteOrder.Uint16(row[i*2:])
				prev := opts.ByteOrder.Uint16(row[(i-channels)*2:])
				opts.ByteOrder.PutUint16(row[i*2:], v-prev)
			}
		}
	default:
		stride := w * channels
		for y := 0; y < h; y++ {
			row := data[y*stride*4 : (y+1)*stride*4]
			for i := stride - 1; i >= channels; i-- {
				v := opts.ByteOrder.Uint32(row[i*4:])
				prev := opts.ByteOrder.Uint32(row[(i-channels)*4:])
				opts.ByteOrder.PutUint32(row[i*4:], v-prev)
			}
		}
	}
}

// reversePredictor undoes horizontal differencing after decompression.
func reversePredictor(data []byte, opts CodecOptions) {
	channels := opts.SamplesPerPixel
	if !opts.Interleaved {
		channels = 1
	}
	w, h := opts.TileWidth, opts.TileHeight
	switch {
	case opts.BitsPerSample <= 8:
		stride := w * channels
		for y := 0; y < h; y++ {
			if (y+1)*stride > len(data) {
				break
			}
			row := data[y*stride : (y+1)*stride]
			for i := channels; i < len(row); i++ {
				row[i] += row[i-channels]
			}
		}
	case opts.BitsPerSample <= 16:
		stride := w * channels
		for y := 0; y < h; y++ {
			if (y+1)*stride*2 > len(data) {
				break
			}
			row := data[y*stride*2 : (y+1)*stride*2]
			for i := channels; i < stride; i++ {
				v := opts.ByteOrder.Uint16(row[i*2:])
				prev := opts.ByteOrder.Uint16(row[(i-channels)*2:])
				opts.ByteOrder.PutUint16(row[i*2:], v+prev)
			}
		}
	default:
		stride := w * channels
		for y := 0; y < h; y++ {
			if (y+1)*stride*4 > len(data) {
				break
			}
			row := data[y*stride*4 : (y+1)*stride*4]
			for i := channels; i < stride; i++ {
				v := opts.ByteOrder.Uint32(row[i*4:])
				prev := opts.ByteOrder.Uint32(row[(i-channels)*4:])
				opts.ByteOrder.PutUint32(row[i*4:], v+prev)
			}
		}
	}
}
