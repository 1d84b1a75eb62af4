package svs

import (
	"encoding/binary"
	"math"

	"github.com/gridscan/pyratiff"
)

// ResizeAverage box-averages a chunky sample buffer from srcW x srcH down
// (or up, by pixel replication of the covering box) to dstW x dstH. The
// element kind follows sampleType; channels are averaged independently.
func ResizeAverage(src []byte, srcW, srcH, dstW, dstH, channels int,
	sampleType pyratiff.SampleType, order binary.ByteOrder) []byte {

	elem := elemSize(sampleType)
	dst := make([]byte, dstW*dstH*channels*elem)
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return dst
	}
	for dy := 0; dy < dstH; dy++ {
		sy0 := dy * srcH / dstH
		sy1 := (dy + 1) * srcH / dstH
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for dx := 0; dx < dstW; dx++ {
			sx0 := dx * srcW / dstW
			sx1 := (dx + 1) * srcW / dstW
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}
			n := float64((sy1 - sy0) * (sx1 - sx0))
			for c := 0; c < channels; c++ {
				acc := 0.0
				for sy := sy0; sy < sy1; sy++ {
					for sx := sx0; sx < sx1; sx++ {
						off := ((sy*srcW + sx) * channels + c) * elem
						acc += readSample(src[off:], sampleType, order)
					}
				}
				off := ((dy*dstW + dx) * channels + c) * elem
				writeSample(dst[off:], acc/n, sampleType, order)
			}
		}
	}
	return dst
}

func elemSize(t pyratiff.SampleType) int {
	switch t {
	case pyratiff.SampleUint8, pyratiff.SampleInt8:
		return 1
	case pyratiff.SampleUint16, pyratiff.SampleInt16:
		return 2
	case pyratiff.SampleUint32, pyratiff.SampleInt32, pyratiff.SampleFloat:
		return 4
	default:
		return 8
	}
}

func readSample(b []byte, t pyratiff.SampleType, order binary.ByteOrder) float64 {
	switch t {
	case pyratiff.SampleUint8:
		return float64(b[0])
	case pyratiff.SampleInt8:
		return float64(int8(b[0]))
	case pyratiff.SampleUint16:
		return float64(order.Uint16(b))
	case pyratiff.SampleInt16:
		return float64(int16(order.Uint16(b)))
	case pyratiff.SampleUint32:
		return float64(order.Uint32(b))
	case pyratiff.SampleInt32:
		return float64(int32(order.Uint32(b)))
	case pyratiff.SampleFloat:
		return float64(math.Float32frombits(order.Uint32(b)))
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

func writeSample(b []byte, v float64, t pyratiff.SampleType, order binary.ByteOrder) {
	switch t {
	case pyratiff.SampleUint8:
		b[0] = byte(clamp(v, 0, 255) + 0.5)
	case pyratiff.SampleInt8:
		b[0] = byte(int8(clamp(v, -128, 127)))
	case pyratiff.SampleUint16:
		order.PutUint16(b, uint16(clamp(v, 0, 65535)+0.5))
	case pyratiff.SampleInt16:
		order.PutUint16(b, uint16(int16(clamp(v, -32768, 32767))))
	case pyratiff.SampleUint32:
		order.PutUint32(b, uint32(clamp(v, 0, float64(^uint32(0)))+0.5))
	case pyratiff.SampleInt32:
		order.PutUint32(b, uint32(int32(clamp(v, math.MinInt32, math.MaxInt32))))
	case pyratiff.SampleFloat:
		order.PutUint32(b, math.Float32bits(float32(v)))
	default:
		order.PutUint64(b, math.Float64bits(v))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
