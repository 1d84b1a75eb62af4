package pyratiff

import (
	"fmt"
	"math"
)

// wireValue derives the on-disk field type, value count and payload bytes
// of one stored entry from its Go type, mirroring the read-side mapping.
func wireValue(value interface{}, ifd *IFD) (typ uint16, count uint64, payload []byte, err error) {
	order := ifd.ByteOrder()
	switch d := value.(type) {
	case []byte:
		return TUndefined, uint64(len(d)), append([]byte(nil), d...), nil
	case string:
		p := make([]byte, len(d)+1)
		copy(p, d)
		return TAscii, uint64(len(d) + 1), p, nil
	case []uint16:
		p := make([]byte, 2*len(d))
		for i, v := range d {
			order.PutUint16(p[i*2:], v)
		}
		return TShort, uint64(len(d)), p, nil
	case []uint32:
		p := make([]byte, 4*len(d))
		for i, v := range d {
			order.PutUint32(p[i*4:], v)
		}
		return TLong, uint64(len(d)), p, nil
	case []uint64:
		p := make([]byte, 8*len(d))
		for i, v := range d {
			order.PutUint64(p[i*8:], v)
		}
		return TLong8, uint64(len(d)), p, nil
	case []int8:
		p := make([]byte, len(d))
		for i, v := range d {
			p[i] = byte(v)
		}
		return TSByte, uint64(len(d)), p, nil
	case []int16:
		p := make([]byte, 2*len(d))
		for i, v := range d {
			order.PutUint16(p[i*2:], uint16(v))
		}
		return TSShort, uint64(len(d)), p, nil
	case []int32:
		p := make([]byte, 4*len(d))
		for i, v := range d {
			order.PutUint32(p[i*4:], uint32(v))
		}
		return TSLong, uint64(len(d)), p, nil
	case []int64:
		p := make([]byte, 8*len(d))
		for i, v := range d {
			order.PutUint64(p[i*8:], uint64(v))
		}
		return TSLong8, uint64(len(d)), p, nil
	case []float32:
		p := make([]byte, 4*len(d))
		for i, v := range d {
			order.PutUint32(p[i*4:], math.Float32bits(v))
		}
		return TFloat, uint64(len(d)), p, nil
	case []float64:
		p := make([]byte, 8*len(d))
		for i, v := range d {
			order.PutUint64(p[i*8:], math.Float64bits(v))
		}
		return TDouble, uint64(len(d)), p, nil
	case []Rational:
		p := make([]byte, 8*len(d))
		for i, v := range d {
			order.PutUint32(p[i*8:], v.Num)
			order.PutUint32(p[i*8+4:], v.Den)
		}
		return TRational, uint64(len(d)), p, nil
	case []SRational:
		p := make([]byte, 8*len(d))
		for i, v := range d {
			order.PutUint32(p[i*8:], uint32(v.Num))
			order.PutUint32(p[i*8+4:], uint32(v.Den))
		}
		return TSRational, uint64(len(d)), p, nil
	}
	return 0, 0, nil, fmt.Errorf("%w: unsupported entry value %T", ErrUnsupportedIFD, value)
}
