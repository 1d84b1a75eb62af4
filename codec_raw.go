package pyratiff

// rawCodec is the identity codec for Compression 1.
type rawCodec struct{}

func (rawCodec) Encode(data []byte, _ CodecOptions) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (rawCodec) Decode(data []byte, _ CodecOptions) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
