package pyratiff

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the codec core. Callers are expected to test with
// errors.Is; the concrete messages carry the offending tag or value.
var (
	// ErrInvalidFile reports a broken container: wrong magic, an IFD cycle,
	// or a tag payload that cannot even be clamped to the file length.
	ErrInvalidFile = errors.New("invalid TIFF file")

	// ErrUnsupportedIFD reports an IFD the core refuses to process: mixed
	// bit depths, 31-bit overflow on image or tile sizes, or a
	// compression/photometric combination the writer cannot produce.
	ErrUnsupportedIFD = errors.New("unsupported IFD")

	// ErrUnsupportedCompression reports a compression code with no codec
	// registered for it.
	ErrUnsupportedCompression = errors.New("unsupported compression")

	// ErrUnsupportedPixelLayout reports a codec refusing the pixel layout
	// it was handed (e.g. JPEG on 16-bit samples).
	ErrUnsupportedPixelLayout = errors.New("unsupported pixel layout")

	// ErrTiffTooLarge reports that a classic (non-Big) TIFF write would
	// cross the 32-bit file ceiling. Callers retry in BigTIFF mode.
	ErrTiffTooLarge = errors.New("classic TIFF size limit exceeded")

	// ErrResourceExhausted reports that the disjoint-set would grow past
	// MaxObjects. Callers must clear the owning buffer.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidArgument reports an out-of-range caller argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

func invalidFilef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidFile, fmt.Sprintf(format, args...))
}

func unsupportedIFDf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedIFD, fmt.Sprintf(format, args...))
}

func invalidArgf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
