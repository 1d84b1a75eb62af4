package scan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SizeUnit selects the coordinate space of the configured ROI.
type SizeUnit int

const (
	UnitPixel SizeUnit = iota
	UnitPixelOfSpecialImage
)

// OpeningMode controls the pyramid file lifecycle around scanning calls.
type OpeningMode int

const (
	OpenAndClose OpeningMode = iota
	Open
	OpenOnResetAndFirstCall
	OpenOnFirstCall
)

// PyramidFormat selects the pyramid driver.
type PyramidFormat int

const (
	FormatAutoByExtension PyramidFormat = iota
	FormatGeneric
	FormatSvs
	FormatCustom
)

// Config is the flat configuration record of the pyramid scanner.
type Config struct {
	File string `json:"file"`

	UseInputRoi bool `json:"use_input_roi"`
	WholeRoi    bool `json:"whole_roi"`

	ResolutionLevel  int    `json:"resolution_level"`
	ScanningSequence string `json:"scanning_sequence"`

	UseMetadata                      bool `json:"use_metadata"`
	RequireNonIntersectingRectangles bool `json:"require_non_intersecting_rectangles"`
	MinimalAnalysedSize              int  `json:"minimal_analysed_size"`

	StartX int64 `json:"start_x"`
	StartY int64 `json:"start_y"`
	SizeX  int64 `json:"size_x"`
	SizeY  int64 `json:"size_y"`

	SizeUnit string `json:"size_unit"`

	EqualizeGrid     bool   `json:"equalize_grid"`
	SpecialImageKind string `json:"special_image_kind"`

	OpeningMode    string `json:"opening_mode"`
	CloseAfterLast string `json:"close_file"`

	PlanePyramidFormat string `json:"plane_pyramid_format"`
	CustomFactoryClass string `json:"custom_factory_class"`
}

// ParseConfig decodes the JSON form of the record.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("scan config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the range constraints.
func (c Config) Validate() error {
	if c.ResolutionLevel < 0 {
		return fmt.Errorf("resolution_level %d must be >= 0", c.ResolutionLevel)
	}
	if c.MinimalAnalysedSize < 0 {
		return fmt.Errorf("minimal_analysed_size %d must be >= 0", c.MinimalAnalysedSize)
	}
	if c.ScanningSequence != "" {
		if _, err := ParseSequence(c.ScanningSequence); err != nil {
			return err
		}
	}
	if c.SizeUnit != "" {
		if _, err := ParseSizeUnit(c.SizeUnit); err != nil {
			return err
		}
	}
	if c.OpeningMode != "" {
		if _, err := ParseOpeningMode(c.OpeningMode); err != nil {
			return err
		}
	}
	return nil
}

// Sequence resolves the scanning sequence, defaulting to none.
func (c Config) Sequence() Sequence {
	s, err := ParseSequence(c.ScanningSequence)
	if err != nil {
		return SequenceNone
	}
	return s
}

// CloseAfterLastFrame resolves the close_file input. Any string other
// than "true" (case-insensitive) means false.
func (c Config) CloseAfterLastFrame() bool {
	return ParseBoolString(c.CloseAfterLast)
}

// ParseBoolString implements the scanner's boolean input convention:
// "true" in any case is true, every other string is false.
func ParseBoolString(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// ParseSizeUnit resolves a size_unit string.
func ParseSizeUnit(s string) (SizeUnit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PIXEL":
		return UnitPixel, nil
	case "PIXEL_OF_SPECIAL_IMAGE":
		return UnitPixelOfSpecialImage, nil
	}
	return UnitPixel, fmt.Errorf("unknown size unit %q", s)
}

// ParseOpeningMode resolves an opening_mode string.
func ParseOpeningMode(s string) (OpeningMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "OPEN_AND_CLOSE":
		return OpenAndClose, nil
	case "OPEN":
		return Open, nil
	case "OPEN_ON_RESET_AND_FIRST_CALL":
		return OpenOnResetAndFirstCall, nil
	case "OPEN_ON_FIRST_CALL":
		return OpenOnFirstCall, nil
	}
	return OpenAndClose, fmt.Errorf("unknown opening mode %q", s)
}

// ParsePyramidFormat resolves a plane_pyramid_format string.
func ParsePyramidFormat(s string) (PyramidFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO_BY_EXTENSION":
		return FormatAutoByExtension, nil
	case "GENERIC":
		return FormatGeneric, nil
	case "SVS":
		return FormatSvs, nil
	case "CUSTOM":
		return FormatCustom, nil
	}
	return FormatAutoByExtension, fmt.Errorf("unknown pyramid format %q", s)
}
