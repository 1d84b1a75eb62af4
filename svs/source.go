package svs

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gridscan/pyratiff"
)

// DefaultFiller is the background byte of SVS slide scans: the near-white
// glass outside the scanned area.
const DefaultFiller = 0xF0

// WholeSlideGeometry embeds the pyramid image into the metric coordinate
// system of the macro photograph.
type WholeSlideGeometry struct {
	// slide extents in microns; a standard 75x26 mm slide by default
	SlideWidthMicrons  float64
	SlideHeightMicrons float64

	// offset of the scanned area's top-left corner on the slide
	ImageLeftMicrons float64
	ImageTopMicrons  float64

	// level-0 pixel size
	PixelSizeMicrons float64
}

func (g WholeSlideGeometry) valid() bool {
	return g.PixelSizeMicrons > 0 && g.SlideWidthMicrons > 0 && g.SlideHeightMicrons > 0
}

// A Source serves multi-level region reads from one SVS (or plain
// pyramidal TIFF) file. Lazy initialization is idempotent: a failed open
// leaves the source closed with no leaked handles. Concurrent reads hold
// the read lock; (re)opening upgrades to the write lock.
type Source struct {
	mu sync.RWMutex

	path   string
	reader *pyratiff.Reader
	ifds   []*pyratiff.IFD
	cls    Classification
	pyr    Pyramid
	meta   *Metadata
	geom   WholeSlideGeometry

	opened bool
	closed bool

	filler              byte
	explicitCompression bool
	combineWholeSlide   bool
	skipCoarseData      bool
	dataBorderWidth     int
	borderColor         byte
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// ExplicitCompressionClassification resolves the label/macro pair by the
// (LZW, JPEG) compression convention instead of aspect heuristics.
func ExplicitCompressionClassification(enabled bool) SourceOption {
	return func(s *Source) { s.explicitCompression = enabled }
}

// CombineWithWholeSlide publishes the pyramid in the macro image's
// coordinate system, serving out-of-scan areas from the macro photograph.
func CombineWithWholeSlide(enabled bool) SourceOption {
	return func(s *Source) { s.combineWholeSlide = enabled }
}

// SkipCoarseData returns filler instead of macro-resampled pixels for
// reads fully outside the scanned area.
func SkipCoarseData(enabled bool) SourceOption {
	return func(s *Source) { s.skipCoarseData = enabled }
}

// DataBorderWidth paints a border of the given pixel width around the
// scanned area when composing with the macro image.
func DataBorderWidth(width int, color byte) SourceOption {
	return func(s *Source) {
		s.dataBorderWidth = width
		s.borderColor = color
	}
}

// SourceFiller overrides the background byte.
func SourceFiller(b byte) SourceOption {
	return func(s *Source) { s.filler = b }
}

// Geometry overrides the whole-slide geometry derived from the image
// description.
func Geometry(g WholeSlideGeometry) SourceOption {
	return func(s *Source) { s.geom = g }
}

// OpenFile prepares a Source over path. The file is not touched until the
// first read (or an explicit Open).
func OpenFile(path string, options ...SourceOption) *Source {
	s := &Source{path: path, filler: DefaultFiller}
	for _, o := range options {
		o(s)
	}
	return s
}

// Open materializes the reader, classification and pyramid structure now.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Source) openLocked() error {
	if s.opened {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open pyramid %s: %w", s.path, err)
	}
	reader, err := pyratiff.NewReader(f, pyratiff.WithCaching(true),
		pyratiff.WithFiller(s.filler), pyratiff.WithCloser(f))
	if err != nil {
		f.Close()
		return err
	}
	ifds, err := reader.ReadIFDs()
	if err != nil {
		reader.Close()
		return err
	}
	if len(ifds) == 0 {
		reader.Close()
		return fmt.Errorf("%w: no IFDs in %s", pyratiff.ErrInvalidFile, s.path)
	}
	cls := Classify(ifds, s.explicitCompression)
	pyr, err := assemblePyramid(ifds, cls)
	if err != nil {
		reader.Close()
		return err
	}
	if s.combineWholeSlide && pyr.canSynthesize() {
		pyr.synthesizeVirtualLevels()
	}
	if !s.geom.valid() {
		s.geom = deriveGeometry(ifds[0].Description(), s.geom)
	}
	s.reader = reader
	s.ifds = ifds
	s.cls = cls
	s.pyr = pyr
	s.meta = LoadMetadata(s.path)
	s.opened = true
	s.closed = false
	return nil
}

// deriveGeometry fills geometry from the Aperio description fields,
// keeping any explicitly set values.
func deriveGeometry(description string, g WholeSlideGeometry) WholeSlideGeometry {
	if g.PixelSizeMicrons == 0 {
		g.PixelSizeMicrons = ParsePixelSize(description)
	}
	if g.SlideWidthMicrons == 0 {
		g.SlideWidthMicrons = 75000
	}
	if g.SlideHeightMicrons == 0 {
		g.SlideHeightMicrons = 26000
	}
	return g
}

// Close releases the file handle. The source can be reopened by the next
// read.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Source) closeLocked() error {
	if !s.opened {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	s.ifds = nil
	s.opened = false
	s.closed = true
	return err
}

// Closed reports whether the source currently holds no file handle.
func (s *Source) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.opened
}

func (s *Source) Path() string { return s.path }

// ensureOpen takes the read lock with the source open, upgrading to the
// write lock for lazy initialization. The returned release function drops
// the read lock.
func (s *Source) ensureOpen() (func(), error) {
	s.mu.RLock()
	if s.opened {
		return s.mu.RUnlock, nil
	}
	s.mu.RUnlock()
	s.mu.Lock()
	if err := s.openLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	s.mu.RLock()
	if !s.opened {
		s.mu.RUnlock()
		return nil, fmt.Errorf("pyramid %s closed concurrently", s.path)
	}
	return s.mu.RUnlock, nil
}

// NumberOfResolutions returns the published level count.
func (s *Source) NumberOfResolutions() (int, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}
	defer release()
	return len(s.pyr.Levels), nil
}

// Compression returns the published inter-level factor.
func (s *Source) Compression() (int, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}
	defer release()
	return s.pyr.Compression, nil
}

// ActualCompression returns the factor between physically stored levels.
func (s *Source) ActualCompression() (int, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}
	defer release()
	return s.pyr.ActualCompression, nil
}

// LevelDimensions returns [bandCount, dimX, dimY] of one published level.
// With whole-slide composition the dimensions are the whole slide's, not
// the scanned area's.
func (s *Source) LevelDimensions(level int) ([3]int, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return [3]int{}, err
	}
	defer release()
	if level < 0 || level >= len(s.pyr.Levels) {
		return [3]int{}, fmt.Errorf("%w: level %d of %d", pyratiff.ErrInvalidArgument, level, len(s.pyr.Levels))
	}
	l := s.pyr.Levels[level]
	if s.composing() {
		w, h := s.wholeSlideDims(level)
		return [3]int{l.BandCount, w, h}, nil
	}
	return [3]int{l.BandCount, l.DimX, l.DimY}, nil
}

// Classification returns the special-image assignment.
func (s *Source) Classification() (Classification, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return Classification{}, err
	}
	defer release()
	return s.cls, nil
}

// Metadata returns the sidecar content, or nil.
func (s *Source) Metadata() (*Metadata, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.meta, nil
}

// PixelSize returns the level-0 micron-per-pixel value, or 0.
func (s *Source) PixelSize() (float64, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}
	defer release()
	return s.geom.PixelSizeMicrons, nil
}

// SpecialImage reads a whole auxiliary image, returning its samples plus
// [bandCount, dimX, dimY].
func (s *Source) SpecialImage(ctx context.Context, kind SpecialKind) ([]byte, [3]int, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return nil, [3]int{}, err
	}
	defer release()
	index := s.cls.IndexOf(kind)
	if kind == KindWholeSlide {
		index = s.cls.Macro
	}
	if index < 0 || index >= len(s.ifds) {
		return nil, [3]int{}, fmt.Errorf("%w: no %s image", pyratiff.ErrInvalidArgument, kind)
	}
	ifd := s.ifds[index]
	w, err := ifd.ImageDimX()
	if err != nil {
		return nil, [3]int{}, err
	}
	h, err := ifd.ImageDimY()
	if err != nil {
		return nil, [3]int{}, err
	}
	data, err := s.reader.ReadRegion(ctx, ifd, 0, 0, w, h)
	if err != nil {
		return nil, [3]int{}, err
	}
	return data, [3]int{ifd.SamplesPerPixel(), w, h}, nil
}

func (s *Source) composing() bool {
	return s.combineWholeSlide && s.geom.valid() && s.cls.Macro >= 0
}

// wholeSlideDims returns the whole-slide pixel size at a published level.
func (s *Source) wholeSlideDims(level int) (int, int) {
	mpp := s.geom.PixelSizeMicrons * float64(powInt(s.pyr.Compression, level))
	w := int(s.geom.SlideWidthMicrons/mpp + 0.5)
	h := int(s.geom.SlideHeightMicrons/mpp + 0.5)
	return w, h
}

// actualArea returns the scanned image's rectangle inside the whole-slide
// coordinate system of a published level.
func (s *Source) actualArea(level int) (x, y, w, h int) {
	l := s.pyr.Levels[level]
	div := float64(powInt(s.pyr.Compression, level))
	x = int(s.geom.ImageLeftMicrons/(s.geom.PixelSizeMicrons*div) + 0.5)
	y = int(s.geom.ImageTopMicrons/(s.geom.PixelSizeMicrons*div) + 0.5)
	return x, y, l.DimX, l.DimY
}

func powInt(base, exp int) int {
	v := 1
	for i := 0; i < exp; i++ {
		v *= base
	}
	return v
}

// ActualRectangle returns (minX, maxX, minY, maxY) of real scanned data at
// a level: the actual area when composing, the full level otherwise.
func (s *Source) ActualRectangle(level int) ([4]int, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return [4]int{}, err
	}
	defer release()
	if level < 0 || level >= len(s.pyr.Levels) {
		return [4]int{}, fmt.Errorf("%w: level %d", pyratiff.ErrInvalidArgument, level)
	}
	l := s.pyr.Levels[level]
	if !s.composing() {
		return [4]int{0, l.DimX - 1, 0, l.DimY - 1}, nil
	}
	x, y, w, h := s.actualArea(level)
	return [4]int{x, x + w - 1, y, y + h - 1}, nil
}

// ReadRegion resolves an axis-aligned read at a published level. Without
// whole-slide composition the coordinates are level pixels of the scanned
// image; with it they are whole-slide pixels and out-of-scan areas are
// served per the skip-coarse-data policy.
func (s *Source) ReadRegion(ctx context.Context, level, fromX, fromY, sizeX, sizeY int) ([]byte, error) {
	release, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}
	defer release()
	if level < 0 || level >= len(s.pyr.Levels) {
		return nil, fmt.Errorf("%w: level %d of %d", pyratiff.ErrInvalidArgument, level, len(s.pyr.Levels))
	}
	if !s.composing() {
		return s.readLevel(ctx, level, fromX, fromY, sizeX, sizeY)
	}
	return s.readComposed(ctx, level, fromX, fromY, sizeX, sizeY)
}

// readLevel serves a stored or virtual level in scanned-image coordinates.
func (s *Source) readLevel(ctx context.Context, level, fromX, fromY, sizeX, sizeY int) ([]byte, error) {
	l := s.pyr.Levels[level]
	if l.ActualIFD >= 0 {
		return s.reader.ReadRegion(ctx, s.ifds[l.ActualIFD], fromX, fromY, sizeX, sizeY)
	}
	src := s.pyr.Stored[l.ScaleFrom]
	scale := l.Scale
	raw, err := s.reader.ReadRegion(ctx, s.ifds[src.ActualIFD],
		fromX*scale, fromY*scale, sizeX*scale, sizeY*scale)
	if err != nil {
		return nil, err
	}
	ifd := s.ifds[src.ActualIFD]
	st, err := ifd.SampleType()
	if err != nil {
		return nil, err
	}
	return ResizeAverage(raw, sizeX*scale, sizeY*scale, sizeX, sizeY,
		ifd.SamplesPerPixel(), st, ifd.ByteOrder()), nil
}

// readComposed serves whole-slide coordinates: (a) wholly inside the
// scanned area delegates to the stored pyramid; (b) wholly outside returns
// filler or macro-resampled pixels; (c) straddling composes both and
// paints the data border.
func (s *Source) readComposed(ctx context.Context, level, fromX, fromY, sizeX, sizeY int) ([]byte, error) {
	ax, ay, aw, ah := s.actualArea(level)
	mainIFD := s.ifds[0]
	channels := mainIFD.SamplesPerPixel()
	elem, err := mainIFD.InCoreBytesPerSample()
	if err != nil {
		return nil, err
	}
	bpp := channels * elem

	ix0 := max(fromX, ax)
	iy0 := max(fromY, ay)
	ix1 := min(fromX+sizeX, ax+aw)
	iy1 := min(fromY+sizeY, ay+ah)

	if ix0 <= fromX && iy0 <= fromY && ix1 >= fromX+sizeX && iy1 >= fromY+sizeY {
		// wholly inside the scanned area
		return s.readLevel(ctx, level, fromX-ax, fromY-ay, sizeX, sizeY)
	}

	var out []byte
	if s.skipCoarseData {
		out = make([]byte, sizeX*sizeY*bpp)
		for i := range out {
			out[i] = s.filler
		}
	} else {
		out, err = s.macroResampled(ctx, level, fromX, fromY, sizeX, sizeY, channels, elem)
		if err != nil {
			return nil, err
		}
	}
	if ix0 >= ix1 || iy0 >= iy1 {
		return out, nil
	}

	inside, err := s.readLevel(ctx, level, ix0-ax, iy0-ay, ix1-ix0, iy1-iy0)
	if err != nil {
		return nil, err
	}
	partW := ix1 - ix0
	for row := 0; row < iy1-iy0; row++ {
		dstOff := ((iy0-fromY+row)*sizeX + (ix0 - fromX)) * bpp
		srcOff := row * partW * bpp
		copy(out[dstOff:dstOff+partW*bpp], inside[srcOff:])
	}
	if s.dataBorderWidth > 0 {
		s.paintBorder(out, fromX, fromY, sizeX, sizeY, ax, ay, aw, ah, bpp)
	}
	return out, nil
}

// macroResampled fills a whole-slide rectangle from the macro photograph
// by box-average resize. A macro with a different band count falls back to
// filler.
func (s *Source) macroResampled(ctx context.Context, level, fromX, fromY, sizeX, sizeY, channels, elem int) ([]byte, error) {
	out := make([]byte, sizeX*sizeY*channels*elem)
	for i := range out {
		out[i] = s.filler
	}
	macroIFD := s.ifds[s.cls.Macro]
	if macroIFD.SamplesPerPixel() != channels {
		return out, nil
	}
	mw, err := macroIFD.ImageDimX()
	if err != nil {
		return out, nil
	}
	mh, err := macroIFD.ImageDimY()
	if err != nil {
		return out, nil
	}
	slideW, slideH := s.wholeSlideDims(level)
	if slideW == 0 || slideH == 0 {
		return out, nil
	}
	// macro pixels covering the requested whole-slide rectangle
	mx0 := fromX * mw / slideW
	my0 := fromY * mh / slideH
	mx1 := (fromX + sizeX) * mw / slideW
	my1 := (fromY + sizeY) * mh / slideH
	mx0, my0 = max(mx0, 0), max(my0, 0)
	mx1, my1 = min(mx1, mw), min(my1, mh)
	if mx1 <= mx0 || my1 <= my0 {
		return out, nil
	}
	raw, err := s.reader.ReadRegion(ctx, macroIFD, mx0, my0, mx1-mx0, my1-my0)
	if err != nil {
		return nil, err
	}
	st, err := macroIFD.SampleType()
	if err != nil {
		return out, nil
	}
	resized := ResizeAverage(raw, mx1-mx0, my1-my0, sizeX, sizeY, channels, st, macroIFD.ByteOrder())
	return resized, nil
}

// paintBorder draws the data border frame around the actual area.
func (s *Source) paintBorder(out []byte, fromX, fromY, sizeX, sizeY, ax, ay, aw, ah, bpp int) {
	bw := s.dataBorderWidth
	paint := func(x, y int) {
		if x < fromX || y < fromY || x >= fromX+sizeX || y >= fromY+sizeY {
			return
		}
		off := ((y-fromY)*sizeX + (x - fromX)) * bpp
		for i := 0; i < bpp; i++ {
			out[off+i] = s.borderColor
		}
	}
	for d := 0; d < bw; d++ {
		for x := ax - bw; x < ax+aw+bw; x++ {
			paint(x, ay-1-d)
			paint(x, ay+ah+d)
		}
		for y := ay - bw; y < ay+ah+bw; y++ {
			paint(ax-1-d, y)
			paint(ax+aw+d, y)
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
