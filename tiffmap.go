package pyratiff

// A TiffMap owns one IFD, its tile grid and the tiles themselves. It is the
// unit a writer completes into the file and the unit a reader materializes
// region reads from. A resizable map expands its IFD dimensions as writes
// arrive; shrinking is forbidden.
type TiffMap struct {
	ifd *IFD

	dimX, dimY           int
	tileSizeX, tileSizeY int
	tilesPerRow          int
	tilesPerColumn       int
	planes               int

	resizable bool

	// autoInterleave: callers hand chunky maps channel-separated source
	// buffers (RRR…GGG…BBB…); samples are interleaved during encode.
	autoInterleave bool

	tiles map[tileKey]*Tile
}

type tileKey struct {
	plane, yIndex, xIndex int
}

// NewTiffMap builds the tile grid for ifd. A resizable map may start with
// zero dimensions and grow via ExpandDimensions.
func NewTiffMap(ifd *IFD, resizable bool) (*TiffMap, error) {
	m := &TiffMap{
		ifd:       ifd,
		resizable: resizable,
		tiles:     make(map[tileKey]*Tile),
	}
	var err error
	if resizable && !ifd.Has(TagImageWidth) {
		m.dimX, m.dimY = 0, 0
	} else {
		if m.dimX, err = ifd.ImageDimX(); err != nil {
			return nil, err
		}
		if m.dimY, err = ifd.ImageDimY(); err != nil {
			return nil, err
		}
	}
	if ifd.IsTiled() {
		if m.tileSizeX, err = ifd.dim(TagTileWidth, "TileWidth"); err != nil {
			return nil, err
		}
		if m.tileSizeY, err = ifd.dim(TagTileLength, "TileLength"); err != nil {
			return nil, err
		}
		if m.tileSizeX%16 != 0 || m.tileSizeY%16 != 0 {
			return nil, unsupportedIFDf("tile size %dx%d is not a multiple of 16", m.tileSizeX, m.tileSizeY)
		}
	} else {
		m.tileSizeX = m.dimX
		rows := int(ifd.uintValue(TagRowsPerStrip, 0))
		if rows <= 0 || rows > m.dimY {
			rows = m.dimY
		}
		m.tileSizeY = rows
	}
	m.planes = ifd.SeparatedPlanes()
	m.recomputeGrid()
	return m, nil
}

func (m *TiffMap) recomputeGrid() {
	if m.tileSizeX > 0 {
		m.tilesPerRow = (m.dimX + m.tileSizeX - 1) / m.tileSizeX
	} else {
		m.tilesPerRow = 0
	}
	if m.tileSizeY > 0 {
		m.tilesPerColumn = (m.dimY + m.tileSizeY - 1) / m.tileSizeY
	} else {
		m.tilesPerColumn = 0
	}
}

func (m *TiffMap) IFD() *IFD { return m.ifd }

func (m *TiffMap) DimX() int { return m.dimX }
func (m *TiffMap) DimY() int { return m.dimY }

func (m *TiffMap) TileSizeX() int { return m.tileSizeX }
func (m *TiffMap) TileSizeY() int { return m.tileSizeY }

func (m *TiffMap) TilesPerRow() int    { return m.tilesPerRow }
func (m *TiffMap) TilesPerColumn() int { return m.tilesPerColumn }

func (m *TiffMap) Planes() int { return m.planes }

func (m *TiffMap) Resizable() bool { return m.resizable }

// SetAutoInterleave selects channel-separated source buffers for chunky
// maps; the samples are interleaved during tile encode.
func (m *TiffMap) SetAutoInterleave(auto bool) { m.autoInterleave = auto }

func (m *TiffMap) AutoInterleave() bool { return m.autoInterleave }

// TileCount returns planes * tilesPerColumn * tilesPerRow.
func (m *TiffMap) TileCount() int {
	return m.planes * m.tilesPerColumn * m.tilesPerRow
}

// tileDims returns the pixel size of the grid cell at (xIndex, yIndex).
// Border cells are cropped to the image extent under strip layout only;
// real tiled layout keeps the full cell and the excess is undefined.
func (m *TiffMap) tileDims(xIndex, yIndex int) (w, h int) {
	w, h = m.tileSizeX, m.tileSizeY
	if !m.ifd.IsTiled() {
		if x := xIndex * m.tileSizeX; x+w > m.dimX {
			w = m.dimX - x
		}
		if y := yIndex * m.tileSizeY; y+h > m.dimY {
			h = m.dimY - y
		}
	}
	return w, h
}

// GetOrCreate returns the tile at (plane, xIndex, yIndex), creating a fully
// unset one if absent.
func (m *TiffMap) GetOrCreate(plane, xIndex, yIndex int) (*Tile, error) {
	if plane < 0 || plane >= m.planes {
		return nil, invalidArgf("plane %d out of [0, %d)", plane, m.planes)
	}
	if xIndex < 0 || xIndex >= m.tilesPerRow || yIndex < 0 || yIndex >= m.tilesPerColumn {
		return nil, invalidArgf("tile index (%d, %d) out of %dx%d grid",
			xIndex, yIndex, m.tilesPerRow, m.tilesPerColumn)
	}
	key := tileKey{plane, yIndex, xIndex}
	if t, ok := m.tiles[key]; ok {
		return t, nil
	}
	w, h := m.tileDims(xIndex, yIndex)
	t := &Tile{
		ifd:    m.ifd,
		plane:  plane,
		xIndex: xIndex,
		yIndex: yIndex,
		x:      xIndex * m.tileSizeX,
		y:      yIndex * m.tileSizeY,
		w:      w,
		h:      h,
		unset:  []tileRect{{0, 0, w, h}},
	}
	m.tiles[key] = t
	return t, nil
}

// Existing returns the tile at (plane, xIndex, yIndex) or nil.
func (m *TiffMap) Existing(plane, xIndex, yIndex int) *Tile {
	return m.tiles[tileKey{plane, yIndex, xIndex}]
}

// Tiles returns all materialized tiles in (plane, y, x) order.
func (m *TiffMap) Tiles() []*Tile {
	out := make([]*Tile, 0, len(m.tiles))
	for p := 0; p < m.planes; p++ {
		for y := 0; y < m.tilesPerColumn; y++ {
			for x := 0; x < m.tilesPerRow; x++ {
				if t, ok := m.tiles[tileKey{p, y, x}]; ok {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

// ExpandDimensions grows the map. Only resizable maps may grow; shrinks are
// forbidden.
func (m *TiffMap) ExpandDimensions(newX, newY int) error {
	if newX < m.dimX || newY < m.dimY {
		return invalidArgf("cannot shrink map from %dx%d to %dx%d", m.dimX, m.dimY, newX, newY)
	}
	if newX == m.dimX && newY == m.dimY {
		return nil
	}
	if !m.resizable {
		return unsupportedIFDf("map is not resizable")
	}
	if newX >= MaxImageDim || newY >= MaxImageDim {
		return unsupportedIFDf("dimensions %dx%d do not fit in 31 bits", newX, newY)
	}
	m.dimX, m.dimY = newX, newY
	if !m.ifd.IsTiled() {
		m.tileSizeX = newX
		if m.tileSizeY <= 0 {
			m.tileSizeY = newY
		}
	}
	m.recomputeGrid()
	return nil
}

// bytesPerPixelInTile returns the decoded bytes per pixel held by one tile
// of this map (one channel per plane when separate, all channels when
// chunky).
func (m *TiffMap) bytesPerPixelInTile() (int, error) {
	elem, err := m.ifd.BytesPerSampleByType()
	if err != nil {
		return 0, err
	}
	if m.ifd.IsPlanarSeparated() {
		return elem, nil
	}
	return elem * m.ifd.SamplesPerPixel(), nil
}

// UpdateSamples splats a source pixel buffer covering the image rectangle
// (fromX, fromY, sizeX, sizeY) onto every intersecting tile.
//
// Source layout depends on the map configuration:
//
//   - chunky, no auto-interleave: interleaved pixels, one chunky row copy
//     per output row;
//   - chunky, auto-interleave: channel-separated RRR…GGG…BBB…; per-channel
//     row copies into a separated in-tile layout, the tile interleaves on
//     encode;
//   - planar separate: channel-separated source, each channel lands in its
//     own plane's tile set.
func (m *TiffMap) UpdateSamples(src []byte, fromX, fromY, sizeX, sizeY int) error {
	if fromX < 0 || fromY < 0 || sizeX < 0 || sizeY < 0 {
		return invalidArgf("negative source rectangle %d,%d %dx%d", fromX, fromY, sizeX, sizeY)
	}
	if sizeX == 0 || sizeY == 0 {
		return nil
	}
	if m.resizable {
		if err := m.ExpandDimensions(max(m.dimX, fromX+sizeX), max(m.dimY, fromY+sizeY)); err != nil {
			return err
		}
	}
	if fromX+sizeX > m.dimX || fromY+sizeY > m.dimY {
		return invalidArgf("source rectangle %d,%d %dx%d exceeds %dx%d image",
			fromX, fromY, sizeX, sizeY, m.dimX, m.dimY)
	}
	elem, err := m.ifd.BytesPerSampleByType()
	if err != nil {
		return err
	}
	channels := m.ifd.SamplesPerPixel()
	wantLen := sizeX * sizeY * elem * channels
	if len(src) < wantLen {
		return invalidArgf("source buffer %d bytes, need %d", len(src), wantLen)
	}

	txFirst := fromX / m.tileSizeX
	txLast := (fromX + sizeX - 1) / m.tileSizeX
	tyFirst := fromY / m.tileSizeY
	tyLast := (fromY + sizeY - 1) / m.tileSizeY

	for p := 0; p < m.planes; p++ {
		for ty := tyFirst; ty <= tyLast; ty++ {
			for tx := txFirst; tx <= txLast; tx++ {
				tile, err := m.GetOrCreate(p, tx, ty)
				if err != nil {
					return err
				}
				if err := m.splatTile(tile, src, fromX, fromY, sizeX, sizeY, elem, channels); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *TiffMap) splatTile(tile *Tile, src []byte, fromX, fromY, sizeX, sizeY, elem, channels int) error {
	insideFromX := max(fromX, tile.x) - tile.x
	insideFromY := max(fromY, tile.y) - tile.y
	insideToX := min(fromX+sizeX, tile.x+tile.w) - tile.x
	insideToY := min(fromY+sizeY, tile.y+tile.h) - tile.y
	insideSizeX := insideToX - insideFromX
	insideSizeY := insideToY - insideFromY
	if insideSizeX <= 0 || insideSizeY <= 0 {
		return nil
	}
	srcX := tile.x + insideFromX - fromX
	srcY := tile.y + insideFromY - fromY

	bppTile, err := m.bytesPerPixelInTile()
	if err != nil {
		return err
	}
	if tile.decoded == nil {
		tile.decoded = make([]byte, tile.w*tile.h*bppTile)
		tile.encoded = nil
		tile.stored = false
	}

	switch {
	case !m.ifd.IsPlanarSeparated() && !m.autoInterleave:
		// interleaved in, interleaved in tile: one chunky row copy per row
		bpp := elem * channels
		for row := 0; row < insideSizeY; row++ {
			srcOff := ((srcY+row)*sizeX + srcX) * bpp
			dstOff := ((insideFromY+row)*tile.w + insideFromX) * bpp
			copy(tile.decoded[dstOff:dstOff+insideSizeX*bpp], src[srcOff:])
		}
	case !m.ifd.IsPlanarSeparated():
		// separated in, separated in tile; interleave happens on encode
		tile.separated = true
		planeSrc := sizeX * sizeY * elem
		planeDst := tile.w * tile.h * elem
		for c := 0; c < channels; c++ {
			for row := 0; row < insideSizeY; row++ {
				srcOff := c*planeSrc + ((srcY+row)*sizeX+srcX)*elem
				dstOff := c*planeDst + ((insideFromY+row)*tile.w+insideFromX)*elem
				copy(tile.decoded[dstOff:dstOff+insideSizeX*elem], src[srcOff:])
			}
		}
	default:
		// one channel per plane
		planeSrc := sizeX * sizeY * elem
		c := tile.plane
		for row := 0; row < insideSizeY; row++ {
			srcOff := c*planeSrc + ((srcY+row)*sizeX+srcX)*elem
			dstOff := ((insideFromY+row)*tile.w + insideFromX) * elem
			copy(tile.decoded[dstOff:dstOff+insideSizeX*elem], src[srcOff:])
		}
	}

	tile.reduceUnset(insideFromX, insideFromY, insideSizeX, insideSizeY)
	return nil
}

// CropAllUnset marks every materialized tile fully written, abandoning the
// distinction between written and missing pixels.
func (m *TiffMap) CropAllUnset() {
	for _, t := range m.tiles {
		t.markFullyWritten()
	}
}
