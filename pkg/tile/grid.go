package tile

import (
	"fmt"
	"math"
)

var (
	errTileTooLarge = &ConfigError{Field: "value", Reason: "tile size too large for image dimensions"}
	errTileZero     = &ConfigError{Field: "value", Reason: "tile size rounds to zero pixels"}
)

// Validate checks the configuration on its own, without an image
func (c Config) Validate() error {
	if !(c.Value > 0) {
		return &ConfigError{Field: "value", Reason: "value must be greater than 0"}
	}
	switch c.Unit {
	case Pixels, Count:
	case Millimeters, Inches:
		if c.DPI == 0 {
			return &ConfigError{Field: "dpi", Reason: "resolution required for physical units"}
		}
		if c.DPI < 1 {
			return &ConfigError{Field: "dpi", Reason: "resolution must be at least 1 dpi"}
		}
	default:
		return &ConfigError{Field: "unit", Reason: fmt.Sprintf("unsupported unit %s", c.Unit)}
	}
	switch c.Strategy {
	case Crop, Pad:
	default:
		return &ConfigError{Field: "strategy", Reason: fmt.Sprintf("unsupported remainder strategy %s", c.Strategy)}
	}
	return nil
}

// ComputeGrid lays out the tile grid for a sourceWidth x sourceHeight image.
// It is a pure function of its arguments.
func ComputeGrid(sourceWidth, sourceHeight int, cfg Config) (Grid, error) {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Grid{}, &ConfigError{
			Field:  "source",
			Reason: fmt.Sprintf("image dimensions must be positive, got %dx%d", sourceWidth, sourceHeight),
		}
	}
	if err := cfg.Validate(); err != nil {
		return Grid{}, err
	}

	var tileWidth, tileHeight, columns, rows int

	switch cfg.Unit {
	case Count:
		// Tile size follows from the count; the remainder strategy is not
		// consulted for this unit.
		columns = int(math.Floor(min(cfg.Value, math.MaxInt32)))
		rows = columns
		if columns == 0 {
			return Grid{}, errTileTooLarge
		}
		tileWidth = sourceWidth / columns
		tileHeight = sourceHeight / rows
	default:
		size := tileSizePx(cfg)
		if size <= 0 {
			return Grid{}, errTileZero
		}
		tileWidth, tileHeight = size, size
		columns = sourceWidth / size
		rows = sourceHeight / size
	}

	if columns == 0 || rows == 0 {
		return Grid{}, errTileTooLarge
	}
	if tileWidth == 0 || tileHeight == 0 {
		return Grid{}, errTileZero
	}

	g := Grid{
		TileWidth:    tileWidth,
		TileHeight:   tileHeight,
		Columns:      columns,
		Rows:         rows,
		SourceWidth:  sourceWidth,
		SourceHeight: sourceHeight,
	}

	if cfg.Strategy == Pad {
		if sourceWidth-columns*tileWidth > 0 {
			g.Columns = columns + 1
			g.PaddedWidth = columns*tileWidth + tileWidth
		}
		if sourceHeight-rows*tileHeight > 0 {
			g.Rows = rows + 1
			g.PaddedHeight = rows*tileHeight + tileHeight
		}
	}
	g.TotalTiles = g.Columns * g.Rows

	return g, nil
}

// tileSizePx converts a size-based configuration to a pixel edge length.
// Sizes round half away from zero; grid counts floor.
func tileSizePx(cfg Config) int {
	switch cfg.Unit {
	case Millimeters:
		return MillimetersToPixels(cfg.Value, cfg.DPI)
	case Inches:
		return InchesToPixels(cfg.Value, cfg.DPI)
	default:
		return roundPx(cfg.Value)
	}
}

// CoordinatesOf returns the source rectangle read for the tile at index.
// Tiles are numbered row-major, left to right then top to bottom. Under
// Pad the last column and row are clipped to the source; the tile
// itself keeps the full TileWidth x TileHeight size.
func (g Grid) CoordinatesOf(index int) (Coordinates, error) {
	if index < 0 || index >= g.TotalTiles {
		return Coordinates{}, fmt.Errorf("tile index %d out of range [0,%d)", index, g.TotalTiles)
	}

	col := index % g.Columns
	row := index / g.Columns

	c := Coordinates{
		X:      col * g.TileWidth,
		Y:      row * g.TileHeight,
		Width:  g.TileWidth,
		Height: g.TileHeight,
	}

	if g.PaddedWidth > 0 && col == g.Columns-1 {
		c.Width = min(g.TileWidth, g.SourceWidth-c.X)
	}
	if g.PaddedHeight > 0 && row == g.Rows-1 {
		c.Height = min(g.TileHeight, g.SourceHeight-c.Y)
	}

	return c, nil
}

// Position returns the 1-based row and column of the tile at index
func (g Grid) Position(index int) (row, col int) {
	return index/g.Columns + 1, index%g.Columns + 1
}

// Padded reports whether the grid extends past the source on either axis
func (g Grid) Padded() bool {
	return g.PaddedWidth > 0 || g.PaddedHeight > 0
}

// TilePixels is the pixel count of one output tile
func (g Grid) TilePixels() int {
	return g.TileWidth * g.TileHeight
}

// Coverage returns the pixel extent spanned by all tiles
func (g Grid) Coverage() (width, height int) {
	width, height = g.Columns*g.TileWidth, g.Rows*g.TileHeight
	if g.PaddedWidth > 0 {
		width = g.PaddedWidth
	}
	if g.PaddedHeight > 0 {
		height = g.PaddedHeight
	}
	return width, height
}

// Remainder returns the source pixels on each axis that no tile reads.
// Padded grids cover their remainder, so the padded axis reports zero.
func (g Grid) Remainder() (width, height int) {
	width = max(0, g.SourceWidth-g.Columns*g.TileWidth)
	height = max(0, g.SourceHeight-g.Rows*g.TileHeight)
	return width, height
}

// EstimatedBytes is the uncompressed RGBA size of every tile together
func (g Grid) EstimatedBytes() int64 {
	return int64(g.TileWidth) * int64(g.TileHeight) * 4 * int64(g.TotalTiles)
}
