// Package extract copies the tiles of a grid out of a source image and
// encodes each one losslessly, holding only one tile-sized scratch image
// per worker at a time.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"iter"
	"log/slog"
	"runtime"

	"golang.org/x/image/draw"

	"github.com/kiesman99/tilegrid/pkg/tile"
)

const (
	// DefaultPixelBudget is the number of tile pixels produced between
	// two yields to the scheduler.
	DefaultPixelBudget = 1 << 20

	// DefaultMaxTilePixels bounds the scratch image of a single tile.
	DefaultMaxTilePixels = 1 << 28
)

// PixelSource hands out rectangles of a decoded image in source pixel space
type PixelSource interface {
	Size() (width, height int)
	ReadRegion(r image.Rectangle) (image.Image, error)
}

// Options tune an Extractor. The zero value is usable.
type Options struct {
	// Background fills the uncovered part of padded tiles. Defaults to white.
	Background color.Color
	// PixelBudget sets the batch size: as many tiles as fit in this many pixels, at least one.
	PixelBudget int
	// MaxTilePixels rejects grids whose scratch image would be larger.
	MaxTilePixels int
	// Workers greater than one makes Run render tiles concurrently.
	Workers int
	// Encoder produces the tile bytes. Defaults to PNG.
	Encoder Encoder
	// Progress is called with the number of tiles delivered so far, after
	// the consumer has accepted each one.
	Progress func(current, total int)
	// Yield runs between batches. Defaults to runtime.Gosched plus a
	// context check.
	Yield func(ctx context.Context) error
	Logger *slog.Logger
}

// Tile is one extracted, encoded tile
type Tile struct {
	Index  int
	Row    int // 1-based
	Column int // 1-based
	Bounds tile.Coordinates
	Data   []byte
}

// Extractor produces the tiles of one grid from one pixel source
type Extractor struct {
	src   PixelSource
	grid  tile.Grid
	opts  Options
	batch int
	deep  bool // 16 bits per channel
	log   *slog.Logger
}

// New returns an Extractor for grid over src
func New(src PixelSource, grid tile.Grid, opts Options) (*Extractor, error) {
	if src == nil {
		return nil, errors.New("extract: nil pixel source")
	}
	if grid.TotalTiles <= 0 || grid.TileWidth <= 0 || grid.TileHeight <= 0 {
		return nil, fmt.Errorf("extract: empty grid %+v", grid)
	}
	if w, h := src.Size(); w != grid.SourceWidth || h != grid.SourceHeight {
		return nil, fmt.Errorf("extract: grid planned for %dx%d but source is %dx%d",
			grid.SourceWidth, grid.SourceHeight, w, h)
	}

	if opts.Background == nil {
		opts.Background = color.White
	}
	if opts.PixelBudget <= 0 {
		opts.PixelBudget = DefaultPixelBudget
	}
	if opts.MaxTilePixels <= 0 {
		opts.MaxTilePixels = DefaultMaxTilePixels
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Encoder == nil {
		opts.Encoder = NewPNGEncoder(DefaultCompression)
	}
	if opts.Yield == nil {
		opts.Yield = cooperativeYield
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Extractor{
		src:   src,
		grid:  grid,
		opts:  opts,
		batch: batchSize(opts.PixelBudget, grid.TilePixels()),
		deep:  sixteenBit(src),
		log:   logger.With("component", "extract"),
	}, nil
}

// Grid returns the grid being extracted
func (e *Extractor) Grid() tile.Grid {
	return e.grid
}

// BatchSize is the number of tiles produced between two yields
func (e *Extractor) BatchSize() int {
	return e.batch
}

func batchSize(budget, tilePixels int) int {
	if tilePixels <= 0 {
		return 1
	}
	return max(1, budget/tilePixels)
}

// sixteenBit reports whether src stores more than 8 bits per channel.
// Sources that do not expose a colour model are treated as 8-bit.
func sixteenBit(src PixelSource) bool {
	m, ok := src.(interface{ ColorModel() color.Model })
	if !ok {
		return false
	}
	switch m.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model, color.Alpha16Model:
		return true
	}
	return false
}

func cooperativeYield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// Tiles returns the tiles in index order. The sequence is lazy: a tile is
// rendered when the consumer asks for it, and stopping the range loop
// stops extraction. On failure the last pair carries an *ExtractionError
// and the sequence ends.
func (e *Extractor) Tiles(ctx context.Context) iter.Seq2[Tile, error] {
	return func(yield func(Tile, error) bool) {
		total := e.grid.TotalTiles

		s, err := e.newScratch()
		if err != nil {
			yield(Tile{}, err)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(Tile{}, e.fail(0, "yield", 0, err))
			return
		}

		for start := 0; start < total; start += e.batch {
			if start > 0 {
				if err := e.opts.Yield(ctx); err != nil {
					yield(Tile{Index: start}, e.fail(start, "yield", start, err))
					return
				}
			}

			end := min(start+e.batch, total)
			e.log.Debug("batch", "first", start, "last", end-1, "total", total)

			for i := start; i < end; i++ {
				t, err := e.render(i, s)
				if err != nil {
					err.Produced = i
					yield(Tile{Index: i}, err)
					return
				}
				if !yield(t, nil) {
					return
				}
				e.progress(i+1, total)
			}
		}
	}
}

// Run extracts every tile and hands each to fn in index order. It returns
// the number of tiles fn accepted. With Options.Workers above one, tiles
// are rendered concurrently but still delivered in order.
func (e *Extractor) Run(ctx context.Context, fn func(Tile) error) (int, error) {
	if e.opts.Workers > 1 && e.grid.TotalTiles > 1 {
		return e.runParallel(ctx, fn)
	}

	produced := 0
	for t, err := range e.Tiles(ctx) {
		if err != nil {
			return produced, err
		}
		if err := fn(t); err != nil {
			return produced, e.fail(t.Index, "deliver", produced, err)
		}
		produced++
	}
	return produced, nil
}

func (e *Extractor) progress(current, total int) {
	if e.opts.Progress != nil {
		e.opts.Progress(current, total)
	}
}

// scratch is the reusable per-worker state for rendering one tile. img
// is an *image.NRGBA, or an *image.NRGBA64 for 16-bit sources; pix is
// its backing array.
type scratch struct {
	img draw.Image
	pix []byte
	out bytes.Buffer
}

func (e *Extractor) newScratch() (*scratch, error) {
	px := e.grid.TilePixels()
	if px > e.opts.MaxTilePixels {
		return nil, e.fail(0, "allocate", 0,
			fmt.Errorf("tile of %dx%d pixels exceeds limit of %d pixels", e.grid.TileWidth, e.grid.TileHeight, e.opts.MaxTilePixels))
	}
	rect := image.Rect(0, 0, e.grid.TileWidth, e.grid.TileHeight)
	if e.deep {
		img := image.NewNRGBA64(rect)
		return &scratch{img: img, pix: img.Pix}, nil
	}
	img := image.NewNRGBA(rect)
	return &scratch{img: img, pix: img.Pix}, nil
}

// render draws tile i into the scratch image and encodes it. The returned
// error has Produced unset; callers fill it in.
func (e *Extractor) render(i int, s *scratch) (Tile, *ExtractionError) {
	c, err := e.grid.CoordinatesOf(i)
	if err != nil {
		return Tile{}, e.fail(i, "read", 0, err)
	}
	r := c.Rect()

	region, err := e.src.ReadRegion(r)
	if err != nil {
		return Tile{}, e.fail(i, "read", 0, err)
	}
	if got := region.Bounds().Size(); got != r.Size() {
		return Tile{}, e.fail(i, "read", 0, fmt.Errorf("source returned %v for region %v", got, r))
	}

	// Padded grids composite onto the background like a painted canvas;
	// otherwise the tile is a straight copy of the source pixels.
	op := draw.Src
	if e.grid.Padded() {
		draw.Draw(s.img, s.img.Bounds(), image.NewUniform(e.opts.Background), image.Point{}, draw.Src)
		op = draw.Over
	} else {
		clear(s.pix)
	}
	copyRegion(s.img, region, op)

	s.out.Reset()
	if err := e.opts.Encoder.Encode(&s.out, s.img); err != nil {
		return Tile{}, e.fail(i, "encode", 0, err)
	}

	row, col := e.grid.Position(i)
	return Tile{
		Index:  i,
		Row:    row,
		Column: col,
		Bounds: c,
		Data:   bytes.Clone(s.out.Bytes()),
	}, nil
}

func (e *Extractor) fail(index int, op string, produced int, err error) *ExtractionError {
	e.log.Warn("tile extraction failed", "tile", index, "op", op, "produced", produced, "err", err)
	return &ExtractionError{
		Index:    index,
		Op:       op,
		Produced: produced,
		Total:    e.grid.TotalTiles,
		Err:      err,
	}
}

// copyRegion places region at the origin of dst pixel for pixel. Sources
// already in the scratch layout are copied row by row so straight alpha
// survives untouched.
func copyRegion(dst draw.Image, region image.Image, op draw.Op) {
	if op == draw.Src {
		switch d := dst.(type) {
		case *image.NRGBA:
			if src, ok := region.(*image.NRGBA); ok {
				copyRows(d.Pix, d.Stride, src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y):], src.Stride, 4*src.Rect.Dx(), src.Rect.Dy())
				return
			}
		case *image.NRGBA64:
			if src, ok := region.(*image.NRGBA64); ok {
				copyRows(d.Pix, d.Stride, src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y):], src.Stride, 8*src.Rect.Dx(), src.Rect.Dy())
				return
			}
		}
	}
	draw.Copy(dst, image.Point{}, region, region.Bounds(), op, nil)
}

func copyRows(dst []byte, dstStride int, src []byte, srcStride, rowBytes, rows int) {
	for y := range rows {
		copy(dst[y*dstStride:y*dstStride+rowBytes], src[y*srcStride:y*srcStride+rowBytes])
	}
}
