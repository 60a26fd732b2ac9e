// Package tiler plans a grid for an image and exports every tile to a sink
package tiler

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/kiesman99/tilegrid/internal/extract"
	"github.com/kiesman99/tilegrid/internal/sink"
	"github.com/kiesman99/tilegrid/pkg/tile"
)

// Request contains all splitting parameters
type Request struct {
	Source extract.PixelSource
	// Name is the source file name; tiles are named after it
	Name   string
	Config tile.Config

	// Output options
	Sink        sink.Sink
	Background  color.Color
	Compression extract.Compression

	// Tuning
	Workers     int
	PixelBudget int

	Progress func(current, total int)
}

// Result contains the export result
type Result struct {
	Grid    tile.Grid
	Files   []string
	Bytes   int64
	Elapsed time.Duration
}

// ExportError reports an export that stopped part way. Tiles already
// handed to the sink stay there.
type ExportError struct {
	Message  string
	Index    int
	Produced int
	Total    int
	Err      error
}

func (e *ExportError) Error() string {
	return e.Message
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Tiler performs split operations
type Tiler struct {
	log *slog.Logger
}

// New creates a new tiler. A nil logger discards output.
func New(logger *slog.Logger) *Tiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tiler{log: logger}
}

// Plan computes the grid a request would produce without reading pixels
func (t *Tiler) Plan(req *Request) (tile.Grid, error) {
	if req.Source == nil {
		return tile.Grid{}, errors.New("no source image")
	}
	w, h := req.Source.Size()
	return tile.ComputeGrid(w, h, req.Config)
}

// Split extracts every tile of req.Source and puts it into req.Sink in
// index order. Configuration errors are returned before the sink is
// touched. The sink is left open for the caller to close.
func (t *Tiler) Split(ctx context.Context, req *Request) (*Result, error) {
	if req.Sink == nil {
		return nil, errors.New("no output sink")
	}
	grid, err := t.Plan(req)
	if err != nil {
		return nil, err
	}

	log := t.log.With("name", req.Name)
	log.Info("splitting image",
		"source", fmt.Sprintf("%dx%d", grid.SourceWidth, grid.SourceHeight),
		"tile", fmt.Sprintf("%dx%d", grid.TileWidth, grid.TileHeight),
		"columns", grid.Columns, "rows", grid.Rows, "padded", grid.Padded())

	ex, err := extract.New(req.Source, grid, extract.Options{
		Background:  req.Background,
		PixelBudget: req.PixelBudget,
		Workers:     req.Workers,
		Encoder:     extract.NewPNGEncoder(req.Compression),
		Progress:    req.Progress,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Grid: grid, Files: make([]string, 0, grid.TotalTiles)}

	_, err = ex.Run(ctx, func(tl extract.Tile) error {
		name := tile.Filename(req.Name, tl.Index, grid)
		if err := req.Sink.Put(ctx, name, tl.Data); err != nil {
			return err
		}
		result.Files = append(result.Files, name)
		result.Bytes += int64(len(tl.Data))
		return nil
	})
	result.Elapsed = time.Since(start)

	if err != nil {
		var xerr *extract.ExtractionError
		if errors.As(err, &xerr) {
			return result, &ExportError{
				Message:  fmt.Sprintf("export stopped at tile %d: %d of %d tiles produced", xerr.Index, xerr.Produced, xerr.Total),
				Index:    xerr.Index,
				Produced: xerr.Produced,
				Total:    xerr.Total,
				Err:      err,
			}
		}
		return result, err
	}

	log.Info("split complete", "tiles", len(result.Files), "bytes", result.Bytes, "elapsed", result.Elapsed)
	return result, nil
}
