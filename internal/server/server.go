package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/kiesman99/tilegrid/internal/api"
	"github.com/kiesman99/tilegrid/internal/extract"
	"github.com/kiesman99/tilegrid/internal/sink"
	"github.com/kiesman99/tilegrid/internal/source"
	"github.com/kiesman99/tilegrid/internal/tiler"
	"github.com/kiesman99/tilegrid/pkg/tile"
)

// DefaultMaxUpload bounds the size of a posted source image
const DefaultMaxUpload = 64 << 20

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string
	maxUpload int64
	maxPixels int64
	tiler     *tiler.Tiler
	limiter   *rate.Limiter // nil: unlimited
	spool     afero.Fs      // temporary archives
}

// NewServer creates a new server instance. maxUpload <= 0 selects
// DefaultMaxUpload. Decoded images are limited to source.DefaultMaxPixels
// and archives are spooled to the OS temp directory.
func NewServer(version string, maxUpload int64) *Server {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		maxUpload: maxUpload,
		maxPixels: source.DefaultMaxPixels,
		tiler:     tiler.New(slog.Default()),
		spool:     afero.NewOsFs(),
	}
}

// SetMaxPixels bounds the declared dimensions of posted images. n <= 0
// selects source.DefaultMaxPixels.
func (s *Server) SetMaxPixels(n int64) {
	if n <= 0 {
		n = source.DefaultMaxPixels
	}
	s.maxPixels = n
}

// SetSpool sets the filesystem that holds archives while they are built
func (s *Server) SetSpool(fs afero.Fs) {
	s.spool = fs
}

// SetRateLimit bounds tile exports to rps per second with bursts of
// burst. rps <= 0 removes the limit.
func (s *Server) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), max(1, burst))
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// GetGrid plans a grid without any image data
func (s *Server) GetGrid(w http.ResponseWriter, r *http.Request, params api.GetGridParams) {
	requestID := generateRequestID()

	cfg, err := tileConfig(params.Unit, params.Value, params.Dpi, params.Strategy)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), &requestID, nil)
		return
	}

	grid, err := tile.ComputeGrid(params.Width, params.Height, cfg)
	if err != nil {
		s.handleSplitError(w, err, &requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(gridResponse(grid, cfg)); err != nil {
		log.Printf("Error encoding grid response: %v", err)
	}
}

// CreateTiles splits the posted image and answers with a ZIP of the tiles
func (s *Server) CreateTiles(w http.ResponseWriter, r *http.Request, params api.CreateTilesParams) {
	requestID := generateRequestID()

	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED",
			"too many tile exports, retry later", &requestID, nil)
		return
	}

	cfg, err := tileConfig(params.Unit, params.Value, params.Dpi, params.Strategy)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), &requestID, nil)
		return
	}
	var bg string
	if params.Background != nil {
		bg = *params.Background
	}
	background, err := extract.ParseColor(bg)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), &requestID, nil)
		return
	}
	name := "image"
	if params.Name != nil && *params.Name != "" {
		name = *params.Name
	}

	img, err := source.DecodeLimit(http.MaxBytesReader(w, r.Body, s.maxUpload), true, s.maxPixels)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("image exceeds %d bytes", tooLarge.Limit), &requestID, nil)
		case errors.Is(err, source.ErrImageTooLarge):
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				err.Error(), &requestID, nil)
		case errors.Is(err, source.ErrUnsupportedImage):
			s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE",
				err.Error(), &requestID, nil)
		default:
			s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER",
				err.Error(), &requestID, nil)
		}
		return
	}

	// The archive is spooled to a temporary file so a failure can still be
	// reported as JSON instead of a truncated download.
	spool, err := afero.TempFile(s.spool, "", "tilegrid-*.zip")
	if err != nil {
		s.handleSplitError(w, fmt.Errorf("spool archive: %w", err), &requestID)
		return
	}
	defer func() {
		spool.Close()
		s.spool.Remove(spool.Name())
	}()

	archive, err := sink.NewZip(spool, "store")
	if err != nil {
		s.handleSplitError(w, err, &requestID)
		return
	}

	result, err := s.tiler.Split(r.Context(), &tiler.Request{
		Source:     img,
		Name:       name,
		Config:     cfg,
		Sink:       archive,
		Background: background,
	})
	if err == nil {
		err = archive.Close()
	}
	if err != nil {
		s.handleSplitError(w, err, &requestID)
		return
	}

	size, err := spool.Seek(0, io.SeekCurrent)
	if err == nil {
		_, err = spool.Seek(0, io.SeekStart)
	}
	if err != nil {
		s.handleSplitError(w, fmt.Errorf("rewind archive: %w", err), &requestID)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tile.ArchiveName(name)))
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Tile-Count", strconv.Itoa(len(result.Files)))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, spool); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// tileConfig converts query parameters to a tile configuration
func tileConfig(unit api.TileUnit, value float64, dpi *int, strategy *api.RemainderStrategy) (tile.Config, error) {
	u, err := tile.ParseUnit(string(unit))
	if err != nil {
		return tile.Config{}, err
	}
	cfg := tile.Config{Unit: u, Value: value, Strategy: tile.Crop}
	if dpi != nil {
		cfg.DPI = *dpi
	}
	if strategy != nil {
		if cfg.Strategy, err = tile.ParseStrategy(string(*strategy)); err != nil {
			return tile.Config{}, err
		}
	}
	return cfg, nil
}

func gridResponse(g tile.Grid, cfg tile.Config) api.GridResponse {
	covW, covH := g.Coverage()
	remW, remH := g.Remainder()
	resp := api.GridResponse{
		TileWidthPx:     g.TileWidth,
		TileHeightPx:    g.TileHeight,
		Columns:         g.Columns,
		Rows:            g.Rows,
		TotalTiles:      g.TotalTiles,
		SourceWidth:     g.SourceWidth,
		SourceHeight:    g.SourceHeight,
		CoverageWidth:   covW,
		CoverageHeight:  covH,
		RemainderWidth:  remW,
		RemainderHeight: remH,
		EstimatedBytes:  g.EstimatedBytes(),
	}
	if g.PaddedWidth > 0 {
		resp.PaddedWidth = &g.PaddedWidth
	}
	if g.PaddedHeight > 0 {
		resp.PaddedHeight = &g.PaddedHeight
	}
	if cfg.DPI > 0 {
		wmm := tile.PixelsToMillimeters(g.TileWidth, cfg.DPI)
		hmm := tile.PixelsToMillimeters(g.TileHeight, cfg.DPI)
		resp.TileWidthMm, resp.TileHeightMm = &wmm, &hmm
	}
	return resp
}

// handleSplitError maps planning and extraction errors to responses
func (s *Server) handleSplitError(w http.ResponseWriter, err error, requestID *string) {
	var cfgErr *tile.ConfigError
	if errors.As(err, &cfgErr) {
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "INVALID_CONFIGURATION",
			err.Error(), requestID, map[string]interface{}{
				"field":  cfgErr.Field,
				"reason": cfgErr.Reason,
			})
		return
	}

	var exportErr *tiler.ExportError
	if errors.As(err, &exportErr) {
		log.Printf("Request %s: %v", *requestID, exportErr.Err)
		response := api.ExtractionErrorResponse{
			Error:     "EXTRACTION_FAILED",
			Message:   exportErr.Message,
			TileIndex: exportErr.Index,
			Produced:  exportErr.Produced,
			Total:     exportErr.Total,
			RequestId: requestID,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(response)
		return
	}

	log.Printf("Request %s: %v", *requestID, err)
	s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"Internal server error", requestID, nil)
}

// paramError answers for query parameters the generated wrapper rejects
func (s *Server) paramError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := generateRequestID()
	s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(), &requestID, nil)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != nil {
		w.Header().Set("X-Request-ID", *requestID)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return "req_" + uuid.NewString()
}
