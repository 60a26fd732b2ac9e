package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/kiesman99/tilegrid/internal/api"
	"github.com/kiesman99/tilegrid/internal/tiler"
)

// Test server setup
func setupTestServer(maxUpload int64) *httptest.Server {
	return httptest.NewServer(NewRouter(NewServer("2.0.0-test", maxUpload), 30*time.Second))
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 2), G: uint8(y * 3), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// noisePNG does not compress, so its encoded size grows with its area
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(1)
	for i := range img.Pix {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// headerOnlyPNG declares w x h pixels in its IHDR and carries no pixel data
func headerOnlyPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:], w)
	binary.BigEndian.PutUint32(data[4:], h)
	data[8], data[9] = 8, 6
	chunk := append([]byte("IHDR"), data...)
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var healthResp api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if healthResp.Status != api.Healthy {
		t.Errorf("Expected status 'healthy', got %s", healthResp.Status)
	}

	if healthResp.Version == nil || *healthResp.Version != "2.0.0-test" {
		t.Errorf("Expected version '2.0.0-test', got %v", healthResp.Version)
	}

	if healthResp.Uptime == nil || *healthResp.Uptime < 0 {
		t.Errorf("Expected valid uptime, got %v", healthResp.Uptime)
	}

	if time.Since(healthResp.Timestamp) > time.Minute {
		t.Errorf("Timestamp seems too old: %v", healthResp.Timestamp)
	}
}

func TestGridEndpoint(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	t.Run("Crop", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/grid?width=100&height=60&unit=px&value=30")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, body)
		}

		var grid api.GridResponse
		if err := json.NewDecoder(resp.Body).Decode(&grid); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if grid.Columns != 3 || grid.Rows != 2 || grid.TotalTiles != 6 || grid.TileWidthPx != 30 {
			t.Errorf("Unexpected grid %+v", grid)
		}
		if grid.PaddedWidth != nil || grid.PaddedHeight != nil {
			t.Errorf("Expected no padding, got %v %v", grid.PaddedWidth, grid.PaddedHeight)
		}
		if grid.RemainderWidth != 10 || grid.RemainderHeight != 0 {
			t.Errorf("Expected remainder 10x0, got %dx%d", grid.RemainderWidth, grid.RemainderHeight)
		}
		if grid.EstimatedBytes != 6*30*30*4 {
			t.Errorf("Unexpected estimated bytes %d", grid.EstimatedBytes)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("Expected X-Request-ID header")
		}
	})

	t.Run("Pad", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/grid?width=100&height=60&unit=px&value=30&strategy=pad")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()

		var grid api.GridResponse
		if err := json.NewDecoder(resp.Body).Decode(&grid); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if grid.Columns != 4 || grid.TotalTiles != 8 {
			t.Errorf("Unexpected grid %+v", grid)
		}
		if grid.PaddedWidth == nil || *grid.PaddedWidth != 120 {
			t.Errorf("Expected padded width 120, got %v", grid.PaddedWidth)
		}
		if grid.PaddedHeight != nil {
			t.Errorf("Expected no vertical padding, got %v", *grid.PaddedHeight)
		}
	})

	t.Run("Physical", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/grid?width=3000&height=3000&unit=in&value=1&dpi=300")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()

		var grid api.GridResponse
		if err := json.NewDecoder(resp.Body).Decode(&grid); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if grid.TileWidthPx != 300 || grid.Columns != 10 {
			t.Errorf("Unexpected grid %+v", grid)
		}
		if grid.TileWidthMm == nil || math.Abs(*grid.TileWidthMm-25.4) > 1e-9 {
			t.Errorf("Expected tile width 25.4mm, got %v", grid.TileWidthMm)
		}
	})
}

func TestGridEndpoint_Errors(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	testCases := []struct {
		name           string
		query          string
		expectedStatus int
		expectedError  string
	}{
		{"Missing width", "height=60&unit=px&value=30", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"Malformed value", "width=100&height=60&unit=px&value=abc", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"Unknown unit", "width=100&height=60&unit=furlong&value=3", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"Unknown strategy", "width=100&height=60&unit=px&value=30&strategy=stretch", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"Missing dpi", "width=100&height=60&unit=mm&value=10", http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"},
		{"Zero value", "width=100&height=60&unit=px&value=0", http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"},
		{"Tile larger than image", "width=100&height=60&unit=px&value=500", http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"},
		{"Empty image", "width=0&height=60&unit=px&value=10", http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/api/v1/grid?" + tc.query)
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.expectedStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("Expected status %d, got %d. Body: %s", tc.expectedStatus, resp.StatusCode, body)
			}

			var errorResp api.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if errorResp.Error != tc.expectedError {
				t.Errorf("Expected error code %s, got %s", tc.expectedError, errorResp.Error)
			}
			if errorResp.RequestId == nil || *errorResp.RequestId == "" {
				t.Error("Expected request_id in error response")
			}
		})
	}
}

func TestGridEndpoint_ConfigurationMessage(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/grid?width=100&height=60&unit=in&value=1")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	var errorResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if !strings.Contains(errorResp.Message, "resolution required for physical units") {
		t.Errorf("Expected message to name the constraint, got %q", errorResp.Message)
	}
	if errorResp.Details == nil || (*errorResp.Details)["field"] != "dpi" {
		t.Errorf("Expected details.field dpi, got %v", errorResp.Details)
	}
}

func postTiles(t *testing.T, server *httptest.Server, query string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/v1/tiles?"+query, "image/png", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

func readArchive(t *testing.T, resp *http.Response) map[string]image.Image {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Response is not a zip archive: %v", err)
	}
	tiles := make(map[string]image.Image)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		img, err := png.Decode(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", f.Name, err)
		}
		tiles[f.Name] = img
	}
	return tiles
}

func TestTilesEndpoint_Success(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	resp := postTiles(t, server, "unit=px&value=30&name=photo.png", testPNG(t, 100, 60))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected Content-Type application/zip, got %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "photo_tiles.zip") {
		t.Errorf("Expected archive name in Content-Disposition, got %s", cd)
	}
	if n := resp.Header.Get("X-Tile-Count"); n != "6" {
		t.Errorf("Expected X-Tile-Count 6, got %s", n)
	}

	tiles := readArchive(t, resp)
	if len(tiles) != 6 {
		t.Fatalf("Expected 6 tiles, got %d", len(tiles))
	}
	last, ok := tiles["photo_tile_r02_c03.png"]
	if !ok {
		t.Fatalf("Missing photo_tile_r02_c03.png in %v", tiles)
	}
	if last.Bounds().Dx() != 30 || last.Bounds().Dy() != 30 {
		t.Errorf("Expected 30x30 tile, got %v", last.Bounds())
	}
	// Pixel (0,0) of tile r02 c03 is source pixel (60,30).
	r, g, _, _ := last.At(0, 0).RGBA()
	if uint8(r>>8) != 120 || uint8(g>>8) != 90 {
		t.Errorf("Unexpected pixel %v", last.At(0, 0))
	}
}

func TestTilesEndpoint_PadBackground(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	resp := postTiles(t, server, "unit=px&value=30&strategy=pad&background=%23ff0000&name=photo.png", testPNG(t, 100, 60))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, body)
	}

	tiles := readArchive(t, resp)
	if len(tiles) != 8 {
		t.Fatalf("Expected 8 tiles, got %d", len(tiles))
	}
	edge := tiles["photo_tile_r01_c04.png"]
	if edge == nil {
		t.Fatal("Missing edge tile photo_tile_r01_c04.png")
	}
	if edge.Bounds().Dx() != 30 {
		t.Errorf("Expected padded tile to be 30 wide, got %d", edge.Bounds().Dx())
	}
	// Only the first 10 columns come from the source.
	if r, g, b, _ := edge.At(20, 5).RGBA(); r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("Expected red background, got %v", edge.At(20, 5))
	}
	if r, _, _, _ := edge.At(5, 5).RGBA(); uint8(r>>8) != 190 {
		t.Errorf("Expected source pixel, got %v", edge.At(5, 5))
	}
}

func TestTilesEndpoint_Errors(t *testing.T) {
	server := setupTestServer(2048)
	defer server.Close()

	small := testPNG(t, 8, 8)

	testCases := []struct {
		name           string
		query          string
		body           []byte
		expectedStatus int
		expectedError  string
	}{
		{"Not an image", "unit=px&value=4", []byte("hello, world"), http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE"},
		{"Too large", "unit=px&value=4", noisePNG(t, 64, 64), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"Too many pixels", "unit=px&value=4", headerOnlyPNG(60000, 60000), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"Missing unit", "value=4", small, http.StatusBadRequest, "INVALID_PARAMETER"},
		{"Bad background", "unit=px&value=4&background=plaid", small, http.StatusBadRequest, "INVALID_PARAMETER"},
		{"Tile larger than image", "unit=px&value=40", small, http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"},
		{"Physical without dpi", "unit=mm&value=1", small, http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postTiles(t, server, tc.query, tc.body)
			defer resp.Body.Close()

			if resp.StatusCode != tc.expectedStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("Expected status %d, got %d. Body: %s", tc.expectedStatus, resp.StatusCode, body)
			}

			var errorResp map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if errorCode, ok := errorResp["error"].(string); !ok || errorCode != tc.expectedError {
				t.Errorf("Expected error code %s, got %v", tc.expectedError, errorResp["error"])
			}
		})
	}
}

func TestTilesEndpoint_MaxPixels(t *testing.T) {
	s := NewServer("test", 0)
	s.SetMaxPixels(399)
	server := httptest.NewServer(NewRouter(s, 30*time.Second))
	defer server.Close()

	resp := postTiles(t, server, "unit=px&value=10", testPNG(t, 20, 20))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status 413 for 400 pixels over a 399 limit, got %d", resp.StatusCode)
	}

	s.SetMaxPixels(400)
	ok := postTiles(t, server, "unit=px&value=10", testPNG(t, 20, 20))
	ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 at the limit, got %d", ok.StatusCode)
	}
}

func TestTilesEndpoint_SpoolIsRemoved(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewServer("test", 0)
	s.SetSpool(fs)
	router := NewRouter(s, 30*time.Second)

	// ServeHTTP returns after the handler, so its cleanup has run.
	post := func(query string, body []byte) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tiles?"+query, bytes.NewReader(body))
		req.Header.Set("Content-Type", "image/png")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Result()
	}

	ok := post("unit=px&value=10", testPNG(t, 30, 20))
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", ok.StatusCode)
	}
	if n := ok.Header.Get("Content-Length"); n == "" || n == "0" {
		t.Errorf("Expected Content-Length to be set, got %q", n)
	}
	if tiles := readArchive(t, ok); len(tiles) != 6 {
		t.Errorf("Expected 6 tiles, got %d", len(tiles))
	}

	bad := post("unit=px&value=40", testPNG(t, 30, 20))
	if bad.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", bad.StatusCode)
	}

	left, err := afero.Glob(fs, filepath.Join(os.TempDir(), "tilegrid-*.zip"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected spooled archives to be removed, found %v", left)
	}
}

func TestTilesEndpoint_RateLimit(t *testing.T) {
	s := NewServer("test", 0)
	s.SetRateLimit(0.001, 1)
	server := httptest.NewServer(NewRouter(s, 30*time.Second))
	defer server.Close()

	body := testPNG(t, 20, 20)
	first := postTiles(t, server, "unit=px&value=10", body)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("Expected first export to succeed, got %d", first.StatusCode)
	}

	second := postTiles(t, server, "unit=px&value=10", body)
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestHandleSplitError_Extraction(t *testing.T) {
	s := NewServer("test", 0)
	rec := httptest.NewRecorder()
	requestID := "req_test"

	s.handleSplitError(rec, &tiler.ExportError{
		Message:  "export stopped at tile 4: 4 of 9 tiles produced",
		Index:    4,
		Produced: 4,
		Total:    9,
		Err:      errors.New("disk full"),
	}, &requestID)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}
	var resp api.ExtractionErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != "EXTRACTION_FAILED" || resp.TileIndex != 4 || resp.Produced != 4 || resp.Total != 9 {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestCORSHeaders(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	req, err := http.NewRequest("OPTIONS", server.URL+"/api/v1/tiles", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected Access-Control-Allow-Origin: *")
	}

	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Error("Expected Access-Control-Allow-Methods to include POST")
	}

	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type") {
		t.Error("Expected Access-Control-Allow-Headers to include Content-Type")
	}
}

func TestLegacyHealthRedirect(t *testing.T) {
	server := setupTestServer(0)
	defer server.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently {
		t.Errorf("Expected status 301, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/v1/health" {
		t.Errorf("Expected redirect to /api/v1/health, got %s", loc)
	}
}
