package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiesman99/tilegrid/pkg/tile"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestImageNameAndDefaultOutput(t *testing.T) {
	tests := []struct {
		path     string
		wantName string
		wantOut  string
	}{
		{"scans/map.tif", "map.tif", filepath.Join("scans", "map_tiles")},
		{"poster.png", "poster.png", "poster_tiles"},
		{"https://example.com/img/photo.jpg?size=large", "photo.jpg", "photo_tiles"},
	}
	for _, tt := range tests {
		if got := imageName(tt.path); got != tt.wantName {
			t.Errorf("imageName(%q) = %q, want %q", tt.path, got, tt.wantName)
		}
		if got := defaultOutput(tt.path); got != tt.wantOut {
			t.Errorf("defaultOutput(%q) = %q, want %q", tt.path, got, tt.wantOut)
		}
	}
}

func TestPrintGrid(t *testing.T) {
	cfg := tile.Config{Unit: tile.Millimeters, Value: 10, DPI: 254, Strategy: tile.Pad}
	g, err := tile.ComputeGrid(2500, 1000, cfg)
	if err != nil {
		t.Fatalf("ComputeGrid: %v", err)
	}

	var buf bytes.Buffer
	printGrid(&buf, g, cfg)
	out := buf.String()

	for _, want := range []string{
		"Source:     2,500 x 1,000 px",
		"Tile:       100 x 100 px (10.00 x 10.00 mm",
		"Grid:       25 columns x 10 rows = 250 tiles",
		"Coverage:   2,500 x 1,000 px",
		"Estimated:  9.5 MiB uncompressed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Padding") || strings.Contains(out, "Cropped") {
		t.Errorf("Did not expect a remainder line for an exact grid:\n%s", out)
	}
}

func TestPrintGridRemainder(t *testing.T) {
	crop := tile.Config{Unit: tile.Pixels, Value: 30, Strategy: tile.Crop}
	g, _ := tile.ComputeGrid(100, 60, crop)
	var buf bytes.Buffer
	printGrid(&buf, g, crop)
	if !strings.Contains(buf.String(), "Cropped:    10 px right, 0 px bottom") {
		t.Errorf("Unexpected crop report:\n%s", buf.String())
	}

	pad := tile.Config{Unit: tile.Pixels, Value: 30, Strategy: tile.Pad}
	g, _ = tile.ComputeGrid(100, 60, pad)
	buf.Reset()
	printGrid(&buf, g, pad)
	if !strings.Contains(buf.String(), "Padding:    20 px right, 0 px bottom") {
		t.Errorf("Unexpected pad report:\n%s", buf.String())
	}
}
