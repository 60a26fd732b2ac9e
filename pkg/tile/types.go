package tile

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Unit selects how Config.Value is interpreted
type Unit int

const (
	Pixels Unit = iota
	Millimeters
	Inches
	Count
)

// String returns the canonical text form of the unit
func (u Unit) String() string {
	switch u {
	case Pixels:
		return "pixels"
	case Millimeters:
		return "mm"
	case Inches:
		return "inches"
	case Count:
		return "count"
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// Physical reports whether the unit needs a resolution to become pixels
func (u Unit) Physical() bool {
	return u == Millimeters || u == Inches
}

// ParseUnit parses the text form of a unit
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pixels", "pixel", "px":
		return Pixels, nil
	case "mm", "millimeters", "millimetres":
		return Millimeters, nil
	case "in", "inch", "inches":
		return Inches, nil
	case "count":
		return Count, nil
	}
	return 0, fmt.Errorf("unknown unit %q (want pixels, mm, inches or count)", s)
}

// Strategy decides what happens to pixels left over at the right and bottom edges
type Strategy int

const (
	// Crop keeps only complete tiles
	Crop Strategy = iota
	// Pad adds an edge column/row filled out with the background colour
	Pad
)

// String returns the canonical text form of the strategy
func (s Strategy) String() string {
	switch s {
	case Crop:
		return "crop"
	case Pad:
		return "pad"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy parses the text form of a remainder strategy
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crop":
		return Crop, nil
	case "pad":
		return Pad, nil
	}
	return 0, fmt.Errorf("unknown remainder strategy %q (want crop or pad)", s)
}

// Config describes how an image should be divided
type Config struct {
	Unit     Unit
	Value    float64
	DPI      int // 0 means not supplied
	Strategy Strategy
}

// Grid is the tile layout computed for one image and configuration.
// PaddedWidth and PaddedHeight are zero unless the Pad strategy added an
// edge column or row.
type Grid struct {
	TileWidth    int `json:"tile_width_px"`
	TileHeight   int `json:"tile_height_px"`
	Columns      int `json:"columns"`
	Rows         int `json:"rows"`
	TotalTiles   int `json:"total_tiles"`
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`
	PaddedWidth  int `json:"padded_width,omitempty"`
	PaddedHeight int `json:"padded_height,omitempty"`
}

// Coordinates is the source-side read rectangle of one tile
type Coordinates struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the coordinates as an image.Rectangle
func (c Coordinates) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

// ErrInvalidConfiguration is matched by every configuration error
var ErrInvalidConfiguration = errors.New("invalid tile configuration")

// ConfigError names the constraint a configuration violates
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid tile configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}
