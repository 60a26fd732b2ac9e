// Package source decodes input images into pixel sources for extraction
package source

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"

	"github.com/disintegration/imaging"

	// Formats beyond the ones imaging registers.
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the dimensions Open and Decode accept: 256
// megapixels, 1 GiB once decoded at 8 bits per channel.
const DefaultMaxPixels = 1 << 28

var (
	// ErrUnsupportedImage is returned when the input is not a decodable image
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")

	// ErrImageTooLarge is returned when the declared dimensions exceed
	// the pixel limit. The check runs on the header, before any pixel
	// memory is allocated.
	ErrImageTooLarge = errors.New("image dimensions exceed limit")
)

// Image is a decoded raster held in memory
type Image struct {
	img    image.Image
	format string
}

// FromImage wraps an already decoded image
func FromImage(img image.Image) *Image {
	return &Image{img: img}
}

// Open decodes the image file at path with DefaultMaxPixels. EXIF
// orientation is applied when autoOrient is set, so the grid matches what
// viewers display.
func Open(path string, autoOrient bool) (*Image, error) {
	return OpenLimit(path, autoOrient, DefaultMaxPixels)
}

// OpenLimit is Open with an explicit pixel limit; maxPixels <= 0 disables it.
func OpenLimit(path string, autoOrient bool, maxPixels int64) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}
	if err := checkPixels(cfg, maxPixels); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	img, err := imaging.Decode(f, imaging.AutoOrientation(autoOrient))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}
	return &Image{img: img, format: format}, nil
}

// Decode reads an image from r with DefaultMaxPixels
func Decode(r io.Reader, autoOrient bool) (*Image, error) {
	return DecodeLimit(r, autoOrient, DefaultMaxPixels)
}

// DecodeLimit reads an image from r, rejecting it with ErrImageTooLarge
// when its header declares more than maxPixels pixels. maxPixels <= 0
// disables the check. The stream is buffered so the header can be read
// before decoding.
func DecodeLimit(r io.Reader, autoOrient bool, maxPixels int64) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if err := checkPixels(cfg, maxPixels); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(autoOrient))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return &Image{img: img, format: format}, nil
}

func checkPixels(cfg image.Config, maxPixels int64) error {
	if maxPixels <= 0 {
		return nil
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return fmt.Errorf("%w: %dx%d is %d pixels, limit is %d", ErrImageTooLarge, cfg.Width, cfg.Height, px, maxPixels)
	}
	return nil
}

// Format is the detected encoding, e.g. "png" or "jpeg"
func (m *Image) Format() string {
	return m.format
}

// ColorModel is the model of the decoded pixels. 16-bit models make the
// extractor keep 16 bits per channel.
func (m *Image) ColorModel() color.Model {
	return m.img.ColorModel()
}

// Size implements extract.PixelSource
func (m *Image) Size() (int, int) {
	b := m.img.Bounds()
	return b.Dx(), b.Dy()
}

// ReadRegion implements extract.PixelSource. r is relative to the top-left
// corner of the image; the returned image keeps the bounds of the
// underlying image, translated by its origin.
func (m *Image) ReadRegion(r image.Rectangle) (image.Image, error) {
	b := m.img.Bounds()
	abs := r.Add(b.Min)
	if r.Empty() || !abs.In(b) {
		return nil, fmt.Errorf("region %v outside image %dx%d", r, b.Dx(), b.Dy())
	}
	if sub, ok := m.img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(abs), nil
	}

	rect := image.Rect(0, 0, r.Dx(), r.Dy())
	var out draw.Image = image.NewNRGBA(rect)
	switch m.img.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model, color.Alpha16Model:
		out = image.NewNRGBA64(rect)
	}
	draw.Draw(out, rect, m.img, abs.Min, draw.Src)
	return out, nil
}
