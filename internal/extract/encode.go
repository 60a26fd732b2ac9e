package extract

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
)

// Encoder serialises one tile image
type Encoder interface {
	Encode(w io.Writer, m image.Image) error
}

// Compression is the zlib effort used for PNG output. Every level is lossless.
type Compression = png.CompressionLevel

const (
	DefaultCompression = png.DefaultCompression
	NoCompression      = png.NoCompression
	BestSpeed          = png.BestSpeed
	BestCompression    = png.BestCompression
)

// ParseCompression accepts default, none, speed or best
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return DefaultCompression, nil
	case "none":
		return NoCompression, nil
	case "speed", "fast":
		return BestSpeed, nil
	case "best":
		return BestCompression, nil
	}
	return 0, fmt.Errorf("unknown png compression %q (want default, none, speed or best)", s)
}

// PNGEncoder writes tiles as PNG, reusing its zlib buffers between tiles
type PNGEncoder struct {
	enc png.Encoder
}

// NewPNGEncoder returns a PNG encoder with the given compression
func NewPNGEncoder(level Compression) *PNGEncoder {
	return &PNGEncoder{enc: png.Encoder{
		CompressionLevel: level,
		BufferPool:       &encoderBufferPool{},
	}}
}

// Encode implements Encoder. It is safe for concurrent use.
func (p *PNGEncoder) Encode(w io.Writer, m image.Image) error {
	return p.enc.Encode(w, m)
}

type encoderBufferPool struct {
	pool sync.Pool
}

func (p *encoderBufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *encoderBufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}
