package extract

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ParseColor reads a background colour: an SVG colour name, "transparent",
// or hex in the form #rgb, #rrggbb or #rrggbbaa (the # is optional).
func ParseColor(s string) (color.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.White, nil
	}
	if s == "transparent" {
		return color.Transparent, nil
	}
	if c, ok := colornames.Map[s]; ok {
		return c, nil
	}

	hex := "#" + strings.TrimPrefix(s, "#")
	alpha := uint8(0xff)
	switch len(hex) {
	case 4, 7:
	case 9:
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid colour %q", s)
		}
		alpha, hex = uint8(a), hex[:7]
	default:
		return nil, fmt.Errorf("invalid colour %q", s)
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid colour %q", s)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
