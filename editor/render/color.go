package render

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ErrBadColor is returned for values ParseColor cannot read.
var ErrBadColor = errors.New("invalid color")

// ParseColor understands the CSS forms the editor panels send: "#rgb",
// "#rrggbb", "#rrggbbaa", "rgb(...)", "rgba(...)", named colors and
// "transparent".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "transparent" || s == "none":
		return color.NRGBA{}, nil
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb"):
		return parseFunc(s)
	}
	if c, ok := colornames.Map[s]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return color.NRGBA{}, fmt.Errorf("%w %q", ErrBadColor, s)
}

func parseHex(h string) (color.NRGBA, error) {
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]}) + "ff"
	case 6:
		h += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("%w #%s", ErrBadColor, h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w #%s: %v", ErrBadColor, h, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFunc(s string) (color.NRGBA, error) {
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return color.NRGBA{}, fmt.Errorf("%w %q", ErrBadColor, s)
	}
	parts := strings.Split(s[open+1:end], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("%w %q", ErrBadColor, s)
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%w %q: %v", ErrBadColor, s, err)
		}
		ch[i] = clampByte(v)
	}
	alpha := 1.0
	if len(parts) == 4 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("%w %q: %v", ErrBadColor, s, err)
		}
		alpha = clamp(v, 0, 1)
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: clampByte(alpha * 255)}, nil
}

// withOpacity scales the alpha of c by opacity in [0, 1].
func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	c.A = clampByte(float64(c.A) * clamp(opacity, 0, 1))
	return c
}
