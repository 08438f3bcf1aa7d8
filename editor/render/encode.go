package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

var ErrBadFormat = errors.New("unsupported export format")

type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat accepts "png", "jpeg" and "jpg". Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", fmt.Errorf("%w %q", ErrBadFormat, s)
}

func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return ".png"
}

// Encode writes img in format f. Quality only applies to JPEG and is clamped
// to [1, 100]; zero means 90.
func Encode(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case JPEG:
		if quality == 0 {
			quality = 90
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampInt(quality, 1, 100)))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", f, err)
	}
	return buf.Bytes(), nil
}
