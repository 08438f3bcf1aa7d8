// Package media resolves image references to decoded bitmaps and validates
// uploads.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"image-editor-server/assets"
	"image-editor-server/core"
)

const (
	// DefaultMaxBytes caps uploads and fetched images.
	DefaultMaxBytes = 10 << 20
	// MaxPixels caps the decoded size of any image, whatever its encoded size.
	MaxPixels = 50_000_000
)

var (
	ErrNoFile   = errors.New("no file selected")
	ErrNotImage = errors.New("file is not an image")
	ErrTooLarge = errors.New("file is too large")
	ErrBadRef   = errors.New("unsupported image reference")

	// ErrHostNotAllowed wraps ErrBadRef for URLs outside the fetch allowlist.
	ErrHostNotAllowed = fmt.Errorf("%w: host not allowed", ErrBadRef)
)

// AllowedTypes are the content types accepted for upload.
var AllowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/bmp":  true,
	"image/gif":  true,
}

// Validate checks an upload before anything is sent anywhere and returns its
// sniffed content type.
func Validate(data []byte, maxBytes int64) (string, error) {
	if len(data) == 0 {
		return "", ErrNoFile
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), maxBytes)
	}
	contentType := http.DetectContentType(data)
	if !AllowedTypes[contentType] {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}
	if err := checkPixels(data); err != nil {
		return "", err
	}
	return contentType, nil
}

// checkPixels reads only the image header and rejects bitmaps over MaxPixels.
func checkPixels(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// Decode decodes any registered image format. The header is checked against
// MaxPixels before any pixel is allocated.
func Decode(data []byte) (image.Image, error) {
	if err := checkPixels(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return img, nil
}

// Loader fetches and decodes image references: data URLs, http(s) URLs,
// embedded assets and images held by the store. http(s) URLs are fetched
// only from hosts added with Allow.
type Loader struct {
	images   core.ImageStore
	client   *http.Client
	maxBytes int64

	mu    sync.RWMutex
	hosts map[string]bool
}

func NewLoader(images core.ImageStore, client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	l := &Loader{images: images, maxBytes: DefaultMaxBytes, hosts: make(map[string]bool)}
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return l.checkHost(req.URL)
	}
	l.client = &c
	return l
}

// Allow adds the hosts of the given base URLs to the fetch allowlist. Empty
// and unparseable values are skipped.
func (l *Loader) Allow(baseURLs ...string) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, raw := range baseURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			logrus.WithField("url", raw).Warn("Ignoring invalid image host")
			continue
		}
		l.hosts[strings.ToLower(u.Host)] = true
	}
	return l
}

func (l *Loader) checkHost(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	l.mu.RLock()
	ok := l.hosts[strings.ToLower(u.Host)]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host)
	}
	return nil
}

// Load returns the decoded image and its encoded bytes.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, []byte, error) {
	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s: %w", shortRef(ref), err)
	}
	return img, data, nil
}

func (l *Loader) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref, l.maxBytes)
	case strings.HasPrefix(ref, assets.RefPrefix):
		return assets.Open(ref)
	case strings.HasPrefix(ref, "/api/images/"):
		id := strings.TrimPrefix(ref, "/api/images/")
		img, err := l.images.FindImage(ctx, id)
		if err != nil {
			return nil, err
		}
		return img.Data.Bytes(), nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.get(ctx, ref)
	}
	return nil, fmt.Errorf("%w: %s", ErrBadRef, shortRef(ref))
}

func (l *Loader) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRef, err)
	}
	if err := l.checkHost(req.URL); err != nil {
		logrus.WithField("url", ref).Warn("Refusing to fetch image")
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", ref, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%s: %w", ref, ErrTooLarge)
	}
	logrus.WithFields(logrus.Fields{
		"url":         ref,
		"data_length": len(data),
	}).Debug("Fetched remote image")
	return data, nil
}

func decodeDataURL(ref string, maxBytes int64) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data URL", ErrBadRef)
	}
	meta, payload := ref[len("data:"):comma], ref[comma+1:]
	var data []byte
	if strings.HasSuffix(meta, ";base64") {
		if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
			return nil, fmt.Errorf("data URL: %w", ErrTooLarge)
		}
		var err error
		if data, err = base64.StdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRef, err)
		}
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRef, err)
		}
		data = []byte(s)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("data URL: %w", ErrTooLarge)
	}
	return data, nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func shortRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}

// Cache holds decoded images by reference. It satisfies the compositor's
// image source.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

func NewCache() *Cache {
	return &Cache{images: make(map[string]image.Image)}
}

func (c *Cache) Image(ref string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[ref]
	return img, ok
}

func (c *Cache) Put(ref string, img image.Image) {
	c.mu.Lock()
	c.images[ref] = img
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
