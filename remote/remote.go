// Package remote talks to the background-removal and object-removal services.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 2 * time.Minute

var (
	// ErrServiceUnavailable covers transport failures and unconfigured services.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrBadResponse means the service answered, but not with a usable result.
	ErrBadResponse = errors.New("bad response from service")
)

type Config struct {
	BackgroundRemovalURL string
	ObjectRemovalURL     string
	Timeout              time.Duration
}

// ConfigFromEnv reads BG_REMOVAL_URL, OBJECT_REMOVAL_URL and REMOTE_TIMEOUT.
func ConfigFromEnv() Config {
	cfg := Config{
		BackgroundRemovalURL: os.Getenv("BG_REMOVAL_URL"),
		ObjectRemovalURL:     os.Getenv("OBJECT_REMOVAL_URL"),
		Timeout:              DefaultTimeout,
	}
	if v := os.Getenv("REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		} else {
			logrus.WithField("value", v).Warn("Ignoring invalid REMOTE_TIMEOUT")
		}
	}
	if cfg.BackgroundRemovalURL == "" {
		logrus.Warn("BG_REMOVAL_URL not set. Uploads will skip background removal.")
	}
	if cfg.ObjectRemovalURL == "" {
		logrus.Warn("OBJECT_REMOVAL_URL not set. Object removal will not work.")
	}
	return cfg
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

type result struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// RemoveBackground uploads an image and returns the URL of the cut-out. Any
// failure is reported as ErrServiceUnavailable; the caller falls back to the
// original.
func (c *Client) RemoveBackground(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	log := logrus.WithField("service", "background-removal")
	res, base, err := c.post(ctx, c.cfg.BackgroundRemovalURL, part{"file", filename, contentType, data})
	if err != nil {
		log.WithError(err).Warn("Background removal failed")
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if res.Status != "success" || res.URL == "" {
		log.WithField("status", res.Status).Warn("Background removal returned no image")
		return "", fmt.Errorf("%w: status %q", ErrServiceUnavailable, res.Status)
	}
	u := resolve(base, res.URL)
	log.WithField("url", u).Info("Background removed")
	return u, nil
}

// RemoveObject sends the composite and the hard mask, both PNG, and returns
// the URL of the inpainted image.
func (c *Client) RemoveObject(ctx context.Context, composite, mask []byte) (string, error) {
	log := logrus.WithField("service", "object-removal")
	res, base, err := c.post(ctx, c.cfg.ObjectRemovalURL,
		part{"image", "image.png", "image/png", composite},
		part{"mask", "mask.png", "image/png", mask},
	)
	if err != nil {
		log.WithError(err).Error("Object removal failed")
		return "", err
	}
	if res.URL == "" {
		log.Error("Object removal response has no url")
		return "", fmt.Errorf("%w: missing url", ErrBadResponse)
	}
	u := resolve(base, res.URL)
	log.WithField("url", u).Info("Object removed")
	return u, nil
}

func (c *Client) post(ctx context.Context, endpoint string, parts ...part) (result, *url.URL, error) {
	var res result
	if endpoint == "" {
		return res, nil, fmt.Errorf("%w: not configured", ErrServiceUnavailable)
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return res, nil, fmt.Errorf("%w: invalid endpoint: %v", ErrServiceUnavailable, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return res, nil, err
		}
		if _, err := w.Write(p.data); err != nil {
			return res, nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return res, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return res, nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return res, nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return res, nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return res, base, nil
}

// resolve makes a relative result URL absolute against the service URL.
func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
