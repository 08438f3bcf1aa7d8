package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoveBackground_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "png-bytes" || hdr.Filename != "cat.png" {
			t.Errorf("file = %q %q", hdr.Filename, data)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "success", "url": "/out/cat.png"})
	}))
	defer srv.Close()

	c := NewClient(Config{BackgroundRemovalURL: srv.URL + "/remove-bg"})
	u, err := c.RemoveBackground(context.Background(), "cat.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("RemoveBackground() error: %v", err)
	}
	if u != srv.URL+"/out/cat.png" {
		t.Errorf("url = %q, want %q", u, srv.URL+"/out/cat.png")
	}
}

func TestRemoveBackground_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status not success", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "error"})
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewClient(Config{BackgroundRemovalURL: srv.URL})
			if _, err := c.RemoveBackground(context.Background(), "a.png", "image/png", []byte("x")); !errors.Is(err, ErrServiceUnavailable) {
				t.Errorf("error = %v, want ErrServiceUnavailable", err)
			}
		})
	}

	c := NewClient(Config{})
	if _, err := c.RemoveBackground(context.Background(), "a.png", "image/png", []byte("x")); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("unconfigured error = %v, want ErrServiceUnavailable", err)
	}
}

func TestRemoveObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, field := range []string{"image", "mask"} {
			f, _, err := r.FormFile(field)
			if err != nil {
				t.Errorf("missing %s part: %v", field, err)
				continue
			}
			data, _ := io.ReadAll(f)
			if string(data) != field+"-bytes" {
				t.Errorf("%s = %q", field, data)
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example.com/result.png"})
	}))
	defer srv.Close()

	c := NewClient(Config{ObjectRemovalURL: srv.URL})
	u, err := c.RemoveObject(context.Background(), []byte("image-bytes"), []byte("mask-bytes"))
	if err != nil {
		t.Fatalf("RemoveObject() error: %v", err)
	}
	if u != "https://cdn.example.com/result.png" {
		t.Errorf("url = %q", u)
	}
}

func TestRemoveObject_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ObjectRemovalURL: srv.URL})
	if _, err := c.RemoveObject(context.Background(), nil, nil); !errors.Is(err, ErrBadResponse) {
		t.Errorf("error = %v, want ErrBadResponse", err)
	}
}

func TestRemoveObject_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c := NewClient(Config{ObjectRemovalURL: endpoint})
	if _, err := c.RemoveObject(context.Background(), nil, nil); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error = %v, want ErrServiceUnavailable", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BG_REMOVAL_URL", "http://bg")
	t.Setenv("OBJECT_REMOVAL_URL", "http://obj")
	t.Setenv("REMOTE_TIMEOUT", "5s")
	cfg := ConfigFromEnv()
	if cfg.BackgroundRemovalURL != "http://bg" || cfg.ObjectRemovalURL != "http://obj" || cfg.Timeout.Seconds() != 5 {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("REMOTE_TIMEOUT", "soon")
	if cfg := ConfigFromEnv(); cfg.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want default", cfg.Timeout)
	}
}
