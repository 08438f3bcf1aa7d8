package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"image-editor-server/core"
	"image-editor-server/stores/memory"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}
	return buf.Bytes()
}

// pngHeader is a PNG signature and IHDR chunk declaring w x h. It is enough
// for image.DecodeConfig and costs a few bytes however large the image claims
// to be.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, w)
	binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 6, 0, 0, 0})

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(ihdr.Len()-4))
	buf.Write(ihdr.Bytes())
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	data := testPNG(t, 2, 2)

	if ct, err := Validate(data, 0); err != nil || ct != "image/png" {
		t.Errorf("Validate(png) = %q, %v", ct, err)
	}
	if _, err := Validate(nil, 0); !errors.Is(err, ErrNoFile) {
		t.Errorf("Validate(nil) error = %v, want ErrNoFile", err)
	}
	if _, err := Validate([]byte("hello, world"), 0); !errors.Is(err, ErrNotImage) {
		t.Errorf("Validate(text) error = %v, want ErrNotImage", err)
	}
	if _, err := Validate(data, 10); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Validate(oversized) error = %v, want ErrTooLarge", err)
	}
	if _, err := Validate(pngHeader(12000, 12000), 0); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Validate(12000x12000) error = %v, want ErrTooLarge", err)
	}
}

func TestDecode_PixelBudget(t *testing.T) {
	if _, err := Decode(pngHeader(12000, 12000)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Decode(12000x12000) error = %v, want ErrTooLarge", err)
	}
	if _, err := Decode(testPNG(t, 4, 4)); err != nil {
		t.Errorf("Decode(4x4) error: %v", err)
	}
}

func TestLoader_HostAllowlist(t *testing.T) {
	data := testPNG(t, 2, 2)
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(data)
	}))
	defer internal.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/admin", http.StatusFound)
	}))
	defer redirector.Close()

	l := NewLoader(memory.NewStore(), nil).Allow(redirector.URL, "", "::not a url")

	testCases := []struct {
		name string
		ref  string
	}{
		{"Loopback host", internal.URL + "/internal/admin"},
		{"Redirect to unlisted host", redirector.URL + "/img.png"},
		{"Private address", "http://10.0.0.1/img.png"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := l.Load(context.Background(), tc.ref); !errors.Is(err, ErrBadRef) {
				t.Errorf("Load(%s) error = %v, want ErrBadRef", tc.ref, err)
			}
		})
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("unlisted host was fetched %d times", n)
	}

	l.Allow(internal.URL)
	if _, _, err := l.Load(context.Background(), internal.URL+"/img.png"); err != nil {
		t.Errorf("Load(allowed host) error: %v", err)
	}
}

func TestLoader_DataURLLimit(t *testing.T) {
	l := NewLoader(memory.NewStore(), nil)
	l.maxBytes = 1024

	big := DataURL("image/png", bytes.Repeat([]byte{0}, 4096))
	if _, _, err := l.Load(context.Background(), big); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Load(4 KiB data URL) error = %v, want ErrTooLarge", err)
	}
	plain := "data:image/png," + string(bytes.Repeat([]byte("a"), 2048))
	if _, _, err := l.Load(context.Background(), plain); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Load(2 KiB plain data URL) error = %v, want ErrTooLarge", err)
	}

	header := DataURL("image/png", pngHeader(12000, 12000))
	if _, _, err := l.Load(context.Background(), header); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Load(12000x12000 data URL) error = %v, want ErrTooLarge", err)
	}
}

func TestLoader_Refs(t *testing.T) {
	data := testPNG(t, 3, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	store := memory.NewStore()
	stored := &core.Image{ContentType: "image/png"}
	stored.Data.Write(data)
	id, _ := store.SaveImage(context.Background(), stored)

	l := NewLoader(store, srv.Client()).Allow(srv.URL)
	refs := []string{
		DataURL("image/png", data),
		srv.URL + "/img.png",
		core.ImagePath(id),
		"asset:sunset",
	}
	for _, ref := range refs {
		img, raw, err := l.Load(context.Background(), ref)
		if err != nil {
			t.Errorf("Load(%s) error: %v", shortRef(ref), err)
			continue
		}
		if img.Bounds().Dx() == 0 || len(raw) == 0 {
			t.Errorf("Load(%s) returned empty image", shortRef(ref))
		}
	}

	if _, _, err := l.Load(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Error("expected error for 404")
	}
	if _, _, err := l.Load(context.Background(), "blob:abc"); !errors.Is(err, ErrBadRef) {
		t.Errorf("Load(blob:) error = %v, want ErrBadRef", err)
	}
	if _, _, err := l.Load(context.Background(), "/api/images/missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Load(missing image) error = %v, want ErrNotFound", err)
	}
}

func TestLoader_NotAnImage(t *testing.T) {
	l := NewLoader(memory.NewStore(), nil)
	if _, _, err := l.Load(context.Background(), "data:text/plain,hello"); !errors.Is(err, ErrNotImage) {
		t.Errorf("Load(text data URL) error = %v, want ErrNotImage", err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	if _, ok := c.Image("x"); ok {
		t.Error("empty cache returned an image")
	}
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	c.Put("x", img)
	if got, ok := c.Image("x"); !ok || got != img {
		t.Error("cache lost the image")
	}
}
