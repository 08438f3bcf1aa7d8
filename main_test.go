package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"image-editor-server/assets"
	"image-editor-server/editor"
	"image-editor-server/handlers/api/upload"
	"image-editor-server/handlers/websocket"
	authMiddleware "image-editor-server/middleware"
	"image-editor-server/remote"
	"image-editor-server/stores/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog, err := assets.Load()
	if err != nil {
		t.Fatalf("assets.Load() error: %v", err)
	}
	registry := editor.NewRegistry()
	tokens := authMiddleware.NewTokens([]byte("test-secret"), time.Hour)
	s := &server{
		store:    memory.NewStore(),
		catalog:  catalog,
		registry: registry,
		tokens:   tokens,
		remote:   remote.NewClient(remote.Config{}),
		hub:      websocket.NewHub(registry, tokens),
		config:   editor.Config{Debounce: 10 * time.Millisecond},
	}
	ts := httptest.NewServer(setupRouter(s))
	t.Cleanup(func() {
		ts.Close()
		registry.CloseAll()
	})
	return ts
}

func uploadImage(t *testing.T, ts *httptest.Server) upload.UploadResponse {
	t.Helper()
	var img bytes.Buffer
	png.Encode(&img, image.NewNRGBA(image.Rect(0, 0, 64, 32)))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "photo.png")
	fw.Write(img.Bytes())
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
	var response upload.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return response
}

func do(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	return doBody(t, method, url, token, "")
}

func doBody(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func TestUploadOpenExport(t *testing.T) {
	ts := newTestServer(t)
	up := uploadImage(t, ts)

	// Without a background removal service the session edits the original.
	if up.BackgroundRemoved || up.Notice != upload.FallbackNotice || up.Current != up.Original {
		t.Errorf("upload response = %+v", up)
	}

	base := ts.URL + "/api/sessions/" + up.SessionID

	resp := do(t, http.MethodPost, base+"/editor", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("open without token: status %d, want 401", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, base+"/editor", up.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open: status %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base+"/export?token="+up.Token, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d", resp.StatusCode)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("export is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("export size = %v, want 64x32", b)
	}
}

func TestSessionTokenScope(t *testing.T) {
	ts := newTestServer(t)
	a := uploadImage(t, ts)
	b := uploadImage(t, ts)

	resp := do(t, http.MethodGet, ts.URL+"/api/sessions/"+a.SessionID+"/", b.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-session access: status %d, want 403", resp.StatusCode)
	}
}

func TestUploadedImageServed(t *testing.T) {
	ts := newTestServer(t)
	up := uploadImage(t, ts)

	resp := do(t, http.MethodGet, ts.URL+up.Original, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("image: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestAssetsListed(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/assets", "")
	defer resp.Body.Close()

	var catalog assets.Catalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		t.Fatalf("Failed to decode catalog: %v", err)
	}
	if len(catalog.TextStyles) == 0 {
		t.Error("no text styles listed")
	}
}

func TestBackgroundImage_UnlistedHost(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer internal.Close()

	ts := newTestServer(t)
	up := uploadImage(t, ts)
	base := ts.URL + "/api/sessions/" + up.SessionID

	resp := do(t, http.MethodPost, base+"/editor", up.Token)
	resp.Body.Close()

	resp = doBody(t, http.MethodPut, base+"/background/image", up.Token, `{"ref":"`+internal.URL+`/admin"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("background image from unlisted host: status %d, want 400", resp.StatusCode)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("unlisted host was fetched %d times", n)
	}
}
