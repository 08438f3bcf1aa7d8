package upload

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"image-editor-server/core"
)

// Mock store for testing
type mockStore struct {
	mu        sync.Mutex
	sessions  map[string]*core.Session
	images    map[string]*core.Image
	createErr error
	saveErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: make(map[string]*core.Session),
		images:   make(map[string]*core.Image),
	}
}

func (m *mockStore) CreateSession(ctx context.Context, s *core.Session) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("session-%d", len(m.sessions))
	s.ID = id
	m.sessions[id] = s
	return id, nil
}

func (m *mockStore) FindSession(ctx context.Context, id string) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return s, nil
}

func (m *mockStore) UpdateSession(ctx context.Context, s *core.Session) error { return nil }
func (m *mockStore) DeleteSession(ctx context.Context, id string) error      { return nil }

func (m *mockStore) SaveImage(ctx context.Context, img *core.Image) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("image-%d", len(m.images))
	m.images[id] = img
	return id, nil
}

func (m *mockStore) FindImage(ctx context.Context, id string) (*core.Image, error) {
	return nil, core.ErrNotFound
}

type mockRemover struct {
	url   string
	err   error
	calls int
}

func (m *mockRemover) RemoveBackground(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	m.calls++
	return m.url, m.err
}

type mockTokens struct{}

func (mockTokens) Issue(sessionID string, backgroundRemoved bool) (string, error) {
	return "token-" + sessionID, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "photo.png")
		if err != nil {
			t.Fatalf("CreateFormFile() error: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) UploadResponse {
	t.Helper()
	var response UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestHandleUpload_BackgroundRemoved(t *testing.T) {
	store := newMockStore()
	remover := &mockRemover{url: "http://bg.local/out/cutout.png"}
	handler := HandleUpload(store, remover, mockTokens{}, Config{PublicBaseURL: "https://editor.example.com/"})

	rec := httptest.NewRecorder()
	handler(rec, uploadRequest(t, "file", pngBytes(t)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	response := decode(t, rec)
	if !response.BackgroundRemoved || response.Notice != "" {
		t.Errorf("response = %+v", response)
	}
	if response.Current != "http://bg.local/out/cutout.png" {
		t.Errorf("Current = %q", response.Current)
	}
	if response.Original != "https://editor.example.com/api/images/image-0" {
		t.Errorf("Original = %q", response.Original)
	}
	if response.Token != "token-"+response.SessionID {
		t.Errorf("Token = %q", response.Token)
	}

	session := store.sessions[response.SessionID]
	if session == nil || session.Original != "/api/images/image-0" || !session.BackgroundRemoved {
		t.Errorf("stored session = %+v", session)
	}
	if store.images["image-0"].ContentType != "image/png" {
		t.Errorf("stored content type = %q", store.images["image-0"].ContentType)
	}
}

func TestHandleUpload_FallbackToOriginal(t *testing.T) {
	store := newMockStore()
	remover := &mockRemover{err: errors.New("service unavailable")}
	handler := HandleUpload(store, remover, mockTokens{}, Config{})

	rec := httptest.NewRecorder()
	handler(rec, uploadRequest(t, "file", pngBytes(t)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	response := decode(t, rec)
	if response.BackgroundRemoved {
		t.Error("BackgroundRemoved should be false")
	}
	if response.Notice != FallbackNotice {
		t.Errorf("Notice = %q", response.Notice)
	}
	if response.Current != response.Original || response.Original != "/api/images/image-0" {
		t.Errorf("Current = %q, Original = %q", response.Current, response.Original)
	}
}

func TestHandleUpload_NoRemover(t *testing.T) {
	store := newMockStore()
	handler := HandleUpload(store, nil, mockTokens{}, Config{})

	rec := httptest.NewRecorder()
	handler(rec, uploadRequest(t, "file", pngBytes(t)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusCreated)
	}
	if response := decode(t, rec); response.BackgroundRemoved || response.Notice != "" {
		t.Errorf("response = %+v", response)
	}
}

// hugePNG is a valid PNG header declaring a 12000x12000 image with no pixel
// data behind it.
func hugePNG() []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, uint32(12000))
	binary.Write(&ihdr, binary.BigEndian, uint32(12000))
	ihdr.Write([]byte{8, 6, 0, 0, 0})

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(ihdr.Bytes())
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return buf.Bytes()
}

func TestHandleUpload_Rejected(t *testing.T) {
	testCases := []struct {
		name  string
		field string
		data  []byte
		max   int64
		want  int
		error string
	}{
		{"No file", "", nil, 0, http.StatusBadRequest, "no file"},
		{"Wrong field", "image", []byte("x"), 0, http.StatusBadRequest, "no file"},
		{"Empty file", "file", []byte{}, 0, http.StatusBadRequest, "no file"},
		{"Not an image", "file", []byte("just some text"), 0, http.StatusBadRequest, "not an image"},
		{"Too large", "file", bytes.Repeat([]byte{0x89}, 2048), 1024, http.StatusRequestEntityTooLarge, "too large"},
		{"Too many pixels", "file", hugePNG(), 0, http.StatusRequestEntityTooLarge, "too large"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockStore()
			remover := &mockRemover{url: "http://bg.local/x.png"}
			handler := HandleUpload(store, remover, mockTokens{}, Config{MaxBytes: tc.max})

			rec := httptest.NewRecorder()
			handler(rec, uploadRequest(t, tc.field, tc.data))

			if rec.Code != tc.want {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tc.want)
			}
			if !strings.Contains(rec.Body.String(), tc.error) {
				t.Errorf("Error message mismatch: got %q", rec.Body.String())
			}
			if remover.calls != 0 || len(store.images) != 0 || len(store.sessions) != 0 {
				t.Error("rejected upload reached the store or the remote service")
			}
		})
	}
}

func TestHandleUpload_StoreErrors(t *testing.T) {
	store := newMockStore()
	store.saveErr = errors.New("disk full")
	rec := httptest.NewRecorder()
	HandleUpload(store, nil, mockTokens{}, Config{})(rec, uploadRequest(t, "file", pngBytes(t)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	store = newMockStore()
	store.createErr = errors.New("database error")
	rec = httptest.NewRecorder()
	HandleUpload(store, nil, mockTokens{}, Config{})(rec, uploadRequest(t, "file", pngBytes(t)))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
