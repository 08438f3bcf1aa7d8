// Package storetest holds the behavior every core.Store implementation must share.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"image-editor-server/core"
)

// Run exercises store against the core.Store contract.
func Run(t *testing.T, store core.Store) {
	t.Run("SessionLifecycle", func(t *testing.T) { testSessionLifecycle(t, store) })
	t.Run("SessionNotFound", func(t *testing.T) { testSessionNotFound(t, store) })
	t.Run("ImageRoundTrip", func(t *testing.T) { testImageRoundTrip(t, store) })
	t.Run("ImageNotFound", func(t *testing.T) { testImageNotFound(t, store) })
	t.Run("ConcurrentImages", func(t *testing.T) { testConcurrentImages(t, store) })
}

func testSessionLifecycle(t *testing.T, store core.Store) {
	ctx := context.Background()
	id, err := store.CreateSession(ctx, &core.Session{
		Original:          "/api/images/a",
		Current:           "https://example.com/b.png",
		BackgroundRemoved: true,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("CreateSession() returned invalid ID length: got %d, want 26", len(id))
	}

	got, err := store.FindSession(ctx, id)
	if err != nil {
		t.Fatalf("FindSession() failed: %v", err)
	}
	if got.ID != id || got.Original != "/api/images/a" || got.Current != "https://example.com/b.png" || !got.BackgroundRemoved {
		t.Errorf("FindSession() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("FindSession() returned zero CreatedAt")
	}

	got.Current = "/api/images/c"
	if err := store.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession() failed: %v", err)
	}
	again, err := store.FindSession(ctx, id)
	if err != nil {
		t.Fatalf("FindSession() after update failed: %v", err)
	}
	if again.Current != "/api/images/c" {
		t.Errorf("Current = %q, want /api/images/c", again.Current)
	}

	if err := store.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession() failed: %v", err)
	}
	if _, err := store.FindSession(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindSession() after delete error = %v, want ErrNotFound", err)
	}
}

func testSessionNotFound(t *testing.T, store core.Store) {
	ctx := context.Background()
	if _, err := store.FindSession(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindSession() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteSession(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteSession() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateSession(ctx, &core.Session{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateSession() error = %v, want ErrNotFound", err)
	}
}

func testImageRoundTrip(t *testing.T, store core.Store) {
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	img := &core.Image{ContentType: "image/png"}
	img.Data.Write(data)

	id, err := store.SaveImage(ctx, img)
	if err != nil {
		t.Fatalf("SaveImage() failed: %v", err)
	}
	got, err := store.FindImage(ctx, id)
	if err != nil {
		t.Fatalf("FindImage() failed: %v", err)
	}
	if got.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", got.ContentType)
	}
	if !bytes.Equal(got.Data.Bytes(), data) {
		t.Errorf("Data = %v, want %v", got.Data.Bytes(), data)
	}
}

func testImageNotFound(t *testing.T, store core.Store) {
	if _, err := store.FindImage(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindImage() error = %v, want ErrNotFound", err)
	}
}

func testConcurrentImages(t *testing.T, store core.Store) {
	ctx := context.Background()
	const n = 10
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			img := &core.Image{ContentType: "image/png"}
			img.Data.WriteByte(byte(i))
			id, err := store.SaveImage(ctx, img)
			if err != nil {
				t.Errorf("SaveImage() failed: %v", err)
				return
			}
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate image id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("saved %d images, want %d", len(seen), n)
	}
}
