// Package editor ties the scene, compositor, history, interaction, mask and
// background components into one editing session.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/background"
	"image-editor-server/editor/history"
	"image-editor-server/editor/interact"
	"image-editor-server/editor/mask"
	"image-editor-server/editor/render"
	"image-editor-server/editor/scene"
	"image-editor-server/media"
)

var (
	// ErrClosed is returned once the session was torn down. Late results of
	// asynchronous work are dropped with it.
	ErrClosed      = errors.New("editor closed")
	ErrNoMainImage = errors.New("no main image")
	ErrInvalidSize = errors.New("invalid canvas size")
)

// DefaultMaxCanvas bounds the longest canvas side when an image is opened.
const DefaultMaxCanvas = 1600

// Loader resolves an image reference to a decoded bitmap.
type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, []byte, error)
}

type Config struct {
	Debounce      time.Duration
	BrushWidth    float64
	MaxCanvas     int
	ShapeDefaults scene.ShapeProps
}

type Deps struct {
	Loader  Loader
	Remover mask.Remover
}

// Editor is one live editing session. Every method is safe for concurrent
// use; calls are serialized the way a UI thread would run them. Methods that
// wait on I/O do so without holding the session, then re-check that it is
// still open before touching the scene.
type Editor struct {
	mu     sync.Mutex
	id     string
	closed bool

	scene      *scene.Scene
	cache      *media.Cache
	compositor *render.Compositor
	history    *history.Manager
	controller *interact.Controller
	background *background.Compositor
	deps       Deps

	main        *scene.Object
	adjustments render.Adjustments

	listeners    map[int]Listener
	nextListener int
	dirty        bool
	unwatch      func()
}

// Open loads ref as the main image and starts a session around it. The
// canvas takes the image's size, scaled down to fit cfg.MaxCanvas.
func Open(ctx context.Context, id, ref string, cfg Config, deps Deps) (*Editor, error) {
	img, _, err := deps.Loader.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load main image: %w", err)
	}
	if cfg.MaxCanvas <= 0 {
		cfg.MaxCanvas = DefaultMaxCanvas
	}

	b := img.Bounds()
	scale := math.Min(1, float64(cfg.MaxCanvas)/float64(max(b.Dx(), b.Dy())))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	e := &Editor{
		id:          id,
		scene:       scene.New(w, h),
		cache:       media.NewCache(),
		deps:        deps,
		adjustments: render.DefaultAdjustments(),
		listeners:   make(map[int]Listener),
	}
	e.compositor = render.NewCompositor(e.cache)
	e.history = history.New(e.scene, history.Options{
		Debounce:  cfg.Debounce,
		Dispatch:  e.dispatch,
		OnRestore: e.rebindMain,
		OnChange:  func(st history.State) { e.emit(HistoryChanged, st) },
	})
	e.controller = interact.New(e.scene, e.history, e.compositor, interact.Config{
		BrushWidth:    cfg.BrushWidth,
		ShapeDefaults: cfg.ShapeDefaults,
		OnSelection:   func(objs []*scene.Object) { e.emit(SelectionChanged, ids(objs)) },
		OnContextMenu: func(m interact.ContextMenu) { e.emit(ContextMenuChanged, m) },
	})
	e.background = background.New(e.scene, e.history)

	e.cache.Put(ref, img)
	main := scene.NewImage(ref, float64(b.Dx()), float64(b.Dy()))
	main.Tag = scene.MainImageTag
	main.ScaleX, main.ScaleY = scale, scale
	e.scene.Add(main)
	e.main = main

	e.scene.Subscribe(func(scene.Event) { e.dirty = true })
	e.unwatch = e.history.Watch(e.scene)
	if err := e.history.Save(true); err != nil {
		return nil, err
	}
	e.dirty = false

	logrus.WithFields(logrus.Fields{
		"session_id": id,
		"width":      w,
		"height":     h,
	}).Info("Editor opened")
	return e, nil
}

func (e *Editor) ID() string {
	return e.id
}

// do runs fn as one event-loop turn.
func (e *Editor) do(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	err := fn()
	e.flush()
	return err
}

// dispatch runs deferred history saves as their own turn.
func (e *Editor) dispatch(fn func()) {
	e.do(func() error {
		fn()
		return nil
	})
}

func (e *Editor) flush() {
	if e.dirty {
		e.dirty = false
		e.emit(SceneChanged, nil)
	}
}

func (e *Editor) rebindMain() {
	e.main = e.scene.FindByTag(scene.MainImageTag)
	if e.main == nil {
		logrus.WithField("session_id", e.id).Warn("Restored snapshot has no main image")
	}
	e.adjustments = render.AdjustmentsOf(e.main)
}

// Close tears the session down. Pending saves are dropped and every later
// call, including continuations of in-flight work, fails with ErrClosed.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.history.Close()
	e.controller.Close()
	if e.unwatch != nil {
		e.unwatch()
	}
	e.listeners = nil
	logrus.WithField("session_id", e.id).Info("Editor closed")
}

func (e *Editor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func ids(objs []*scene.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}
