// Package history keeps an undo/redo stack of full scene snapshots.
package history

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/scene"
)

// DefaultDebounce is how long a deferred save waits for the scene to settle.
const DefaultDebounce = 500 * time.Millisecond

// Snapshotter is the scene as the history sees it.
type Snapshotter interface {
	Marshal() ([]byte, error)
	Load(data []byte) error
}

type State struct {
	Cursor  int  `json:"cursor"`
	Length  int  `json:"length"`
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}

type Options struct {
	Debounce time.Duration
	// Dispatch runs a deferred save on the goroutine that owns the scene.
	// Nil runs it on the timer goroutine.
	Dispatch func(func())
	// OnRestore runs after a snapshot was loaded by Undo or Redo, while the
	// manager still reports Restoring.
	OnRestore func()
	// OnChange is called whenever the cursor or the length changes.
	OnChange func(State)
}

// Manager is not safe for concurrent use. Deferred saves re-enter through
// Options.Dispatch.
type Manager struct {
	target  Snapshotter
	opts    Options
	entries [][]byte
	cursor  int

	restoring bool
	closed    bool
	pending   *time.Timer
	seq       uint64
}

func New(target Snapshotter, opts Options) *Manager {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(f func()) { f() }
	}
	return &Manager{target: target, opts: opts, cursor: -1}
}

// Save records the current scene. A deferred save replaces any save still
// waiting; an immediate one cancels it and commits right away. Both are
// ignored while a snapshot is being restored.
func (m *Manager) Save(immediate bool) error {
	if m.restoring || m.closed {
		return nil
	}
	m.cancel()
	if immediate {
		return m.commit()
	}

	seq := m.seq
	m.pending = time.AfterFunc(m.opts.Debounce, func() {
		m.opts.Dispatch(func() {
			if m.seq != seq || m.closed {
				return
			}
			m.pending = nil
			if err := m.commit(); err != nil {
				logrus.WithError(err).Error("Deferred history save failed")
			}
		})
	})
	logrus.WithField("debounce", m.opts.Debounce).Debug("History save scheduled")
	return nil
}

func (m *Manager) cancel() {
	m.seq++
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

func (m *Manager) commit() error {
	if m.restoring {
		return nil
	}
	data, err := m.target.Marshal()
	if err != nil {
		return fmt.Errorf("failed to snapshot scene: %w", err)
	}
	if m.cursor >= 0 && bytes.Equal(m.entries[m.cursor], data) {
		return nil
	}
	m.entries = append(m.entries[:m.cursor+1], data)
	m.cursor = len(m.entries) - 1
	logrus.WithFields(logrus.Fields{
		"cursor": m.cursor,
		"length": len(m.entries),
	}).Debug("History snapshot saved")
	m.changed()
	return nil
}

// Watch schedules a deferred save for every mutation of s. Reloads from a
// snapshot are not mutations. The returned function stops watching.
func (m *Manager) Watch(s *scene.Scene) func() {
	return s.Subscribe(func(e scene.Event) {
		if e.Kind == scene.SceneLoaded {
			return
		}
		if err := m.Save(false); err != nil {
			logrus.WithError(err).Error("Failed to schedule history save")
		}
	})
}

// Undo steps back one snapshot. It reports false when there is nothing to
// undo. A snapshot that fails to load leaves cursor and scene untouched.
func (m *Manager) Undo() (bool, error) {
	if m.cursor <= 0 {
		return false, nil
	}
	return m.restore(m.cursor - 1)
}

// Redo steps forward one snapshot. It reports false at the newest entry.
func (m *Manager) Redo() (bool, error) {
	if m.cursor >= len(m.entries)-1 {
		return false, nil
	}
	return m.restore(m.cursor + 1)
}

func (m *Manager) restore(idx int) (bool, error) {
	if m.restoring || m.closed {
		return false, nil
	}
	m.restoring = true
	defer func() { m.restoring = false }()
	m.cancel()

	if err := m.target.Load(m.entries[idx]); err != nil {
		logrus.WithError(err).WithField("cursor", idx).Error("Failed to restore history snapshot")
		return false, fmt.Errorf("failed to restore snapshot %d: %w", idx, err)
	}
	m.cursor = idx
	if m.opts.OnRestore != nil {
		m.opts.OnRestore()
	}
	m.changed()
	return true, nil
}

// Restoring reports whether a snapshot is being loaded. Side effects of
// scene changes must be skipped while it is true.
func (m *Manager) Restoring() bool {
	return m.restoring
}

func (m *Manager) CanUndo() bool {
	return m.cursor > 0
}

func (m *Manager) CanRedo() bool {
	return m.cursor >= 0 && m.cursor < len(m.entries)-1
}

func (m *Manager) State() State {
	return State{
		Cursor:  m.cursor,
		Length:  len(m.entries),
		CanUndo: m.CanUndo(),
		CanRedo: m.CanRedo(),
	}
}

// Current returns the snapshot at the cursor, or nil when history is empty.
func (m *Manager) Current() []byte {
	if m.cursor < 0 {
		return nil
	}
	return m.entries[m.cursor]
}

// Close cancels any deferred save. Later saves are ignored.
func (m *Manager) Close() {
	m.cancel()
	m.closed = true
}

func (m *Manager) changed() {
	if m.opts.OnChange != nil {
		m.opts.OnChange(m.State())
	}
}
