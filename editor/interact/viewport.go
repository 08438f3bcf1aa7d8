package interact

import (
	"math"

	"image-editor-server/editor/scene"
)

const (
	MinZoom = 1
	MaxZoom = 3
	// zoomBase is raised to the wheel delta, so one notch of 100 zooms by ~10%.
	zoomBase = 0.999
)

// Viewport is the view transform between screen and scene space. It is view
// state only and never part of a snapshot.
type Viewport struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"pan_x"`
	PanY float64 `json:"pan_y"`
}

func (v Viewport) ToScene(x, y float64) scene.Point {
	return scene.Point{X: (x - v.PanX) / v.Zoom, Y: (y - v.PanY) / v.Zoom}
}

func (v Viewport) ToScreen(p scene.Point) (float64, float64) {
	return p.X*v.Zoom + v.PanX, p.Y*v.Zoom + v.PanY
}

// zoomAt scales by factor around the screen point (x, y), clamped to
// [MinZoom, MaxZoom]. The scene point under the pointer stays put.
func (v Viewport) zoomAt(x, y, factor float64) Viewport {
	z := math.Max(MinZoom, math.Min(MaxZoom, v.Zoom*factor))
	if z == MinZoom {
		return Viewport{Zoom: MinZoom}
	}
	ratio := z / v.Zoom
	return Viewport{
		Zoom: z,
		PanX: x - (x-v.PanX)*ratio,
		PanY: y - (y-v.PanY)*ratio,
	}
}

func (c *Controller) Viewport() Viewport {
	return c.view
}

// ResetZoom returns to the unzoomed view.
func (c *Controller) ResetZoom() {
	c.view = Viewport{Zoom: 1}
}
