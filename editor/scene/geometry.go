package scene

import (
	"math"

	"golang.org/x/image/math/f64"
)

type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

func (r Rect) Dx() float64 { return r.Max.X - r.Min.X }
func (r Rect) Dy() float64 { return r.Max.Y - r.Min.Y }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// LocalBounds is the untransformed box of the object. Paths are measured
// from their points, grown by half the stroke width.
func (o *Object) LocalBounds() Rect {
	switch o.Kind {
	case KindPath:
		if o.Path == nil || len(o.Path.Points) == 0 {
			return Rect{}
		}
		half := o.Path.StrokeWidth / 2
		r := Rect{Min: o.Path.Points[0], Max: o.Path.Points[0]}
		for _, p := range o.Path.Points[1:] {
			r.Min.X = math.Min(r.Min.X, p.X)
			r.Min.Y = math.Min(r.Min.Y, p.Y)
			r.Max.X = math.Max(r.Max.X, p.X)
			r.Max.Y = math.Max(r.Max.Y, p.Y)
		}
		r.Min.X -= half
		r.Min.Y -= half
		r.Max.X += half
		r.Max.Y += half
		return r
	case KindCircle:
		var d float64
		if o.Shape != nil {
			d = o.Shape.Radius * 2
		}
		return Rect{Max: Point{X: d, Y: d}}
	default:
		return Rect{Max: Point{X: o.Width, Y: o.Height}}
	}
}

func anchorFactor(origin string) float64 {
	switch origin {
	case OriginCenter:
		return 0.5
	case OriginRight, OriginBottom:
		return 1
	default:
		return 0
	}
}

// Anchor is the local point placed at (Left, Top).
func (o *Object) Anchor() Point {
	if o.Kind == KindPath {
		// Path points are stored in scene space at creation, so the anchor
		// is the local origin rather than the bounds corner.
		return Point{}
	}
	b := o.LocalBounds()
	return Point{
		X: b.Min.X + anchorFactor(o.OriginX)*b.Dx(),
		Y: b.Min.Y + anchorFactor(o.OriginY)*b.Dy(),
	}
}

// Matrix maps local coordinates to scene coordinates: the origin anchor is
// moved to (Left, Top), then the box is scaled and rotated around it.
func (o *Object) Matrix() f64.Aff3 {
	a := o.Anchor()
	rad := o.Angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	sx, sy := o.ScaleX, o.ScaleY

	m := translate(o.Left, o.Top)
	m = Mul(m, f64.Aff3{cos, -sin, 0, sin, cos, 0})
	m = Mul(m, f64.Aff3{sx, 0, 0, 0, sy, 0})
	m = Mul(m, translate(-a.X, -a.Y))
	return m
}

func (o *Object) ToScene(p Point) Point {
	return apply(o.Matrix(), p)
}

// ToLocal is the inverse of ToScene. A degenerate transform maps everything
// to the origin.
func (o *Object) ToLocal(p Point) Point {
	inv, ok := invert(o.Matrix())
	if !ok {
		return Point{}
	}
	return apply(inv, p)
}

// Contains hit-tests a scene-space point against the transformed box.
func (o *Object) Contains(p Point) bool {
	return o.LocalBounds().Contains(o.ToLocal(p))
}

func (o *Object) Center() Point {
	b := o.LocalBounds()
	return o.ToScene(Point{X: b.Min.X + b.Dx()/2, Y: b.Min.Y + b.Dy()/2})
}

// SceneBounds is the axis-aligned box around the transformed object.
func (o *Object) SceneBounds() Rect {
	b := o.LocalBounds()
	m := o.Matrix()
	corners := []Point{
		apply(m, b.Min),
		apply(m, Point{X: b.Max.X, Y: b.Min.Y}),
		apply(m, b.Max),
		apply(m, Point{X: b.Min.X, Y: b.Max.Y}),
	}
	r := Rect{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		r.Min.X = math.Min(r.Min.X, c.X)
		r.Min.Y = math.Min(r.Min.Y, c.Y)
		r.Max.X = math.Max(r.Max.X, c.X)
		r.Max.Y = math.Max(r.Max.Y, c.Y)
	}
	return r
}

func translate(x, y float64) f64.Aff3 {
	return f64.Aff3{1, 0, x, 0, 1, y}
}

// Mul returns a·b, so b is applied first.
func Mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func apply(m f64.Aff3, p Point) Point {
	return Point{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

func invert(m f64.Aff3) (f64.Aff3, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 {
		return f64.Aff3{}, false
	}
	return f64.Aff3{
		m[4] / det,
		-m[1] / det,
		(m[1]*m[5] - m[4]*m[2]) / det,
		-m[3] / det,
		m[0] / det,
		(m[3]*m[2] - m[0]*m[5]) / det,
	}, true
}
