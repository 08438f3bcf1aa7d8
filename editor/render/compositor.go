package render

import (
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"

	"image-editor-server/editor/scene"
)

// ImageSource resolves image references to decoded bitmaps. Rendering never
// blocks on I/O: every reference in the scene must already be decoded.
type ImageSource interface {
	Image(ref string) (image.Image, bool)
}

type Options struct {
	// ExcludePaths leaves freehand strokes out of the output.
	ExcludePaths bool
}

// Compositor rasterizes scenes. It memoizes filtered bitmaps so that
// repeated renders with an unchanged filter stack are cheap. A Compositor is
// not safe for concurrent use.
type Compositor struct {
	images   ImageSource
	faces    map[faceKey]font.Face
	filtered map[string]*image.NRGBA
}

const maxFilteredEntries = 8

func NewCompositor(images ImageSource) *Compositor {
	return &Compositor{
		images:   images,
		faces:    make(map[faceKey]font.Face),
		filtered: make(map[string]*image.NRGBA),
	}
}

// Render draws background, objects in z-order and overlay onto a new
// canvas-sized image.
func (c *Compositor) Render(s *scene.Scene, opts Options) *image.RGBA {
	w, h := s.Size()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	if bg, err := ParseColor(s.BackgroundColor()); err != nil {
		logrus.WithField("color", s.BackgroundColor()).Warn("Ignoring unparseable background color")
	} else if bg.A > 0 {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}
	c.drawLayer(dst, s.BackgroundImage())

	for _, o := range s.Objects() {
		if opts.ExcludePaths && o.Kind == scene.KindPath {
			continue
		}
		c.drawObject(dst, o)
	}

	c.drawLayer(dst, s.OverlayImage())
	return dst
}

// RenderPaths draws only the strokes, in white, onto an opaque black canvas.
// Edges keep their anti-aliasing.
func (c *Compositor) RenderPaths(s *scene.Scene) *image.RGBA {
	w, h := s.Size()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	dc := gg.NewContextForRGBA(dst)
	dc.SetColor(color.Black)
	dc.Clear()
	for _, o := range s.Paths() {
		drawPath(dc, o, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	}
	return dst
}

// MeasureText returns the box a text object needs for its content.
func (c *Compositor) MeasureText(t *scene.TextProps) (float64, float64) {
	face, err := c.face(t.Bold, t.FontSize)
	if err != nil {
		logrus.WithError(err).Error("Failed to load font face")
		return 0, 0
	}
	dc := gg.NewContext(1, 1)
	dc.SetFontFace(face)
	lines := strings.Split(t.Content, "\n")
	var width float64
	for _, line := range lines {
		lw, _ := dc.MeasureString(line)
		width = math.Max(width, lw)
	}
	return width, float64(len(lines)) * lineHeight(t)
}

func (c *Compositor) drawObject(dst *image.RGBA, o *scene.Object) {
	switch o.Kind {
	case scene.KindImage:
		c.drawImage(dst, o)
	case scene.KindPath:
		stroke, err := ParseColor(o.Path.Stroke)
		if err != nil {
			stroke = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		drawPath(gg.NewContextForRGBA(dst), o, withOpacity(stroke, o.Opacity))
	case scene.KindText:
		c.drawText(dst, o)
	case scene.KindRect, scene.KindCircle:
		drawShape(dst, o)
	}
}

func (c *Compositor) drawImage(dst *image.RGBA, o *scene.Object) {
	src, ok := c.images.Image(o.Image.Src)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"object_id": o.ID,
			"src":       o.Image.Src,
		}).Warn("Image not decoded, skipping")
		return
	}
	img := c.filter(o.Image.Src, src, o.Image.Filters)

	// The object's local box is its intrinsic size; stretch the bitmap onto it.
	b := img.Bounds()
	m := o.Matrix()
	if b.Dx() > 0 && b.Dy() > 0 && o.Width > 0 && o.Height > 0 {
		m = scene.Mul(m, f64.Aff3{o.Width / float64(b.Dx()), 0, 0, 0, o.Height / float64(b.Dy()), 0})
	}

	if sh := o.Image.Shadow; sh != nil {
		drawShadow(dst, img, m, sh, o.Opacity)
	}

	var opts *xdraw.Options
	if o.Opacity < 1 {
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: clampByte(o.Opacity * 255)})}
	}
	xdraw.BiLinear.Transform(dst, m, img, b, xdraw.Over, opts)
}

func (c *Compositor) filter(src string, img image.Image, filters []scene.Filter) *image.NRGBA {
	sig, _ := json.Marshal(filters)
	key := src + "|" + string(sig)
	if out, ok := c.filtered[key]; ok {
		return out
	}
	out := ApplyFilters(img, filters)
	if len(c.filtered) >= maxFilteredEntries {
		c.filtered = make(map[string]*image.NRGBA)
	}
	c.filtered[key] = out
	return out
}

// drawShadow paints a blurred, tinted silhouette of img under it. Offsets are
// in scene space; the blur radius is converted to source pixels.
func drawShadow(dst *image.RGBA, img *image.NRGBA, m f64.Aff3, sh *scene.Shadow, opacity float64) {
	tint, err := ParseColor(sh.Color)
	if err != nil {
		return
	}
	scale := math.Sqrt(math.Abs(m[0]*m[4] - m[1]*m[3]))
	if scale == 0 {
		return
	}
	sigma := sh.Blur / 2 / scale
	pad := int(math.Ceil(sigma * 3))

	b := img.Bounds()
	sil := image.NewNRGBA(image.Rect(0, 0, b.Dx()+2*pad, b.Dy()+2*pad))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			a := img.Pix[y*img.Stride+x*4+3]
			if a == 0 {
				continue
			}
			i := (y+pad)*sil.Stride + (x+pad)*4
			sil.Pix[i] = tint.R
			sil.Pix[i+1] = tint.G
			sil.Pix[i+2] = tint.B
			sil.Pix[i+3] = uint8(uint16(a) * uint16(tint.A) / 255)
		}
	}
	blurred := sil
	if sigma > 0 {
		blurred = imaging.Blur(sil, sigma)
	}

	sm := scene.Mul(f64.Aff3{1, 0, sh.OffsetX, 0, 1, sh.OffsetY}, scene.Mul(m, f64.Aff3{1, 0, -float64(pad), 0, 1, -float64(pad)}))
	var opts *xdraw.Options
	if opacity < 1 {
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: clampByte(opacity * 255)})}
	}
	xdraw.BiLinear.Transform(dst, sm, blurred, blurred.Bounds(), xdraw.Over, opts)
}

func (c *Compositor) drawLayer(dst *image.RGBA, l *scene.Layer) {
	if l == nil {
		return
	}
	src, ok := c.images.Image(l.Src)
	if !ok {
		logrus.WithField("src", l.Src).Warn("Layer image not decoded, skipping")
		return
	}
	b := src.Bounds()
	m := f64.Aff3{l.ScaleX, 0, l.Left - l.ScaleX*float64(b.Min.X), 0, l.ScaleY, l.Top - l.ScaleY*float64(b.Min.Y)}
	xdraw.BiLinear.Transform(dst, m, src, b, xdraw.Over, nil)
}

// applyTransform sets up dc so that drawing in o's local space lands in scene space.
func applyTransform(dc *gg.Context, o *scene.Object) {
	a := o.Anchor()
	dc.Translate(o.Left, o.Top)
	dc.Rotate(gg.Radians(o.Angle))
	dc.Scale(o.ScaleX, o.ScaleY)
	dc.Translate(-a.X, -a.Y)
}

func drawPath(dc *gg.Context, o *scene.Object, stroke color.NRGBA) {
	pts := o.Path.Points
	if len(pts) == 0 {
		return
	}
	dc.Push()
	defer dc.Pop()
	applyTransform(dc, o)

	// gg strokes in device space, so scale the width by hand.
	width := o.Path.StrokeWidth * math.Sqrt(math.Abs(o.ScaleX*o.ScaleY))
	dc.SetColor(stroke)
	if len(pts) == 1 {
		dc.DrawCircle(pts[0].X, pts[0].Y, o.Path.StrokeWidth/2)
		dc.Fill()
		return
	}
	dc.SetLineWidth(width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.Stroke()
}

func drawShape(dst *image.RGBA, o *scene.Object) {
	if o.Shape == nil {
		return
	}
	dc := gg.NewContextForRGBA(dst)
	applyTransform(dc, o)

	switch o.Kind {
	case scene.KindCircle:
		r := o.Shape.Radius
		dc.DrawCircle(r, r, r)
	default:
		if o.Shape.Radius > 0 {
			dc.DrawRoundedRectangle(0, 0, o.Width, o.Height, o.Shape.Radius)
		} else {
			dc.DrawRectangle(0, 0, o.Width, o.Height)
		}
	}

	if fill, err := ParseColor(o.Shape.Fill); err == nil && fill.A > 0 {
		dc.SetColor(withOpacity(fill, o.Opacity))
		dc.FillPreserve()
	}
	if stroke, err := ParseColor(o.Shape.Stroke); err == nil && stroke.A > 0 && o.Shape.StrokeWidth > 0 {
		dc.SetColor(withOpacity(stroke, o.Opacity))
		dc.SetLineWidth(o.Shape.StrokeWidth * math.Sqrt(math.Abs(o.ScaleX*o.ScaleY)))
		dc.StrokePreserve()
	}
	dc.ClearPath()
}

func (c *Compositor) drawText(dst *image.RGBA, o *scene.Object) {
	t := o.Text
	if t == nil || t.Content == "" {
		return
	}
	face, err := c.face(t.Bold, t.FontSize)
	if err != nil {
		logrus.WithError(err).Error("Failed to load font face")
		return
	}
	dc := gg.NewContextForRGBA(dst)
	dc.SetFontFace(face)
	applyTransform(dc, o)

	ax, x := 0.0, 0.0
	switch t.Align {
	case "center":
		ax, x = 0.5, o.Width/2
	case "right":
		ax, x = 1, o.Width
	}

	fill, err := ParseColor(t.Fill)
	if err != nil {
		fill = color.NRGBA{A: 255}
	}
	stroke, strokeErr := ParseColor(t.Stroke)
	lh := lineHeight(t)
	for i, line := range strings.Split(t.Content, "\n") {
		y := float64(i) * lh
		if strokeErr == nil && stroke.A > 0 && t.StrokeWidth > 0 {
			dc.SetColor(withOpacity(stroke, o.Opacity))
			for _, d := range outlineOffsets {
				dc.DrawStringAnchored(line, x+d.X*t.StrokeWidth, y+d.Y*t.StrokeWidth, ax, 1)
			}
		}
		dc.SetColor(withOpacity(fill, o.Opacity))
		dc.DrawStringAnchored(line, x, y, ax, 1)
	}
}

var outlineOffsets = []scene.Point{
	{X: -1, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: -1}, {X: 0, Y: 1},
	{X: -0.7, Y: -0.7}, {X: 0.7, Y: -0.7}, {X: -0.7, Y: 0.7}, {X: 0.7, Y: 0.7},
}

func lineHeight(t *scene.TextProps) float64 {
	size := t.FontSize
	if size <= 0 {
		size = 16
	}
	lh := t.LineHeight
	if lh <= 0 {
		lh = 1.16
	}
	return size * lh
}
