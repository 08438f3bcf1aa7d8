package scene

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	// MainImageTag marks the primary subject. Exactly one object carries it once
	// the scene has loaded.
	MainImageTag = "main-image"
	// TemplateTag marks objects added by a template; removing the overlay clears them.
	TemplateTag = "template"
)

type Kind string

const (
	KindImage  Kind = "image"
	KindPath   Kind = "path"
	KindText   Kind = "text"
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
)

const (
	OriginLeft   = "left"
	OriginCenter = "center"
	OriginRight  = "right"
	OriginTop    = "top"
	OriginBottom = "bottom"
)

type (
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Object is one addressable item of the scene. Kind selects which of the
	// variant property blocks is populated.
	Object struct {
		ID      string  `json:"id"`
		Kind    Kind    `json:"type"`
		Tag     string  `json:"tag,omitempty"`
		Left    float64 `json:"left"`
		Top     float64 `json:"top"`
		OriginX string  `json:"originX,omitempty"`
		OriginY string  `json:"originY,omitempty"`
		Angle   float64 `json:"angle"`
		ScaleX  float64 `json:"scaleX"`
		ScaleY  float64 `json:"scaleY"`
		Opacity float64 `json:"opacity"`
		Width   float64 `json:"width"`
		Height  float64 `json:"height"`

		// Interaction flags are derived from the active tool and are not part
		// of a snapshot.
		Selectable bool `json:"-"`
		Evented    bool `json:"-"`

		Image *ImageProps `json:"image,omitempty"`
		Path  *PathProps  `json:"path,omitempty"`
		Text  *TextProps  `json:"text,omitempty"`
		Shape *ShapeProps `json:"shape,omitempty"`
	}

	ImageProps struct {
		Src     string   `json:"src"`
		Filters []Filter `json:"filters,omitempty"`
		Shadow  *Shadow  `json:"shadow,omitempty"`

		// Settings are the panel values Filters were built from. The scene
		// stores them without reading them.
		Settings json.RawMessage `json:"settings,omitempty"`
	}

	Shadow struct {
		Color   string  `json:"color"`
		Blur    float64 `json:"blur"`
		OffsetX float64 `json:"offsetX"`
		OffsetY float64 `json:"offsetY"`
	}

	// PathProps holds a freehand stroke. Points are in the object's local space.
	PathProps struct {
		Points      []Point `json:"points"`
		Stroke      string  `json:"stroke"`
		StrokeWidth float64 `json:"strokeWidth"`
	}

	TextProps struct {
		Content     string  `json:"content"`
		FontSize    float64 `json:"fontSize"`
		Bold        bool    `json:"bold,omitempty"`
		Fill        string  `json:"fill"`
		Stroke      string  `json:"stroke,omitempty"`
		StrokeWidth float64 `json:"strokeWidth,omitempty"`
		Align       string  `json:"align,omitempty"`
		LineHeight  float64 `json:"lineHeight,omitempty"`
	}

	ShapeProps struct {
		Fill        string  `json:"fill"`
		Stroke      string  `json:"stroke,omitempty"`
		StrokeWidth float64 `json:"strokeWidth,omitempty"`
		Radius      float64 `json:"radius,omitempty"`
	}
)

// NewID returns a fresh object identifier.
func NewID() string {
	return uuid.NewString()
}

// NewImage builds an image object of the given intrinsic size anchored at its
// top-left corner.
func NewImage(src string, width, height float64) *Object {
	return &Object{
		ID:         NewID(),
		Kind:       KindImage,
		OriginX:    OriginLeft,
		OriginY:    OriginTop,
		ScaleX:     1,
		ScaleY:     1,
		Opacity:    1,
		Width:      width,
		Height:     height,
		Selectable: true,
		Evented:    true,
		Image:      &ImageProps{Src: src},
	}
}

// NewPath builds a stroke object from scene-space points.
func NewPath(points []Point, stroke string, width float64) *Object {
	pts := make([]Point, len(points))
	copy(pts, points)
	o := &Object{
		ID:         NewID(),
		Kind:       KindPath,
		ScaleX:     1,
		ScaleY:     1,
		Opacity:    1,
		Selectable: true,
		Evented:    true,
		Path:       &PathProps{Points: pts, Stroke: stroke, StrokeWidth: width},
	}
	b := o.LocalBounds()
	o.Width, o.Height = b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	return o
}

// Clone returns a deep copy with a new identifier. The main-image tag is never
// copied so the clone cannot compete with the primary subject.
func (o *Object) Clone() *Object {
	c := *o
	c.ID = NewID()
	if c.Tag == MainImageTag {
		c.Tag = ""
	}
	if o.Image != nil {
		img := *o.Image
		img.Filters = append([]Filter(nil), o.Image.Filters...)
		for i := range img.Filters {
			img.Filters[i].Matrix = append([]float64(nil), o.Image.Filters[i].Matrix...)
		}
		if o.Image.Shadow != nil {
			sh := *o.Image.Shadow
			img.Shadow = &sh
		}
		img.Settings = append(json.RawMessage(nil), o.Image.Settings...)
		c.Image = &img
	}
	if o.Path != nil {
		p := *o.Path
		p.Points = append([]Point(nil), o.Path.Points...)
		c.Path = &p
	}
	if o.Text != nil {
		t := *o.Text
		c.Text = &t
	}
	if o.Shape != nil {
		s := *o.Shape
		c.Shape = &s
	}
	return &c
}

// IsMainImage reports whether o carries the main-image identity tag.
func (o *Object) IsMainImage() bool {
	return o.Tag == MainImageTag
}
