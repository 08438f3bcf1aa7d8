package render

import (
	"image"
	"image/color"
	"testing"

	"image-editor-server/editor/scene"
)

type mapSource map[string]image.Image

func (m mapSource) Image(ref string) (image.Image, bool) {
	img, ok := m[ref]
	return img, ok
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestRender_LayersInOrder(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	c := NewCompositor(mapSource{
		"red":  solid(10, 10, red),
		"blue": solid(4, 4, blue),
	})

	s := scene.New(20, 20)
	s.SetBackgroundColor("#00ff00")
	img := scene.NewImage("red", 10, 10)
	s.Add(img)
	s.SetOverlayImage(&scene.Layer{Src: "blue", ScaleX: 1, ScaleY: 1, Width: 4, Height: 4})

	out := c.Render(s, Options{})
	if got := out.RGBAAt(2, 2); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("overlay pixel = %v, want blue", got)
	}
	if got := out.RGBAAt(7, 7); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("object pixel = %v, want red", got)
	}
	if got := out.RGBAAt(15, 15); got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("background pixel = %v, want green", got)
	}
}

func TestRender_ExcludePaths(t *testing.T) {
	c := NewCompositor(mapSource{})
	s := scene.New(20, 20)
	s.SetBackgroundColor("#000000")
	s.AddPath(scene.NewPath([]scene.Point{{X: 2, Y: 10}, {X: 18, Y: 10}}, "#ffffff", 6))

	with := c.Render(s, Options{})
	if got := with.RGBAAt(10, 10); got.R == 0 {
		t.Errorf("stroke pixel = %v, want white", got)
	}
	without := c.Render(s, Options{ExcludePaths: true})
	if got := without.RGBAAt(10, 10); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("excluded stroke pixel = %v, want black", got)
	}
}

func TestRenderPaths_IgnoresOtherObjects(t *testing.T) {
	c := NewCompositor(mapSource{"red": solid(20, 20, color.NRGBA{255, 0, 0, 255})})
	s := scene.New(20, 20)
	s.Add(scene.NewImage("red", 20, 20))
	s.AddPath(scene.NewPath([]scene.Point{{X: 10, Y: 2}, {X: 10, Y: 18}}, "#ff00ff", 4))

	out := c.RenderPaths(s)
	if got := out.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("background = %v, want opaque black", got)
	}
	if got := out.RGBAAt(10, 10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("stroke center = %v, want white", got)
	}
}

func TestRender_OpacityBlends(t *testing.T) {
	c := NewCompositor(mapSource{"white": solid(10, 10, color.NRGBA{255, 255, 255, 255})})
	s := scene.New(10, 10)
	s.SetBackgroundColor("#000000")
	img := scene.NewImage("white", 10, 10)
	img.Opacity = 0.5
	s.Add(img)

	got := c.Render(s, Options{}).RGBAAt(5, 5)
	if got.R < 100 || got.R > 155 {
		t.Errorf("half-opaque white over black = %v, want mid gray", got)
	}
}

func TestMeasureText(t *testing.T) {
	c := NewCompositor(mapSource{})
	w1, h1 := c.MeasureText(&scene.TextProps{Content: "hi", FontSize: 20})
	w2, h2 := c.MeasureText(&scene.TextProps{Content: "hi there\nsecond", FontSize: 20})
	if w1 <= 0 || h1 <= 0 {
		t.Fatalf("MeasureText = %v x %v, want positive", w1, h1)
	}
	if w2 <= w1 {
		t.Errorf("longer line width %v <= %v", w2, w1)
	}
	if h2 <= h1 {
		t.Errorf("two lines height %v <= %v", h2, h1)
	}
}

func TestEncode(t *testing.T) {
	img := solid(4, 4, color.NRGBA{1, 2, 3, 255})
	for _, f := range []Format{PNG, JPEG} {
		data, err := Encode(img, f, 0)
		if err != nil {
			t.Fatalf("Encode(%s) error: %v", f, err)
		}
		if len(data) == 0 {
			t.Errorf("Encode(%s) returned no data", f)
		}
	}
	if _, err := ParseFormat("tiff"); err == nil {
		t.Error("expected error for tiff")
	}
}
