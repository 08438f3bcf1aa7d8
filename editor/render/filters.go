package render

import (
	"encoding/json"
	"math"

	"image-editor-server/editor/scene"
)

type BlurType string

const (
	BlurGaussian BlurType = "gaussian"
	BlurPixelate BlurType = "pixelate"
	BlurSquare   BlurType = "square"
	BlurMotion   BlurType = "motion"
)

type FilterType string

const (
	FilterNoir    FilterType = "noir"
	FilterSepia   FilterType = "sepia"
	FilterMono    FilterType = "mono"
	FilterFade    FilterType = "fade"
	FilterProcess FilterType = "process"
	FilterTonal   FilterType = "tonal"
)

// ShadowColor is the fixed tint of the drop shadow attached by the shadow slider.
const ShadowColor = "rgba(0,0,0,0.5)"

// Adjustments are the slider and toggle values of the adjustment panels.
// Brightness, Contrast and Saturation are in [-1, 1]; Highlight, Sharpen,
// Shadow, Opacity and Blur in [0, 1]; BlurStrength in [0, 100].
type Adjustments struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Highlight  float64 `json:"highlight"`
	Sharpen    float64 `json:"sharpen"`
	Shadow     float64 `json:"shadow"`
	Opacity    float64 `json:"opacity"`
	Blur       float64 `json:"blur"`

	BlurEnabled  bool     `json:"blurEnabled"`
	BlurType     BlurType `json:"blurType"`
	BlurStrength float64  `json:"blurStrength"`

	FilterEnabled bool       `json:"filterEnabled"`
	FilterType    FilterType `json:"filterType"`
}

// DefaultAdjustments leaves the image as loaded.
func DefaultAdjustments() Adjustments {
	return Adjustments{Opacity: 1, BlurType: BlurGaussian, BlurStrength: 50}
}

// Normalize clamps every value into its documented range.
func (a Adjustments) Normalize() Adjustments {
	a.Brightness = clamp(a.Brightness, -1, 1)
	a.Contrast = clamp(a.Contrast, -1, 1)
	a.Saturation = clamp(a.Saturation, -1, 1)
	a.Highlight = clamp(a.Highlight, 0, 1)
	a.Sharpen = clamp(a.Sharpen, 0, 1)
	a.Shadow = clamp(a.Shadow, 0, 1)
	a.Opacity = clamp(a.Opacity, 0, 1)
	a.Blur = clamp(a.Blur, 0, 1)
	a.BlurStrength = clamp(a.BlurStrength, 0, 100)
	return a
}

// BuildFilters rebuilds the whole filter stack from adj. Stage order is fixed:
// brightness, contrast, saturation, highlight, sharpen, adjust blur, effect
// blur, stylistic filter. A stage is present only when it has an effect.
func BuildFilters(adj Adjustments) []scene.Filter {
	adj = adj.Normalize()
	var stack []scene.Filter

	if adj.Brightness != 0 {
		stack = append(stack, scene.Filter{Kind: scene.FilterBrightness, Value: adj.Brightness})
	}
	if adj.Contrast != 0 {
		stack = append(stack, scene.Filter{Kind: scene.FilterContrast, Value: adj.Contrast})
	}
	if adj.Saturation != 0 {
		stack = append(stack, scene.Filter{Kind: scene.FilterSaturation, Value: adj.Saturation})
	}
	if adj.Highlight > 0 {
		stack = append(stack, scene.Filter{Kind: scene.FilterGamma, Value: 1 + adj.Highlight})
	}
	if adj.Sharpen > 0 {
		stack = append(stack, scene.Filter{Kind: scene.FilterConvolute, Size: 3, Matrix: SharpenKernel(adj.Sharpen * 1.5)})
	}
	if adj.Blur > 0 {
		stack = append(stack, scene.Filter{Kind: scene.FilterBlur, Value: adj.Blur})
	}
	if adj.BlurEnabled && adj.BlurStrength > 0 {
		if f, ok := effectBlur(adj.BlurType, adj.BlurStrength); ok {
			stack = append(stack, f)
		}
	}
	if adj.FilterEnabled {
		if kind, ok := stylisticKinds[adj.FilterType]; ok {
			stack = append(stack, scene.Filter{Kind: kind})
		}
	}
	return stack
}

var stylisticKinds = map[FilterType]scene.FilterKind{
	FilterNoir:    scene.FilterNoir,
	FilterSepia:   scene.FilterSepia,
	FilterMono:    scene.FilterMono,
	FilterFade:    scene.FilterFade,
	FilterProcess: scene.FilterProcess,
	FilterTonal:   scene.FilterTonal,
}

func effectBlur(t BlurType, strength float64) (scene.Filter, bool) {
	switch t {
	case BlurGaussian:
		return scene.Filter{Kind: scene.FilterBlur, Value: strength / 100}, true
	case BlurPixelate:
		return scene.Filter{Kind: scene.FilterPixelate, Size: BlockSize(strength)}, true
	case BlurSquare:
		return scene.Filter{Kind: scene.FilterSquare, Size: BlockSize(strength)}, true
	case BlurMotion:
		size := MotionKernelSize(strength)
		return scene.Filter{Kind: scene.FilterConvolute, Size: size, Matrix: MotionKernel(size)}, true
	}
	return scene.Filter{}, false
}

// SharpenKernel is the 3x3 unsharp kernel of strength s.
func SharpenKernel(s float64) []float64 {
	return []float64{
		0, -s, 0,
		-s, 1 + 4*s, -s,
		0, -s, 0,
	}
}

// BlockSize is the pixelation block edge for a strength in [0, 100].
func BlockSize(strength float64) int {
	n := int(math.Round(strength / 100 * 20))
	if n < 2 {
		return 2
	}
	return n
}

// MotionKernelSize grows the kernel from 3 to 5 to 7 as strength crosses 33 and 66.
func MotionKernelSize(strength float64) int {
	switch {
	case strength > 66:
		return 7
	case strength > 33:
		return 5
	default:
		return 3
	}
}

// MotionKernel is a horizontal box blur: a single row of weight 1/size at
// the vertical center of a size x size kernel.
func MotionKernel(size int) []float64 {
	k := make([]float64, size*size)
	row := size / 2
	for x := 0; x < size; x++ {
		k[row*size+x] = 1 / float64(size)
	}
	return k
}

// ApplyAdjustments recomputes the main image's filter stack, opacity and
// shadow from adj. Opacity and shadow are object properties, not filters.
func ApplyAdjustments(o *scene.Object, adj Adjustments) {
	if o == nil || o.Image == nil {
		return
	}
	adj = adj.Normalize()
	o.Image.Filters = BuildFilters(adj)
	o.Image.Settings, _ = json.Marshal(adj)
	o.Opacity = adj.Opacity
	if adj.Shadow > 0 {
		o.Image.Shadow = &scene.Shadow{
			Color:   ShadowColor,
			Blur:    adj.Shadow * 20,
			OffsetX: adj.Shadow * 5,
			OffsetY: adj.Shadow * 5,
		}
	} else {
		o.Image.Shadow = nil
	}
}

// AdjustmentsOf returns the values the object's filters were last built from,
// or the defaults for an image that was never adjusted.
func AdjustmentsOf(o *scene.Object) Adjustments {
	adj := DefaultAdjustments()
	if o == nil || o.Image == nil || len(o.Image.Settings) == 0 {
		return adj
	}
	if err := json.Unmarshal(o.Image.Settings, &adj); err != nil {
		return DefaultAdjustments()
	}
	return adj.Normalize()
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
