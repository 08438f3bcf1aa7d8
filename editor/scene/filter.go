package scene

type FilterKind string

const (
	FilterBrightness FilterKind = "brightness"
	FilterContrast   FilterKind = "contrast"
	FilterSaturation FilterKind = "saturation"
	FilterGamma      FilterKind = "gamma"
	FilterConvolute  FilterKind = "convolute"
	FilterBlur       FilterKind = "blur"
	FilterPixelate   FilterKind = "pixelate"
	FilterSquare     FilterKind = "square"
	FilterNoir       FilterKind = "noir"
	FilterSepia      FilterKind = "sepia"
	FilterMono       FilterKind = "mono"
	FilterFade       FilterKind = "fade"
	FilterProcess    FilterKind = "process"
	FilterTonal      FilterKind = "tonal"
)

// Filter is one stage of an image object's filter stack. Which parameters are
// meaningful depends on Kind: Value for scalar stages, Matrix (row-major,
// Size x Size) for convolutions, Size alone for block effects.
type Filter struct {
	Kind   FilterKind `json:"type"`
	Value  float64    `json:"value,omitempty"`
	Matrix []float64  `json:"matrix,omitempty"`
	Size   int        `json:"size,omitempty"`
}
