package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"image-editor-server/editor/scene"
)

// blurSigmaScale converts a blur value in [0, 1] to a gaussian sigma in pixels.
const blurSigmaScale = 20

// ApplyFilters runs the filter stack over src in order and returns a new image.
func ApplyFilters(src image.Image, filters []scene.Filter) *image.NRGBA {
	img := imaging.Clone(src)
	for _, f := range filters {
		img = applyFilter(img, f)
	}
	return img
}

func applyFilter(img *image.NRGBA, f scene.Filter) *image.NRGBA {
	switch f.Kind {
	case scene.FilterBrightness:
		return imaging.AdjustBrightness(img, f.Value*100)
	case scene.FilterContrast:
		return imaging.AdjustContrast(img, f.Value*100)
	case scene.FilterSaturation:
		return imaging.AdjustSaturation(img, f.Value*100)
	case scene.FilterGamma:
		if f.Value <= 0 {
			return img
		}
		return imaging.AdjustGamma(img, f.Value)
	case scene.FilterConvolute:
		return convolve(img, f)
	case scene.FilterBlur:
		if f.Value <= 0 {
			return img
		}
		return imaging.Blur(img, f.Value*blurSigmaScale)
	case scene.FilterPixelate:
		return blocks(img, f.Size, imaging.NearestNeighbor)
	case scene.FilterSquare:
		return blocks(img, f.Size, imaging.Box)
	case scene.FilterNoir:
		return imaging.AdjustContrast(imaging.Grayscale(img), 40)
	case scene.FilterMono:
		return imaging.Grayscale(img)
	case scene.FilterSepia:
		return colorMatrix(img, sepiaMatrix)
	case scene.FilterFade:
		return colorMatrix(imaging.AdjustSaturation(img, -35), fadeMatrix)
	case scene.FilterProcess:
		return colorMatrix(img, processMatrix)
	case scene.FilterTonal:
		return colorMatrix(imaging.AdjustContrast(img, 15), tonalMatrix)
	}
	return img
}

func convolve(img *image.NRGBA, f scene.Filter) *image.NRGBA {
	switch len(f.Matrix) {
	case 9:
		var k [9]float64
		copy(k[:], f.Matrix)
		return imaging.Convolve3x3(img, k, nil)
	case 25:
		var k [25]float64
		copy(k[:], f.Matrix)
		return imaging.Convolve5x5(img, k, nil)
	}
	size := int(math.Sqrt(float64(len(f.Matrix))))
	if size*size != len(f.Matrix) || size%2 == 0 {
		return img
	}
	return convolveN(img, f.Matrix, size)
}

// convolveN handles kernels larger than imaging supports. Edges are clamped.
func convolveN(img *image.NRGBA, kernel []float64, size int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	half := size / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl, a float64
			for ky := 0; ky < size; ky++ {
				sy := clampInt(y+ky-half, 0, h-1)
				for kx := 0; kx < size; kx++ {
					k := kernel[ky*size+kx]
					if k == 0 {
						continue
					}
					sx := clampInt(x+kx-half, 0, w-1)
					i := sy*img.Stride + sx*4
					r += float64(img.Pix[i]) * k
					g += float64(img.Pix[i+1]) * k
					bl += float64(img.Pix[i+2]) * k
					a += float64(img.Pix[i+3]) * k
				}
			}
			j := y*dst.Stride + x*4
			dst.Pix[j] = clampByte(r)
			dst.Pix[j+1] = clampByte(g)
			dst.Pix[j+2] = clampByte(bl)
			dst.Pix[j+3] = clampByte(a)
		}
	}
	return dst
}

// blocks pixelates by shrinking with filter and enlarging back without
// interpolation.
func blocks(img *image.NRGBA, size int, filter imaging.ResampleFilter) *image.NRGBA {
	if size < 2 {
		return img
	}
	b := img.Bounds()
	w := maxInt(1, b.Dx()/size)
	h := maxInt(1, b.Dy()/size)
	small := imaging.Resize(img, w, h, filter)
	return imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
}

// colorMatrix applies a 4x5 row-major color matrix to the RGB channels.
// The fifth column is an offset in [0, 1] units.
func colorMatrix(img *image.NRGBA, m [15]float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
		return color.NRGBA{
			R: clampByte((m[0]*r + m[1]*g + m[2]*b + m[4]) * 255),
			G: clampByte((m[5]*r + m[6]*g + m[7]*b + m[9]) * 255),
			B: clampByte((m[10]*r + m[11]*g + m[12]*b + m[14]) * 255),
			A: c.A,
		}
	})
}

var (
	sepiaMatrix = [15]float64{
		0.393, 0.769, 0.189, 0, 0,
		0.349, 0.686, 0.168, 0, 0,
		0.272, 0.534, 0.131, 0, 0,
	}
	fadeMatrix = [15]float64{
		0.85, 0.1, 0.05, 0, 0.08,
		0.05, 0.85, 0.1, 0, 0.08,
		0.05, 0.1, 0.8, 0, 0.1,
	}
	processMatrix = [15]float64{
		0.628, 0.320, -0.040, 0, 0.038,
		0.026, 0.644, 0.033, 0, 0.029,
		0.047, -0.085, 0.524, 0, 0.020,
	}
	tonalMatrix = [15]float64{
		1.439, -0.258, -0.155, 0, -0.086,
		-0.055, 1.181, -0.132, 0, 0.012,
		-0.189, -0.242, 1.531, 0, -0.031,
	}
)

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
