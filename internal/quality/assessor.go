// Package quality measures scanned-page image quality for OCR routing.
package quality

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Metrics holds normalized image quality measurements. All values are
// in [0, 1].
type Metrics struct {
	Sharpness  float64 `json:"sharpness"`
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
}

// Thresholds defines the acceptance window for routing to the fast engine.
type Thresholds struct {
	SharpnessMin  float64
	ContrastMin   float64
	BrightnessMin float64
	BrightnessMax float64
}

// Acceptable reports whether all metrics fall within the window.
func (t Thresholds) Acceptable(m Metrics) bool {
	return m.Sharpness >= t.SharpnessMin &&
		m.Contrast >= t.ContrastMin &&
		m.Brightness >= t.BrightnessMin &&
		m.Brightness <= t.BrightnessMax
}

// Assess computes quality metrics for an image. It is deterministic and
// never fails: degenerate inputs (uniform or single-pixel images) yield
// zero sharpness and contrast rather than an error.
//
// Sharpness is the variance of a 3x3 Laplacian response over the
// grayscale image, scaled so a maximally busy image approaches 1.
// Contrast is the standard deviation of grayscale intensity.
// Brightness is the mean grayscale intensity.
func Assess(img image.Image) Metrics {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w == 0 || h == 0 {
		return Metrics{}
	}

	// Luminance plane in [0, 1]. Grayscale output has R == G == B.
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w*4]
		for x := 0; x < w; x++ {
			lum[y*w+x] = float64(row[x*4]) / 255.0
		}
	}

	var sum, sumSq float64
	for _, v := range lum {
		sum += v
		sumSq += v * v
	}
	n := float64(len(lum))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	m := Metrics{
		Brightness: mean,
		Contrast:   math.Sqrt(variance),
	}

	// Laplacian needs interior pixels.
	if w < 3 || h < 3 {
		return m
	}

	var lapSum, lapSumSq float64
	count := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			// 4-neighbor Laplacian, response in [-4, 4]; scale to [-1, 1]
			lap := (4*c - lum[(y-1)*w+x] - lum[(y+1)*w+x] - lum[y*w+x-1] - lum[y*w+x+1]) / 4.0
			lapSum += lap
			lapSumSq += lap * lap
			count++
		}
	}

	cn := float64(count)
	lapMean := lapSum / cn
	lapVar := lapSumSq/cn - lapMean*lapMean
	if lapVar < 0 {
		lapVar = 0
	}
	if lapVar > 1 {
		lapVar = 1
	}
	m.Sharpness = lapVar

	return m
}
