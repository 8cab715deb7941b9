package quality

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/invoiceflow/invoiceflow-backend/pkg/testutil"
)

func TestAssess_Deterministic(t *testing.T) {
	img := testutil.SharpTestImage(64, 64)

	first := Assess(img)
	second := Assess(img)

	assert.Equal(t, first, second)
}

func TestAssess_MetricsInRange(t *testing.T) {
	cases := []struct {
		name string
		img  image.Image
	}{
		{"sharp checkerboard", testutil.SharpTestImage(64, 64)},
		{"blurry noise", testutil.BlurryTestImage(64, 64)},
		{"uniform gray", testutil.UniformTestImage(32, 32, 128)},
		{"uniform black", testutil.UniformTestImage(32, 32, 0)},
		{"uniform white", testutil.UniformTestImage(32, 32, 255)},
		{"single pixel", testutil.UniformTestImage(1, 1, 77)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Assess(tc.img)

			assert.GreaterOrEqual(t, m.Sharpness, 0.0)
			assert.LessOrEqual(t, m.Sharpness, 1.0)
			assert.GreaterOrEqual(t, m.Contrast, 0.0)
			assert.LessOrEqual(t, m.Contrast, 1.0)
			assert.GreaterOrEqual(t, m.Brightness, 0.0)
			assert.LessOrEqual(t, m.Brightness, 1.0)
		})
	}
}

func TestAssess_UniformImageHasZeroSharpnessAndContrast(t *testing.T) {
	m := Assess(testutil.UniformTestImage(32, 32, 200))

	assert.Zero(t, m.Sharpness)
	assert.Zero(t, m.Contrast)
	assert.InDelta(t, 200.0/255.0, m.Brightness, 0.02)
}

func TestAssess_SinglePixelImage(t *testing.T) {
	m := Assess(testutil.UniformTestImage(1, 1, 128))

	assert.Zero(t, m.Sharpness)
	assert.Zero(t, m.Contrast)
}

func TestAssess_SharpBeatsBlurry(t *testing.T) {
	sharp := Assess(testutil.SharpTestImage(64, 64))
	blurry := Assess(testutil.BlurryTestImage(64, 64))

	assert.Greater(t, sharp.Sharpness, blurry.Sharpness)
	assert.Greater(t, sharp.Contrast, blurry.Contrast)
}

func TestThresholds_Acceptable(t *testing.T) {
	th := Thresholds{
		SharpnessMin:  0.02,
		ContrastMin:   0.15,
		BrightnessMin: 0.25,
		BrightnessMax: 0.90,
	}

	cases := []struct {
		name string
		m    Metrics
		want bool
	}{
		{"all within", Metrics{Sharpness: 0.1, Contrast: 0.3, Brightness: 0.5}, true},
		{"at lower bounds", Metrics{Sharpness: 0.02, Contrast: 0.15, Brightness: 0.25}, true},
		{"too blurry", Metrics{Sharpness: 0.01, Contrast: 0.3, Brightness: 0.5}, false},
		{"too flat", Metrics{Sharpness: 0.1, Contrast: 0.05, Brightness: 0.5}, false},
		{"too dark", Metrics{Sharpness: 0.1, Contrast: 0.3, Brightness: 0.1}, false},
		{"too bright", Metrics{Sharpness: 0.1, Contrast: 0.3, Brightness: 0.95}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, th.Acceptable(tc.m))
		})
	}
}
