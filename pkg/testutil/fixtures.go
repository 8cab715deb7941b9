package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"

	"github.com/google/uuid"
)

// SampleInvoiceText is OCR-like text for a simple produce invoice.
// It matches the patterns in SampleTemplatePatterns.
const SampleInvoiceText = `Fresh Farms Produce Co.
123 Market Street, Springfield
Invoice #: 4471
Invoice Date: 03/15/2026
Order Date: 03/12/2026

ITEMS
2 lb Tomatoes $1.50 $3.00
5 cs Lettuce $12.00 $60.00
1 ea Olive Oil $18.25 $18.25
END ITEMS

Total Due: $81.25
Thank you for your business!`

// SampleTemplatePatterns is a full 12-slot pattern array matching
// SampleInvoiceText. Index layout:
//
//	0  invoice number
//	1  invoice date
//	2  invoice total amount
//	3  order date
//	4  line item block start
//	5  line item block end
//	6  line item split
//	7  quantity
//	8  description
//	9  unit
//	10 unit price
//	11 line total
func SampleTemplatePatterns() [12]string {
	return [12]string{
		`Invoice #:\s*(\d+)`,
		`Invoice Date:\s*(\d{2}/\d{2}/\d{4})`,
		`Total Due:\s*\$([\d,]+\.\d{2})`,
		`Order Date:\s*(\d{2}/\d{2}/\d{4})`,
		`ITEMS`,
		`END ITEMS`,
		`\n`,
		`^([\d.]+)\s`,
		`^[\d.]+\s+\w+\s+(.+?)\s+\$`,
		`^[\d.]+\s+(\w+)\s`,
		`\$([\d,]+\.\d{2})\s+\$[\d,]+\.\d{2}$`,
		`\$([\d,]+\.\d{2})$`,
	}
}

// VendorFixture holds test vendor data
type VendorFixture struct {
	ID             string
	Name           string
	NormalizedName string
	Address        string
	Phone          string
	Email          string
	Website        string
}

// NewVendorFixture returns a vendor matching SampleInvoiceText
func NewVendorFixture() VendorFixture {
	return VendorFixture{
		ID:             uuid.New().String(),
		Name:           "Fresh Farms Produce Co.",
		NormalizedName: "freshfarmsproduceco",
		Address:        "123 Market Street, Springfield",
		Phone:          "555-0123",
		Email:          "orders@freshfarms.example",
		Website:        "https://freshfarms.example",
	}
}

// SharpTestImage generates a grayscale test image with strong edges,
// suitable for exercising quality metrics above typical thresholds.
func SharpTestImage(width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Checkerboard: alternating black and white 8px cells
			if ((x/8)+(y/8))%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 20})
			} else {
				img.SetGray(x, y, color.Gray{Y: 235})
			}
		}
	}
	return img
}

// BlurryTestImage generates a low-contrast, near-uniform image that should
// fall below sharpness and contrast thresholds.
func BlurryTestImage(width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	rng := rand.New(rand.NewSource(42))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Mid-gray with tiny noise
			v := 128 + rng.Intn(3)
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

// UniformTestImage generates a perfectly flat image
func UniformTestImage(width, height int, level uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}
	return img
}

// EncodePNG encodes an image as PNG bytes
func EncodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
