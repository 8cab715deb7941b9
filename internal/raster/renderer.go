// Package raster turns uploaded document bytes into page images.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
)

// Renderer renders one page of a document as an image.
type Renderer interface {
	Render(ctx context.Context, doc []byte, page int) (image.Image, error)
}

// ImageRenderer decodes raster image uploads (PNG, JPEG, TIFF, BMP).
// Image files have a single page; any other page index is an error.
// PDF rasterization is handled by an external collaborator behind the
// same interface.
type ImageRenderer struct{}

// NewImageRenderer creates an ImageRenderer.
func NewImageRenderer() *ImageRenderer {
	return &ImageRenderer{}
}

// Render decodes the document bytes. Decode failures and out-of-range
// pages are reported as rasterization errors.
func (r *ImageRenderer) Render(ctx context.Context, doc []byte, page int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if page != 0 {
		return nil, errors.RasterizeFailed(
			fmt.Errorf("image documents have a single page, requested page %d", page))
	}

	if len(doc) == 0 {
		return nil, errors.RasterizeFailed(fmt.Errorf("empty document"))
	}

	img, err := imaging.Decode(bytes.NewReader(doc))
	if err != nil {
		return nil, errors.RasterizeFailed(err)
	}

	return img, nil
}
