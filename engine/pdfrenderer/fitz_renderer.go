package pdfrenderer

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer implements PDF rendering using go-fitz (requires MuPDF)
type FitzRenderer struct {
	dpi float64
}

// NewFitzRenderer creates a new Fitz-based PDF renderer
func NewFitzRenderer(dpi int) (*FitzRenderer, error) {
	return &FitzRenderer{dpi: float64(dpi)}, nil
}

// Name returns the backend name
func (r *FitzRenderer) Name() string {
	return "fitz"
}

// RenderPDF converts all pages of a PDF to images using go-fitz
func (r *FitzRenderer) RenderPDF(ctx context.Context, data []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	images := make([]image.Image, 0, numPages)

	for pageNum := 0; pageNum < numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(pageNum, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("unable to render page %d: %w", pageNum+1, err)
		}
		images = append(images, img)
	}

	return images, nil
}

// Close cleans up resources (no-op for Fitz renderer as doc is closed per-render)
func (r *FitzRenderer) Close() error {
	return nil
}
