package pdfrenderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalidPDF is returned when a document fails structural validation
var ErrInvalidPDF = errors.New("invalid PDF")

func init() {
	// never read or write ~/.config/pdfcpu
	api.DisableConfigDir()
}

// Preflight checks a PDF with pdfcpu before handing it to the wrapped
// renderer. The renderer has the last word: pdfcpu is stricter than pdfium or
// MuPDF, so a document it rejects is still rendered, and ErrInvalidPDF is only
// returned when the renderer fails too. A page count mismatch is logged.
type Preflight struct {
	inner Renderer
}

// NewPreflight wraps inner
func NewPreflight(inner Renderer) *Preflight {
	return &Preflight{inner: inner}
}

// PageCount validates data and returns its page count
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if pdfCtx.PageCount == 0 {
		return 0, fmt.Errorf("%w: document has no pages", ErrInvalidPDF)
	}
	return pdfCtx.PageCount, nil
}

// RenderPDF checks then renders
func (p *Preflight) RenderPDF(ctx context.Context, data []byte) ([]image.Image, error) {
	pages, checkErr := PageCount(data)
	images, err := p.inner.RenderPDF(ctx, data)
	if err != nil {
		if checkErr != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w; %s: %v", checkErr, p.inner.Name(), err)
		}
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s rendered no pages", ErrInvalidPDF, p.inner.Name())
	}

	switch {
	case checkErr != nil:
		logger().Warn("pdfcpu rejected a PDF the renderer could read", "renderer", p.inner.Name(), "pages", len(images), "error", checkErr)
	case len(images) != pages:
		logger().Warn("Rendered page count differs from the document", "renderer", p.inner.Name(), "rendered", len(images), "document", pages)
	}
	return images, nil
}

// Name reports the wrapped backend
func (p *Preflight) Name() string {
	return p.inner.Name()
}

// Ping delegates to the wrapped renderer when it has something to check
func (p *Preflight) Ping(ctx context.Context) error {
	if pinger, ok := p.inner.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (p *Preflight) Close() error {
	return p.inner.Close()
}
