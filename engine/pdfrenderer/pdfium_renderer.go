package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumRenderer implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumRenderer struct {
	mu       sync.Mutex
	dpi      int
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumRenderer creates a new PDFium-based PDF renderer using WebAssembly
func NewPDFiumRenderer(dpi int) (*PDFiumRenderer, error) {
	// A single worker; calls are serialized by mu
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	return &PDFiumRenderer{
		dpi:      dpi,
		pool:     pool,
		instance: instance,
	}, nil
}

// Name returns the backend name
func (r *PDFiumRenderer) Name() string {
	return "pdfium"
}

// RenderPDF converts all pages of a PDF to images using go-pdfium WebAssembly
func (r *PDFiumRenderer) RenderPDF(ctx context.Context, data []byte) ([]image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance == nil {
		return nil, fmt.Errorf("pdfium renderer is closed")
	}

	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})

	pageCountResp, err := r.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	numPages := pageCountResp.PageCount
	images := make([]image.Image, 0, numPages)

	for pageIndex := 0; pageIndex < numPages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageRender, err := r.instance.RenderPageInDPI(&requests.RenderPageInDPI{
			DPI: r.dpi,
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{
					Document: doc.Document,
					Index:    pageIndex,
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("unable to render page %d: %w", pageIndex+1, err)
		}

		// Copy out of the WebAssembly buffer before it is released
		images = append(images, imaging.Clone(pageRender.Result.Image))
		pageRender.Cleanup()
	}

	return images, nil
}

// Close cleans up resources used by the PDFium renderer
func (r *PDFiumRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instance != nil {
		r.instance.Close()
		r.instance = nil
	}
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	return nil
}
