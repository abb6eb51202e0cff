package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// Logger is injected by main; slog.Default is used until then
var Logger *slog.Logger

func logger() *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger
}

// DefaultDPI is the resolution pages are rasterized at
const DefaultDPI = 300

// Renderer defines the interface for PDF to image conversion
type Renderer interface {
	// RenderPDF converts all pages of an in-memory PDF to images
	// Returns a slice of images, one per page, in page order
	RenderPDF(ctx context.Context, data []byte) ([]image.Image, error)

	// Name identifies the backend, e.g. for the about page
	Name() string

	// Close cleans up any resources used by the renderer
	Close() error
}

// Pinger is implemented by renderers that depend on something outside the process
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options select and tune a renderer backend
type Options struct {
	Backend    string // pdfium, fitz or remote
	DPI        int
	ServiceURL string // remote only
	Timeout    time.Duration
}

// NewRenderer creates the configured backend wrapped in a pdfcpu preflight
func NewRenderer(opts Options) (Renderer, error) {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}

	var (
		inner Renderer
		err   error
	)
	switch opts.Backend {
	case "", "pdfium":
		inner, err = NewPDFiumRenderer(opts.DPI)
	case "fitz":
		inner, err = NewFitzRenderer(opts.DPI)
	case "remote":
		inner, err = NewRemoteRenderer(opts.ServiceURL, opts.DPI, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown pdf renderer %q (supported: pdfium, fitz, remote)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewPreflight(inner), nil
}
