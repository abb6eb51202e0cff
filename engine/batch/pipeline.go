// Package batch renames and repacks uploaded images and PDFs.
//
// Every input is decoded (PDFs are rasterized page by page), rotated, re-encoded
// as JPEG or PNG and given the next sequence number from a single counter. The
// outputs are packed into a zip archive named {prefix}{number}{ext}. Failures
// are collected per file or page and never abort the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Rasterizer turns a PDF into one image per page, in page order
type Rasterizer interface {
	RenderPDF(ctx context.Context, data []byte) ([]image.Image, error)
}

// ProgressFunc is called after each source file with the number of files done
type ProgressFunc func(done, total int, current string)

// Settings are the user choices for one batch
type Settings struct {
	StartNumber int
	Rotation    Rotation
	Overrides   map[string]Rotation
	Format      OutputFormat
	JPEGQuality int
	Prefix      string
	// Previews asks for a thumbnail on every output. The Pipeline's
	// PreviewSize must also be set.
	Previews bool
}

// DefaultSettings mirrors the defaults of the upload form
func DefaultSettings() Settings {
	return Settings{
		StartNumber: 1001,
		Rotation:    Rotate0,
		Format:      FormatJPEG,
		JPEGQuality: DefaultJPEGQuality,
	}
}

// Validate checks ranges; it does not touch any file
func (s Settings) Validate() error {
	if s.StartNumber < 1 {
		return fmt.Errorf("start number must be at least 1, got %d", s.StartNumber)
	}
	if !s.Rotation.Valid() {
		return fmt.Errorf("invalid rotation %d", s.Rotation)
	}
	for name, r := range s.Overrides {
		if !r.Valid() {
			return fmt.Errorf("invalid rotation %d for %s", r, name)
		}
	}
	if s.Format != FormatJPEG && s.Format != FormatPNG {
		return fmt.Errorf("invalid output format %d", s.Format)
	}
	if s.Format == FormatJPEG && (s.JPEGQuality < MinJPEGQuality || s.JPEGQuality > MaxJPEGQuality) {
		return fmt.Errorf("jpeg quality must be between %d and %d, got %d", MinJPEGQuality, MaxJPEGQuality, s.JPEGQuality)
	}
	return nil
}

// RotationFor returns the per-file override for name, or the global rotation
func (s Settings) RotationFor(name string) Rotation {
	if r, ok := s.Overrides[name]; ok {
		return r
	}
	return s.Rotation
}

// ProcessedOutput is one renamed, re-encoded page or image
type ProcessedOutput struct {
	Sequence   int
	Extension  string
	Filename   string
	Payload    []byte
	Provenance string
	Source     string
	Width      int
	Height     int
	Preview    []byte
}

// Caption is the preview caption shown next to each output
func (o ProcessedOutput) Caption() string {
	return fmt.Sprintf("%s (From: %s)", o.Filename, o.Provenance)
}

// Result is everything one batch produced
type Result struct {
	Archive  []byte
	Outputs  []ProcessedOutput
	Failures []Failure
	Inputs   int
}

// Empty reports the "nothing processed" condition. The archive is still a
// valid zip with no entries.
func (r *Result) Empty() bool {
	return len(r.Outputs) == 0
}

// FirstNumber and LastNumber give the sequence range used, or 0 when empty
func (r *Result) FirstNumber() int {
	if r.Empty() {
		return 0
	}
	return r.Outputs[0].Sequence
}

func (r *Result) LastNumber() int {
	if r.Empty() {
		return 0
	}
	return r.Outputs[len(r.Outputs)-1].Sequence
}

// PageProvenance labels a rasterized PDF page, page is 1-based
func PageProvenance(source string, page int) string {
	return fmt.Sprintf("PDF_%s_Page_%d", source, page)
}

// Config wires a Pipeline to its collaborators
type Config struct {
	Rasterizer Rasterizer
	Logger     *slog.Logger
	// PreviewSize is the bounding box of preview thumbnails; 0 disables them
	// for every batch, whatever Settings.Previews says
	PreviewSize int
}

// Pipeline runs batches. It holds no per-batch state, so one Pipeline can
// serve independent requests at the same time.
type Pipeline struct {
	rasterizer  Rasterizer
	logger      *slog.Logger
	previewSize int
}

// New creates a Pipeline
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		rasterizer:  cfg.Rasterizer,
		logger:      logger,
		previewSize: cfg.PreviewSize,
	}
}

// run holds the state of a single Process call
type run struct {
	p        *Pipeline
	settings Settings
	next     int
	outputs  []ProcessedOutput
	failures []Failure
	// unit is the provenance of the PDF page being emitted, empty otherwise
	unit string
}

// Process runs one batch over files in order. Per-file and per-page errors end
// up in Result.Failures; an error is only returned for invalid settings, a
// cancelled context or when the archive cannot be written.
func (p *Pipeline) Process(ctx context.Context, files []SourceFile, settings Settings, progress ProgressFunc) (*Result, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	r := &run{p: p, settings: settings, next: settings.StartNumber}
	total := len(files)
	p.logger.Info("Starting batch", "files", total, "start", settings.StartNumber, "format", settings.Format.String(), "rotation", int(settings.Rotation))

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled after %d of %d files: %w", i, total, err)
		}
		r.processFile(ctx, file)
		if progress != nil {
			progress(i+1, total, file.Name)
		}
	}

	archive, err := BuildArchive(r.outputs)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Archive:  archive,
		Outputs:  r.outputs,
		Failures: r.failures,
		Inputs:   total,
	}
	if result.Empty() {
		p.logger.Warn("Batch produced no outputs", "files", total, "failures", len(r.failures))
	} else {
		p.logger.Info("Batch complete", "outputs", len(r.outputs), "failures", len(r.failures), "first", result.FirstNumber(), "last", result.LastNumber())
	}
	return result, nil
}

// processFile turns one source into outputs. A panic stops the file where it
// happened: pages already emitted keep their numbers and the failure is
// recorded against the page being emitted, or the file when no page was.
func (r *run) processFile(ctx context.Context, file SourceFile) {
	r.unit = ""
	defer func() {
		if rec := recover(); rec != nil {
			name, class := file.Name, ErrDecode
			if r.unit != "" {
				name, class = r.unit, ErrEncode
			}
			r.p.logger.Error("Panic recovered while processing file", "file", file.Name, "unit", name, "panic", rec)
			r.fail(name, file.Name, fmt.Errorf("%w: panic: %v", class, rec))
		}
		r.unit = ""
	}()

	rotation := r.settings.RotationFor(file.Name)
	switch file.Kind {
	case KindPDF:
		r.processPDF(ctx, file, rotation)
	default:
		img, err := DecodeImage(file.Content)
		if err != nil {
			r.fail(file.Name, file.Name, err)
			return
		}
		r.emit(img, rotation, file.Name, file.Name)
	}
}

func (r *run) processPDF(ctx context.Context, file SourceFile, rotation Rotation) {
	if r.p.rasterizer == nil {
		r.fail(file.Name, file.Name, fmt.Errorf("%w: %w", ErrPDFParse, ErrNoRenderer))
		return
	}
	pages, err := r.p.rasterizer.RenderPDF(ctx, file.Content)
	if err != nil {
		if !errors.Is(err, ErrPDFParse) {
			err = fmt.Errorf("%w: %v", ErrPDFParse, err)
		}
		r.fail(file.Name, file.Name, err)
		return
	}
	r.p.logger.Debug("PDF rasterized", "file", file.Name, "pages", len(pages))
	for i, page := range pages {
		r.unit = PageProvenance(file.Name, i+1)
		r.emit(page, rotation, r.unit, file.Name)
	}
}

// emit transcodes one unit and, on success only, hands out the next number
func (r *run) emit(img image.Image, rotation Rotation, provenance, source string) {
	rotated := Rotate(img, rotation)
	payload, err := encode(rotated, r.settings.Format, r.settings.JPEGQuality)
	if err != nil {
		r.fail(provenance, source, err)
		return
	}

	ext := r.settings.Format.Extension()
	out := ProcessedOutput{
		Sequence:   r.next,
		Extension:  ext,
		Filename:   Filename(r.settings.Prefix, r.next, ext),
		Payload:    payload,
		Provenance: provenance,
		Source:     source,
		Width:      rotated.Bounds().Dx(),
		Height:     rotated.Bounds().Dy(),
	}
	if r.p.previewSize > 0 && r.settings.Previews {
		if preview, err := thumbnail(rotated, r.p.previewSize); err == nil {
			out.Preview = preview
		} else {
			r.p.logger.Warn("Couldn't build preview", "output", out.Filename, "error", err)
		}
	}
	r.next++
	r.outputs = append(r.outputs, out)
}

func (r *run) fail(name, source string, err error) {
	r.p.logger.Warn("Skipping unit", "name", name, "error", err)
	r.failures = append(r.failures, newFailure(name, source, err))
}
