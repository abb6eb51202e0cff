package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/disintegration/imaging"
)

// fakeRasterizer returns canned pages keyed by the PDF bytes
type fakeRasterizer struct {
	pages map[string][]image.Image
	calls int
}

func (f *fakeRasterizer) RenderPDF(ctx context.Context, data []byte) ([]image.Image, error) {
	f.calls++
	pages, ok := f.pages[string(data)]
	if !ok {
		return nil, errors.New("malformed xref table")
	}
	return pages, nil
}

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("Failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func readArchive(t *testing.T, data []byte) []*zip.File {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Archive is not a valid zip: %v", err)
	}
	return zr.File
}

func decodeEntry(t *testing.T, f *zip.File) image.Image {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Failed to open entry %s: %v", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Failed to read entry %s: %v", f.Name, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("Entry %s is not an image: %v", f.Name, err)
	}
	return img
}

func newTestPipeline(r Rasterizer) *Pipeline {
	return New(Config{Rasterizer: r})
}

func TestEndToEndMixedBatch(t *testing.T) {
	raster := &fakeRasterizer{pages: map[string][]image.Image{
		"%PDF-report": {solid(30, 50, color.White), solid(30, 50, color.Black)},
	}}
	files := []SourceFile{
		NewSourceFile("imageA.png", "image/png", pngBytes(t, solid(40, 20, color.NRGBA{R: 200, A: 255}))),
		NewSourceFile("report.pdf", "application/pdf", []byte("%PDF-report")),
	}
	settings := DefaultSettings()
	settings.Rotation = Rotate90
	settings.StartNumber = 5
	settings.Prefix = "x_"

	result, err := newTestPipeline(raster).Process(context.Background(), files, settings, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("Expected no failures, got %+v", result.Failures)
	}

	entries := readArchive(t, result.Archive)
	want := []string{"x_5.jpg", "x_6.jpg", "x_7.jpg"}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(entries))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("Entry %d: expected %s, got %s", i, name, entries[i].Name)
		}
		if entries[i].Method != zip.Deflate {
			t.Errorf("Entry %s is not deflated", entries[i].Name)
		}
	}

	// imageA is 40x20 and both pages are 30x50; a quarter turn swaps them
	wantSizes := [][2]int{{20, 40}, {50, 30}, {50, 30}}
	for i, f := range entries {
		b := decodeEntry(t, f).Bounds()
		if b.Dx() != wantSizes[i][0] || b.Dy() != wantSizes[i][1] {
			t.Errorf("%s: expected %dx%d, got %dx%d", f.Name, wantSizes[i][0], wantSizes[i][1], b.Dx(), b.Dy())
		}
	}

	if result.Outputs[1].Provenance != "PDF_report.pdf_Page_1" || result.Outputs[2].Provenance != "PDF_report.pdf_Page_2" {
		t.Errorf("Unexpected page provenance: %s, %s", result.Outputs[1].Provenance, result.Outputs[2].Provenance)
	}
	if result.Outputs[0].Caption() != "x_5.jpg (From: imageA.png)" {
		t.Errorf("Unexpected caption %q", result.Outputs[0].Caption())
	}
}

func TestSequenceStaysGapFreeAcrossFailures(t *testing.T) {
	raster := &fakeRasterizer{pages: map[string][]image.Image{
		"%PDF-two": {solid(10, 10, color.White), solid(10, 10, color.White)},
	}}
	files := []SourceFile{
		NewSourceFile("a.png", "", pngBytes(t, solid(8, 8, color.White))),
		NewSourceFile("garbage.jpg", "image/jpeg", []byte("not an image at all")),
		NewSourceFile("b.png", "", pngBytes(t, solid(8, 8, color.White))),
		NewSourceFile("broken.pdf", "", []byte("%PDF-broken")),
		NewSourceFile("two.pdf", "", []byte("%PDF-two")),
		NewSourceFile("empty.gif", "image/gif", nil),
	}
	settings := DefaultSettings()
	settings.StartNumber = 10
	settings.Format = FormatPNG

	result, err := newTestPipeline(raster).Process(context.Background(), files, settings, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(result.Outputs) != 4 {
		t.Fatalf("Expected 4 outputs, got %d", len(result.Outputs))
	}
	for i, out := range result.Outputs {
		if out.Sequence != 10+i {
			t.Errorf("Output %d has sequence %d, want %d", i, out.Sequence, 10+i)
		}
	}
	wantSources := []string{"a.png", "b.png", "two.pdf", "two.pdf"}
	for i, out := range result.Outputs {
		if out.Source != wantSources[i] {
			t.Errorf("Output %d came from %s, want %s", i, out.Source, wantSources[i])
		}
	}

	if len(result.Failures) != 3 {
		t.Fatalf("Expected 3 failures, got %+v", result.Failures)
	}
	if !errors.Is(result.Failures[0].Err, ErrDecode) {
		t.Errorf("garbage.jpg should fail with ErrDecode, got %v", result.Failures[0].Err)
	}
	if !errors.Is(result.Failures[1].Err, ErrPDFParse) {
		t.Errorf("broken.pdf should fail with ErrPDFParse, got %v", result.Failures[1].Err)
	}
	if result.FirstNumber() != 10 || result.LastNumber() != 13 {
		t.Errorf("Expected range 10..13, got %d..%d", result.FirstNumber(), result.LastNumber())
	}
}

func TestAllInputsFail(t *testing.T) {
	files := []SourceFile{
		NewSourceFile("one.png", "image/png", []byte("nope")),
		NewSourceFile("two.pdf", "application/pdf", []byte("%PDF-missing")),
		NewSourceFile("three.bmp", "image/bmp", []byte{0x42, 0x4d}),
	}

	result, err := newTestPipeline(&fakeRasterizer{}).Process(context.Background(), files, DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !result.Empty() {
		t.Fatalf("Expected empty result, got %d outputs", len(result.Outputs))
	}
	if entries := readArchive(t, result.Archive); len(entries) != 0 {
		t.Errorf("Expected zero archive entries, got %d", len(entries))
	}
	if len(result.Failures) != len(files) {
		t.Fatalf("Expected %d failures, got %d", len(files), len(result.Failures))
	}
	for i, f := range files {
		if result.Failures[i].Name != f.Name {
			t.Errorf("Failure %d names %s, want %s", i, result.Failures[i].Name, f.Name)
		}
	}
}

func TestPerFileOverrideAppliesToEveryPage(t *testing.T) {
	raster := &fakeRasterizer{pages: map[string][]image.Image{
		"%PDF-scan": {solid(20, 60, color.White), solid(20, 60, color.White), solid(20, 60, color.White)},
	}}
	files := []SourceFile{
		NewSourceFile("scan.pdf", "application/pdf", []byte("%PDF-scan")),
		NewSourceFile("photo.png", "image/png", pngBytes(t, solid(20, 60, color.White))),
	}
	settings := DefaultSettings()
	settings.Rotation = Rotate90
	settings.Overrides = map[string]Rotation{"scan.pdf": Rotate180}

	result, err := newTestPipeline(raster).Process(context.Background(), files, settings, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(result.Outputs) != 4 {
		t.Fatalf("Expected 4 outputs (3 pages + 1 image), got %d", len(result.Outputs))
	}
	for _, out := range result.Outputs[:3] {
		if out.Width != 20 || out.Height != 60 {
			t.Errorf("%s: override 180 should keep 20x60, got %dx%d", out.Provenance, out.Width, out.Height)
		}
	}
	if photo := result.Outputs[3]; photo.Width != 60 || photo.Height != 20 {
		t.Errorf("photo.png should use the global 90, got %dx%d", photo.Width, photo.Height)
	}
}

func TestRotationDimensions(t *testing.T) {
	src := solid(40, 20, color.White)
	tests := []struct {
		rotation Rotation
		w, h     int
	}{
		{Rotate0, 40, 20},
		{Rotate90, 20, 40},
		{Rotate180, 40, 20},
		{Rotate270, 20, 40},
	}
	for _, tt := range tests {
		t.Run(tt.rotation.String(), func(t *testing.T) {
			data, err := Transcode(src, tt.rotation, FormatPNG, 0)
			if err != nil {
				t.Fatalf("Transcode failed: %v", err)
			}
			img, err := DecodeImage(data)
			if err != nil {
				t.Fatalf("Output is not decodable: %v", err)
			}
			if img.Bounds().Dx() != tt.w || img.Bounds().Dy() != tt.h {
				t.Errorf("Expected %dx%d, got %dx%d", tt.w, tt.h, img.Bounds().Dx(), img.Bounds().Dy())
			}
		})
	}
}

func TestRotationIsClockwise(t *testing.T) {
	src := solid(4, 2, color.White)
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})

	rotated := Rotate(src, Rotate90)
	// clockwise: the top-left corner moves to the top-right
	if got := color.NRGBAModel.Convert(rotated.At(1, 0)).(color.NRGBA); got.R != 255 || got.G != 0 {
		t.Errorf("Expected red at top-right after 90° clockwise, got %+v", got)
	}

	rotated = Rotate(src, Rotate270)
	// counter-clockwise: the top-left corner moves to the bottom-left
	if got := color.NRGBAModel.Convert(rotated.At(0, 3)).(color.NRGBA); got.R != 255 || got.G != 0 {
		t.Errorf("Expected red at bottom-left after 270° clockwise, got %+v", got)
	}
}

func TestAlphaImageToJPEG(t *testing.T) {
	translucent := solid(16, 16, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	paletted := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{color.Transparent, color.White})

	for name, img := range map[string]image.Image{"nrgba": translucent, "paletted": paletted} {
		t.Run(name, func(t *testing.T) {
			data, err := Transcode(img, Rotate0, FormatJPEG, 90)
			if err != nil {
				t.Fatalf("JPEG encode of alpha image failed: %v", err)
			}
			if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
				t.Error("Output does not start with a JPEG SOI marker")
			}
		})
	}
}

func TestPNGRoundTripKeepsPixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 50), B: 90, A: uint8(100 + x*10)})
		}
	}
	files := []SourceFile{NewSourceFile("pixels.png", "image/png", pngBytes(t, src))}
	settings := DefaultSettings()
	settings.Format = FormatPNG

	result, err := newTestPipeline(nil).Process(context.Background(), files, settings, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(result.Outputs) != 1 {
		t.Fatalf("Expected 1 output, got %d", len(result.Outputs))
	}
	if result.Outputs[0].Filename != "1001.png" {
		t.Errorf("Expected 1001.png, got %s", result.Outputs[0].Filename)
	}

	out, err := DecodeImage(result.Outputs[0].Payload)
	if err != nil {
		t.Fatalf("Output is not decodable: %v", err)
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			want := src.NRGBAAt(x, y)
			got := color.NRGBAModel.Convert(out.At(x, y)).(color.NRGBA)
			if got != want {
				t.Fatalf("Pixel (%d,%d): expected %+v, got %+v", x, y, want, got)
			}
		}
	}
}

func TestPDFWithoutRasterizer(t *testing.T) {
	files := []SourceFile{NewSourceFile("doc.pdf", "application/pdf", []byte("%PDF-1.7"))}
	result, err := newTestPipeline(nil).Process(context.Background(), files, DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(result.Failures))
	}
	if !errors.Is(result.Failures[0].Err, ErrPDFParse) || !errors.Is(result.Failures[0].Err, ErrNoRenderer) {
		t.Errorf("Expected ErrPDFParse wrapping ErrNoRenderer, got %v", result.Failures[0].Err)
	}
}

func TestProcessHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []SourceFile{NewSourceFile("a.png", "image/png", pngBytes(t, solid(2, 2, color.White)))}
	_, err := newTestPipeline(nil).Process(ctx, files, DefaultSettings(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProgressAndPreviews(t *testing.T) {
	files := []SourceFile{
		NewSourceFile("big.png", "image/png", pngBytes(t, solid(400, 200, color.White))),
		NewSourceFile("bad.png", "image/png", []byte("x")),
	}
	var calls []int
	settings := DefaultSettings()
	settings.Previews = true
	p := New(Config{PreviewSize: 64})
	result, err := p.Process(context.Background(), files, settings, func(done, total int, current string) {
		if total != 2 {
			t.Errorf("Expected total 2, got %d", total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("Unexpected progress calls %v", calls)
	}

	preview, err := DecodeImage(result.Outputs[0].Preview)
	if err != nil {
		t.Fatalf("Preview is not decodable: %v", err)
	}
	if preview.Bounds().Dx() != 64 || preview.Bounds().Dy() != 32 {
		t.Errorf("Expected 64x32 preview, got %dx%d", preview.Bounds().Dx(), preview.Bounds().Dy())
	}
}

func TestPreviewsOnlyWhenRequested(t *testing.T) {
	files := []SourceFile{NewSourceFile("a.png", "image/png", pngBytes(t, solid(100, 100, color.White)))}
	tests := []struct {
		name        string
		previewSize int
		previews    bool
		want        bool
	}{
		{"requested", 64, true, true},
		{"not requested", 64, false, false},
		{"pipeline disabled", 0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.Previews = tt.previews
			result, err := New(Config{PreviewSize: tt.previewSize}).Process(context.Background(), files, settings, nil)
			if err != nil {
				t.Fatalf("Process returned error: %v", err)
			}
			if got := len(result.Outputs[0].Preview) > 0; got != tt.want {
				t.Errorf("Preview present = %v, want %v", got, tt.want)
			}
		})
	}
}

// brokenPage blows up as soon as anything asks for its size
type brokenPage struct{}

func (brokenPage) ColorModel() color.Model { return color.NRGBAModel }
func (brokenPage) Bounds() image.Rectangle { panic("corrupt page buffer") }
func (brokenPage) At(x, y int) color.Color { return color.White }

func TestPanicOnPageIsRecordedAgainstThatPage(t *testing.T) {
	raster := &fakeRasterizer{pages: map[string][]image.Image{
		"doc": {solid(10, 10, color.White), brokenPage{}, solid(10, 10, color.Black)},
	}}
	files := []SourceFile{
		NewSourceFile("doc.pdf", "application/pdf", []byte("doc")),
		NewSourceFile("after.png", "image/png", pngBytes(t, solid(4, 4, color.White))),
	}

	result, err := newTestPipeline(raster).Process(context.Background(), files, DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	// page 1 survives, page 3 is never reached, the next file carries on
	if len(result.Outputs) != 2 {
		t.Fatalf("Expected 2 outputs, got %d", len(result.Outputs))
	}
	if got := result.Outputs[0].Provenance; got != PageProvenance("doc.pdf", 1) {
		t.Errorf("First output provenance = %s", got)
	}
	if got := result.Outputs[1]; got.Provenance != "after.png" || got.Sequence != 1002 {
		t.Errorf("Second output = %s #%d, want after.png #1002", got.Provenance, got.Sequence)
	}

	if len(result.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(result.Failures))
	}
	f := result.Failures[0]
	if f.Name != PageProvenance("doc.pdf", 2) {
		t.Errorf("Failure recorded under %s, want %s", f.Name, PageProvenance("doc.pdf", 2))
	}
	if !errors.Is(f.Err, ErrEncode) {
		t.Errorf("Expected ErrEncode, got %v", f.Err)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(s *Settings) {}, false},
		{"start zero", func(s *Settings) { s.StartNumber = 0 }, true},
		{"bad rotation", func(s *Settings) { s.Rotation = 45 }, true},
		{"bad override", func(s *Settings) { s.Overrides = map[string]Rotation{"a.png": 30} }, true},
		{"quality too low", func(s *Settings) { s.JPEGQuality = 49 }, true},
		{"quality too high", func(s *Settings) { s.JPEGQuality = 101 }, true},
		{"quality ignored for png", func(s *Settings) { s.Format = FormatPNG; s.JPEGQuality = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
