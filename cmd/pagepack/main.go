// Command pagepack processes a batch of images and PDFs from the command line
// and writes the numbered results to a zip archive.
//
//	pagepack -start 1001 -rotate 90 -override scan.pdf=180 -o out.zip a.jpg scan.pdf
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/drummonds/pagepack/engine/batch"
	"github.com/drummonds/pagepack/engine/pdfrenderer"
	"github.com/drummonds/pagepack/internal/build"
)

// errNothingProcessed is returned when every input failed
var errNothingProcessed = errors.New("no files were processed successfully")

// overrideFlag collects repeated -override name=degrees values
type overrideFlag map[string]batch.Rotation

func (o overrideFlag) String() string {
	parts := make([]string, 0, len(o))
	for name, r := range o {
		parts = append(parts, fmt.Sprintf("%s=%d", name, r))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (o overrideFlag) Set(value string) error {
	name, deg, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=degrees, got %q", value)
	}
	r, err := batch.ParseRotation(deg)
	if err != nil {
		return err
	}
	o[name] = r
	return nil
}

// options are the parsed command line
type options struct {
	settings batch.Settings
	output   string
	renderer pdfrenderer.Options
	verbose  bool
	files    []string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	opts := options{settings: batch.DefaultSettings()}
	overrides := overrideFlag{}

	fs := flag.NewFlagSet("pagepack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.settings.StartNumber, "start", opts.settings.StartNumber, "first sequence number")
	rotate := fs.String("rotate", "0", "rotation applied to every file: 0, 90, 180 or 270")
	fs.Var(overrides, "override", "per-file rotation as name=degrees, repeatable")
	format := fs.String("format", "jpeg", "output format: jpeg or png")
	fs.IntVar(&opts.settings.JPEGQuality, "quality", opts.settings.JPEGQuality, "JPEG quality (50-100)")
	fs.StringVar(&opts.settings.Prefix, "prefix", "", "text placed before every number")
	fs.StringVar(&opts.output, "o", "processed_files.zip", "archive to write")
	fs.StringVar(&opts.renderer.Backend, "renderer", "pdfium", "PDF renderer: pdfium, fitz or remote")
	fs.IntVar(&opts.renderer.DPI, "dpi", pdfrenderer.DefaultDPI, "PDF rasterization resolution")
	fs.StringVar(&opts.renderer.ServiceURL, "pdf-service", "", "pdf-service URL for the remote renderer")
	fs.BoolVar(&opts.verbose, "v", false, "log every step")
	version := fs.Bool("version", false, "print the version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pagepack [flags] file...\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if *version {
		fmt.Fprintln(stderr, "pagepack", build.Version)
		return opts, flag.ErrHelp
	}

	r, err := batch.ParseRotation(*rotate)
	if err != nil {
		return opts, err
	}
	opts.settings.Rotation = r
	if opts.settings.Format, err = batch.ParseOutputFormat(*format); err != nil {
		return opts, err
	}
	if len(overrides) > 0 {
		opts.settings.Overrides = overrides
	}
	if strings.ContainsAny(opts.settings.Prefix, `/\`) {
		return opts, fmt.Errorf("prefix must not contain path separators")
	}
	if err := opts.settings.Validate(); err != nil {
		return opts, err
	}

	opts.files = fs.Args()
	if len(opts.files) == 0 {
		fs.Usage()
		return opts, fmt.Errorf("no input files")
	}
	return opts, nil
}

func readSources(paths []string) ([]batch.SourceFile, error) {
	files := make([]batch.SourceFile, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, batch.NewSourceFile(filepath.Base(path), "", content))
	}
	return files, nil
}

func hasPDF(files []batch.SourceFile) bool {
	for _, f := range files {
		if f.Kind == batch.KindPDF {
			return true
		}
	}
	return false
}

// run processes the batch and reports to stdout; the archive is written even
// when it is empty
func run(ctx context.Context, opts options, stdout io.Writer, logger *slog.Logger) error {
	pdfrenderer.Logger = logger
	files, err := readSources(opts.files)
	if err != nil {
		return err
	}

	var rasterizer batch.Rasterizer
	if hasPDF(files) {
		renderer, err := pdfrenderer.NewRenderer(opts.renderer)
		if err != nil {
			logger.Warn("PDF renderer unavailable, PDFs will be reported as failures", "error", err)
		} else {
			defer renderer.Close()
			rasterizer = renderer
		}
	}

	pipeline := batch.New(batch.Config{Rasterizer: rasterizer, Logger: logger})
	result, err := pipeline.Process(ctx, files, opts.settings, func(done, total int, current string) {
		logger.Debug("Processed file", "file", current, "done", done, "total", total)
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(opts.output, result.Archive, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	for _, o := range result.Outputs {
		fmt.Fprintln(stdout, o.Caption())
	}
	for _, f := range result.Failures {
		fmt.Fprintf(stdout, "FAILED %s: %s\n", f.Name, f.Error)
	}
	fmt.Fprintf(stdout, "%d image(s), %d failure(s) -> %s\n", len(result.Outputs), len(result.Failures), opts.output)

	if result.Empty() {
		return errNothingProcessed
	}
	return nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pagepack:", err)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "pagepack:", err)
		os.Exit(1)
	}
}
