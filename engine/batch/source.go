package batch

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MediaKind tags a SourceFile as either a raster image or a PDF document
type MediaKind int

const (
	KindImage MediaKind = iota
	KindPDF
)

func (k MediaKind) String() string {
	if k == KindPDF {
		return "pdf"
	}
	return "image"
}

// SourceFile is one uploaded file, in upload order
type SourceFile struct {
	Name    string
	Content []byte
	Kind    MediaKind
}

// NewSourceFile builds a SourceFile, resolving its kind once from the declared
// content type, the file extension and finally the leading bytes.
func NewSourceFile(name, declaredType string, content []byte) SourceFile {
	return SourceFile{
		Name:    name,
		Content: content,
		Kind:    DetectMediaKind(name, declaredType, content),
	}
}

var pdfMagic = []byte("%PDF-")

// DetectMediaKind decides whether a file is a PDF or an image
func DetectMediaKind(name, declaredType string, content []byte) MediaKind {
	declaredType = strings.ToLower(strings.TrimSpace(declaredType))
	if i := strings.Index(declaredType, ";"); i >= 0 {
		declaredType = strings.TrimSpace(declaredType[:i])
	}
	switch {
	case declaredType == "application/pdf":
		return KindPDF
	case strings.HasPrefix(declaredType, "image/"):
		return KindImage
	case strings.EqualFold(filepath.Ext(name), ".pdf"):
		return KindPDF
	case bytes.HasPrefix(content, pdfMagic):
		return KindPDF
	}
	return KindImage
}

// Rotation is a clockwise rotation in degrees
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported quarter turns
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

func (r Rotation) String() string {
	return strconv.Itoa(int(r)) + "deg"
}

// ParseRotation parses "90", "90deg" or "90°"; the empty string means no rotation
func ParseRotation(s string) (Rotation, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "°")
	s = strings.TrimSuffix(strings.ToLower(s), "deg")
	if s == "" {
		return Rotate0, nil
	}
	deg, err := strconv.Atoi(s)
	if err != nil {
		return Rotate0, fmt.Errorf("invalid rotation %q: %w", s, err)
	}
	r := Rotation(deg)
	if !r.Valid() {
		return Rotate0, fmt.Errorf("invalid rotation %d: must be one of 0, 90, 180, 270", deg)
	}
	return r, nil
}

// OutputFormat is the raster format every output is re-encoded to
type OutputFormat int

const (
	FormatJPEG OutputFormat = iota
	FormatPNG
)

// Extension returns the archive entry extension, including the dot
func (f OutputFormat) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

func (f OutputFormat) String() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpeg"
}

// ParseOutputFormat accepts jpeg, jpg or png in any case
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	}
	return FormatJPEG, fmt.Errorf("unsupported output format %q", s)
}
