package batch

import "errors"

var (
	// ErrDecode means the bytes of an image could not be decoded
	ErrDecode = errors.New("image decode failed")
	// ErrPDFParse means a PDF could not be opened or rendered
	ErrPDFParse = errors.New("pdf could not be rendered")
	// ErrEncode means re-encoding a decoded image failed
	ErrEncode = errors.New("image encode failed")
	// ErrNoRenderer is recorded for PDFs when the pipeline has no rasterizer
	ErrNoRenderer = errors.New("no pdf renderer configured")
)

// Failure is one entry of the failure report. Name is the original file name
// or, for a single PDF page, its provenance label.
type Failure struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Error  string `json:"error"`
	Err    error  `json:"-"`
}

func newFailure(name, source string, err error) Failure {
	return Failure{Name: name, Source: source, Error: err.Error(), Err: err}
}
