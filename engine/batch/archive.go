package batch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Filename builds an archive entry name: prefix, sequence number, extension.
// The prefix is used verbatim.
func Filename(prefix string, sequence int, ext string) string {
	return prefix + strconv.Itoa(sequence) + ext
}

// WriteArchive writes one deflated zip entry per output, in order
func WriteArchive(w io.Writer, outputs []ProcessedOutput) error {
	zw := zip.NewWriter(w)
	modified := time.Now()
	for _, out := range outputs {
		header := &zip.FileHeader{
			Name:     out.Filename,
			Method:   zip.Deflate,
			Modified: modified,
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("unable to create archive entry %s: %w", out.Filename, err)
		}
		if _, err := entry.Write(out.Payload); err != nil {
			return fmt.Errorf("unable to write archive entry %s: %w", out.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to finalize archive: %w", err)
	}
	return nil
}

// BuildArchive is WriteArchive into a fresh buffer
func BuildArchive(outputs []ProcessedOutput) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, outputs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
