package pdfrenderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// RemoteRenderer sends PDFs to the pdf-service and decodes the returned pages
type RemoteRenderer struct {
	ServiceURL string
	DPI        int
	HTTPClient *http.Client
}

// PagesRequest is the body of POST /pdf/pages
type PagesRequest struct {
	PDF []byte `json:"pdf"`
	DPI int    `json:"dpi"`
}

// PagesResponse represents the response from PDF page rendering
type PagesResponse struct {
	Pages []string `json:"pages"` // base64 encoded PNG, one per page
	Error string   `json:"error,omitempty"`
}

// NewRemoteRenderer creates a client for the pdf-service at serviceURL
func NewRemoteRenderer(serviceURL string, dpi int, timeout time.Duration) (*RemoteRenderer, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("remote renderer needs a service URL")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &RemoteRenderer{
		ServiceURL: strings.TrimSuffix(serviceURL, "/"),
		DPI:        dpi,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name returns the backend name
func (r *RemoteRenderer) Name() string {
	return "remote"
}

// RenderPDF posts the PDF to the service and decodes every returned page
func (r *RemoteRenderer) RenderPDF(ctx context.Context, data []byte) ([]image.Image, error) {
	body, err := json.Marshal(PagesRequest{PDF: data, DPI: r.DPI})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.ServiceURL+"/pdf/pages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call PDF service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var pagesResp PagesResponse
	if err := json.Unmarshal(respBody, &pagesResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || pagesResp.Error != "" {
		return nil, fmt.Errorf("PDF service error (status %d): %s", resp.StatusCode, pagesResp.Error)
	}

	images := make([]image.Image, 0, len(pagesResp.Pages))
	for i, encoded := range pagesResp.Pages {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode page %d: %w", i+1, err)
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode page %d image: %w", i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// Ping checks the service health endpoint
func (r *RemoteRenderer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ServiceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("PDF service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("PDF service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op, the HTTP client holds no resources worth releasing
func (r *RemoteRenderer) Close() error {
	return nil
}
