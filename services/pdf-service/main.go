package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

const (
	defaultDPI = 300
	maxDPI     = 1200
	maxBody    = 256 << 20
)

// PagesRequest is the body of POST /pdf/pages
type PagesRequest struct {
	PDF []byte `json:"pdf"`
	DPI int    `json:"dpi"`
}

// PagesResponse carries one base64 PNG per page, in page order
type PagesResponse struct {
	Pages []string `json:"pages"`
	Error string   `json:"error,omitempty"`
}

type PageCountResponse struct {
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8002"
	}

	log.Printf("Starting PDF service on port %s", port)

	if err := http.ListenAndServe(":"+port, newMux()); err != nil {
		log.Fatal(err)
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/pdf/pages", pagesHandler)
	mux.HandleFunc("/pdf/page-count", pageCountHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func pagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := readPagesRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Rendering PDF (%d bytes) at %d DPI", len(req.PDF), req.DPI)

	pages, err := renderPages(req.PDF, req.DPI)
	if err != nil {
		log.Printf("Render error: %v", err)
		sendErrorResponse(w, fmt.Sprintf("Rendering failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PagesResponse{Pages: pages})
}

func pageCountHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := readPagesRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := pageCount(req.PDF)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PageCountResponse{Pages: count})
}

func readPagesRequest(r *http.Request) (PagesRequest, error) {
	var req PagesRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return req, fmt.Errorf("failed to read request: %w", err)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	if len(req.PDF) == 0 {
		return req, fmt.Errorf("no PDF provided")
	}
	if req.DPI <= 0 {
		req.DPI = defaultDPI
	}
	if req.DPI > maxDPI {
		return req, fmt.Errorf("dpi must be at most %d, got %d", maxDPI, req.DPI)
	}
	return req, nil
}

// pageCount reads the page tree without rendering anything
func pageCount(pdfData []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfData), int64(len(pdfData)))
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	n := reader.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return n, nil
}

// renderPages rasterizes every page at dpi and returns them as base64 PNGs
func renderPages(pdfData []byte, dpi int) ([]string, error) {
	expected, err := pageCount(pdfData)
	if err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages != expected {
		return nil, fmt.Errorf("page count mismatch: page tree has %d, renderer sees %d", expected, numPages)
	}

	pages := make([]string, 0, numPages)
	for pageNum := 0; pageNum < numPages; pageNum++ {
		img, err := doc.ImageDPI(pageNum, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", pageNum+1, err)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", pageNum+1, err)
		}
		pages = append(pages, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}

	return pages, nil
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{
		"error": message,
	}
	json.NewEncoder(w).Encode(response)
}
