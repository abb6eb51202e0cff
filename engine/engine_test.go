package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/drummonds/pagepack/config"
	"github.com/drummonds/pagepack/database"
	"github.com/drummonds/pagepack/engine/batch"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

// fakeRenderer renders any %PDF- payload as two pages
type fakeRenderer struct{}

func (fakeRenderer) RenderPDF(ctx context.Context, data []byte) ([]image.Image, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, errors.New("not a pdf")
	}
	return []image.Image{
		imaging.New(40, 60, color.White),
		imaging.New(40, 60, color.Black),
	}, nil
}

func (fakeRenderer) Name() string { return "fake" }
func (fakeRenderer) Close() error { return nil }

type upload struct {
	name    string
	content []byte
}

func setupTestHandler(t *testing.T) (*echo.Echo, *ServerHandler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	Logger = logger
	database.Logger = logger

	serverConfig := config.ServerConfig{
		DatabaseType:          "sqlite",
		DatabaseDbname:        filepath.Join(t.TempDir(), "engine_test.sqlite"),
		PDFRenderer:           "pdfium",
		RenderDPI:             300,
		MaxUploadMB:           16,
		HistoryRetentionHours: 168,
		HistoryPruneInterval:  60,
		ArchiveName:           "processed_files.zip",
		FrontEndConfig: config.FrontEndConfig{
			DefaultStartNumber:  1001,
			DefaultOutputFormat: "jpeg",
			DefaultJPEGQuality:  95,
		},
	}
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := echo.New()
	e.HideBanner = true
	serverHandler := NewServerHandler(db, e, serverConfig, fakeRenderer{})
	serverHandler.AddAPIRoutes()
	return e, serverHandler
}

func pngUpload(t *testing.T, name string, w, h int) upload {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255}), imaging.PNG); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return upload{name: name, content: buf.Bytes()}
}

func pdfUpload(name string) upload {
	return upload{name: name, content: []byte("%PDF-1.4 fake")}
}

func newBatchRequest(t *testing.T, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(f.content)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/batch", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Response is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestProcessBatchZip(t *testing.T) {
	e, serverHandler := setupTestHandler(t)

	files := []upload{
		pngUpload(t, "a.png", 100, 50),
		pdfUpload("doc.pdf"),
		{name: "broken.jpg", content: []byte("not an image")},
	}
	req := newBatchRequest(t, files, map[string]string{
		"startNumber": "5",
		"prefix":      "x_",
		"rotation":    "90",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/zip" {
		t.Errorf("Expected application/zip, got %s", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "processed_files.zip") {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	if rec.Header().Get("X-Batch-Outputs") != "3" || rec.Header().Get("X-Batch-Failures") != "1" {
		t.Errorf("Unexpected batch headers outputs=%s failures=%s",
			rec.Header().Get("X-Batch-Outputs"), rec.Header().Get("X-Batch-Failures"))
	}

	names := zipNames(t, rec.Body.Bytes())
	expected := []string{"x_5.jpg", "x_6.jpg", "x_7.jpg"}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected entries %v, got %v", expected, names)
	}

	jobID, err := ulid.Parse(rec.Header().Get("X-Batch-ID"))
	if err != nil {
		t.Fatalf("Invalid X-Batch-ID: %v", err)
	}
	job, err := serverHandler.DB.GetJob(jobID)
	if err != nil {
		t.Fatalf("Batch job not recorded: %v", err)
	}
	if job.Status != database.JobStatusCompleted || job.Progress != 100 {
		t.Errorf("Expected completed job at 100%%, got %s at %d", job.Status, job.Progress)
	}
	if job.Summary == nil || job.Summary.Outputs != 3 || job.Summary.LastNumber != 7 || job.Summary.Renderer != "fake" {
		t.Errorf("Unexpected summary %+v", job.Summary)
	}
}

func TestProcessBatchJSON(t *testing.T) {
	e, _ := setupTestHandler(t)

	files := []upload{pdfUpload("doc.pdf"), pngUpload(t, "a.png", 100, 50)}
	req := newBatchRequest(t, files, map[string]string{
		"response":       "json",
		"format":         "png",
		"rotation":       "0",
		"rotation:a.png": "270",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report BatchReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to parse report: %v", err)
	}
	if report.Empty || len(report.Outputs) != 3 || len(report.Failures) != 0 {
		t.Fatalf("Unexpected report: empty=%v outputs=%d failures=%d", report.Empty, len(report.Outputs), len(report.Failures))
	}
	if report.FirstNumber != 1001 || report.LastNumber != 1003 {
		t.Errorf("Expected 1001..1003, got %d..%d", report.FirstNumber, report.LastNumber)
	}

	first := report.Outputs[0]
	if first.Filename != "1001.png" || first.Provenance != "PDF_doc.pdf_Page_1" {
		t.Errorf("Unexpected first output %+v", first)
	}
	if first.Caption != "1001.png (From: PDF_doc.pdf_Page_1)" {
		t.Errorf("Unexpected caption %q", first.Caption)
	}
	if len(first.Preview) == 0 {
		t.Error("Expected a preview thumbnail")
	}

	last := report.Outputs[2]
	if last.Source != "a.png" || last.Width != 50 || last.Height != 100 {
		t.Errorf("Expected a.png turned to 50x100, got %+v", last)
	}

	names := zipNames(t, report.Archive)
	if len(names) != 3 || names[2] != "1003.png" {
		t.Errorf("Unexpected archive entries %v", names)
	}
}

func TestProcessBatchAllFail(t *testing.T) {
	e, _ := setupTestHandler(t)

	files := []upload{{name: "a.jpg", content: []byte("junk")}, {name: "b.pdf", content: []byte("also junk")}}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, newBatchRequest(t, files, nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var report BatchReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to parse report: %v", err)
	}
	if !report.Empty || len(report.Failures) != 2 {
		t.Errorf("Expected empty report with 2 failures, got %+v", report)
	}
	if report.Failures[0].Name != "a.jpg" || report.Failures[1].Name != "b.pdf" {
		t.Errorf("Failures out of input order: %+v", report.Failures)
	}
}

func TestProcessBatchValidation(t *testing.T) {
	e, _ := setupTestHandler(t)
	good := []upload{pngUpload(t, "a.png", 10, 10)}

	tests := []struct {
		name   string
		files  []upload
		fields map[string]string
	}{
		{"no files", nil, map[string]string{"startNumber": "1"}},
		{"bad rotation", good, map[string]string{"rotation": "45"}},
		{"bad override", good, map[string]string{"rotation:a.png": "12"}},
		{"quality too low", good, map[string]string{"quality": "10"}},
		{"quality not a number", good, map[string]string{"quality": "high"}},
		{"gif output", good, map[string]string{"format": "gif"}},
		{"start zero", good, map[string]string{"startNumber": "0"}},
		{"prefix with slash", good, map[string]string{"prefix": "../x"}},
		{"unknown response", good, map[string]string{"response": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, newBatchRequest(t, tt.files, tt.fields))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(`{"files": []}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestQualityIgnoredForPNG(t *testing.T) {
	settings, err := parseBatchSettings(map[string][]string{
		"format":  {"png"},
		"quality": {"5"},
	}, config.FrontEndConfig{DefaultStartNumber: 1001, DefaultOutputFormat: "jpeg", DefaultJPEGQuality: 95})
	if err != nil {
		t.Fatalf("PNG batches should not validate quality: %v", err)
	}
	if settings.Format != batch.FormatPNG {
		t.Errorf("Expected PNG, got %v", settings.Format)
	}
}

func TestParseBatchSettingsDefaults(t *testing.T) {
	settings, err := parseBatchSettings(map[string][]string{}, config.FrontEndConfig{
		DefaultStartNumber:  42,
		DefaultOutputFormat: "png",
		DefaultJPEGQuality:  80,
	})
	if err != nil {
		t.Fatalf("parseBatchSettings failed: %v", err)
	}
	if settings.StartNumber != 42 || settings.Format != batch.FormatPNG || settings.JPEGQuality != 80 {
		t.Errorf("Defaults not applied: %+v", settings)
	}
	if settings.Rotation != batch.Rotate0 || len(settings.Overrides) != 0 || settings.Prefix != "" {
		t.Errorf("Unexpected rotation or prefix: %+v", settings)
	}
}

func TestParseResponseMode(t *testing.T) {
	tests := []struct {
		value        string
		wantMode     string
		wantPreviews bool
		wantErr      bool
	}{
		{"", "", false, false},
		{"zip", "zip", false, false},
		{"JSON", "json", true, false},
		{"xml", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			settings := batch.DefaultSettings()
			settings.Previews = true
			mode, err := parseResponseMode(map[string][]string{"response": {tt.value}}, &settings)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseResponseMode(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if mode != tt.wantMode || settings.Previews != tt.wantPreviews {
				t.Errorf("parseResponseMode(%q) = %q previews=%v, want %q previews=%v", tt.value, mode, settings.Previews, tt.wantMode, tt.wantPreviews)
			}
		})
	}
}

func TestJobsRoutes(t *testing.T) {
	e, _ := setupTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, newBatchRequest(t, []upload{pdfUpload("doc.pdf")}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Batch failed: %d %s", rec.Code, rec.Body.String())
	}
	batchID := rec.Header().Get("X-Batch-ID")

	t.Run("recent jobs", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=5", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var jobs []database.Job
		if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
			t.Fatal(err)
		}
		if len(jobs) != 1 || jobs[0].ID.String() != batchID {
			t.Errorf("Expected the one batch job, got %+v", jobs)
		}
	})

	t.Run("active jobs empty", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/active", nil))
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("Expected empty list, got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("job by id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+batchID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var job database.Job
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatal(err)
		}
		if job.Summary == nil || job.Summary.Outputs != 2 {
			t.Errorf("Expected summary with 2 outputs, got %+v", job.Summary)
		}
	})

	t.Run("outputs", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+batchID+"/outputs", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var outputs []database.BatchOutput
		if err := json.Unmarshal(rec.Body.Bytes(), &outputs); err != nil {
			t.Fatal(err)
		}
		if len(outputs) != 2 || outputs[1].Provenance != "PDF_doc.pdf_Page_2" || outputs[1].Filename != "1002.jpg" {
			t.Errorf("Unexpected manifest %+v", outputs)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-ulid", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		for _, path := range []string{"/api/jobs/" + ulid.Make().String(), "/api/jobs/" + ulid.Make().String() + "/outputs"} {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusNotFound {
				t.Errorf("%s: expected 404, got %d", path, rec.Code)
			}
		}
	})
}

func TestAboutAndHealth(t *testing.T) {
	e, _ := setupTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/about", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var about map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &about); err != nil {
		t.Fatal(err)
	}
	if about["renderer"] != "fake" || about["databaseType"] != "sqlite" {
		t.Errorf("Unexpected about info %v", about)
	}
	if about["defaultStartNumber"] != float64(1001) {
		t.Errorf("Expected default start 1001, got %v", about["defaultStartNumber"])
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Expected healthy, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestInterruptedJobsAreCancelled(t *testing.T) {
	_, serverHandler := setupTestHandler(t)
	db := serverHandler.DB

	job, err := db.CreateJob(database.JobTypeBatch, "left over")
	if err != nil {
		t.Fatal(err)
	}
	db.UpdateJobStatus(job.ID, database.JobStatusRunning, "processing")

	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("StartupChecks failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != database.JobStatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}
}

func TestPruneJobTracking(t *testing.T) {
	_, serverHandler := setupTestHandler(t)
	db := serverHandler.DB

	job, err := db.CreateJob(database.JobTypeCleanup, "prune")
	if err != nil {
		t.Fatal(err)
	}
	serverHandler.pruneJobFuncWithTracking(job.ID)

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != database.JobStatusCompleted || got.Result != fmt.Sprintf(`{"deleted": %d}`, 0) {
		t.Errorf("Unexpected prune job %s %q", got.Status, got.Result)
	}
}
