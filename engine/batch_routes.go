package engine

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/drummonds/pagepack/config"
	"github.com/drummonds/pagepack/database"
	"github.com/drummonds/pagepack/engine/batch"
	"github.com/labstack/echo/v4"
)

// rotationOverridePrefix marks per-file rotation fields, e.g. "rotation:scan.pdf"
const rotationOverridePrefix = "rotation:"

// BatchOutputReport describes one archive entry
type BatchOutputReport struct {
	Filename   string `json:"filename"`
	Sequence   int    `json:"sequence"`
	Provenance string `json:"provenance"`
	Source     string `json:"source"`
	Caption    string `json:"caption"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int    `json:"bytes"`
	Preview    []byte `json:"preview,omitempty"` // JPEG thumbnail, base64 in JSON
}

// BatchReport is the JSON form of a batch result
type BatchReport struct {
	BatchID     string              `json:"batchId"`
	Inputs      int                 `json:"inputs"`
	Outputs     []BatchOutputReport `json:"outputs"`
	Failures    []batch.Failure     `json:"failures"`
	Empty       bool                `json:"empty"`
	FirstNumber int                 `json:"firstNumber,omitempty"`
	LastNumber  int                 `json:"lastNumber,omitempty"`
	ArchiveName string              `json:"archiveName"`
	Archive     []byte              `json:"archive,omitempty"` // zip, base64 in JSON
}

func newBatchReport(batchID string, archiveName string, result *batch.Result) BatchReport {
	report := BatchReport{
		BatchID:     batchID,
		Inputs:      result.Inputs,
		Outputs:     make([]BatchOutputReport, 0, len(result.Outputs)),
		Failures:    result.Failures,
		Empty:       result.Empty(),
		FirstNumber: result.FirstNumber(),
		LastNumber:  result.LastNumber(),
		ArchiveName: archiveName,
	}
	if report.Failures == nil {
		report.Failures = []batch.Failure{}
	}
	for _, o := range result.Outputs {
		report.Outputs = append(report.Outputs, BatchOutputReport{
			Filename:   o.Filename,
			Sequence:   o.Sequence,
			Provenance: o.Provenance,
			Source:     o.Source,
			Caption:    o.Caption(),
			Width:      o.Width,
			Height:     o.Height,
			Bytes:      len(o.Payload),
			Preview:    o.Preview,
		})
	}
	return report
}

// ProcessBatch renames, rotates and re-encodes an ordered upload of images and PDFs
// @Summary Process a batch of images and PDFs
// @Description Every image and every PDF page becomes {prefix}{number}{ext} in a zip archive
// @Tags Batch
// @Accept multipart/form-data
// @Produce application/zip
// @Produce json
// @Param files formData file true "Files in processing order (repeat the field)"
// @Param startNumber formData int false "First sequence number (default 1001)"
// @Param rotation formData int false "Clockwise rotation applied to every file: 0, 90, 180 or 270"
// @Param format formData string false "jpeg or png"
// @Param quality formData int false "JPEG quality 50-100"
// @Param prefix formData string false "Filename prefix"
// @Param response formData string false "zip (default) or json"
// @Success 200 {file} file "Zip archive"
// @Failure 400 {object} map[string]interface{} "Invalid settings or no files"
// @Failure 422 {object} BatchReport "No file could be processed"
// @Router /batch [post]
func (serverHandler *ServerHandler) ProcessBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Expected a multipart form upload",
		})
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "No files uploaded",
		})
	}

	settings, err := parseBatchSettings(form.Value, serverHandler.ServerConfig.FrontEndConfig)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	responseMode, err := parseResponseMode(form.Value, &settings)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	files, err := readUploads(headers)
	if err != nil {
		Logger.Error("Unable to read uploaded files", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	job, err := serverHandler.DB.CreateJob(database.JobTypeBatch, fmt.Sprintf("Batch of %d files", len(files)))
	if err != nil {
		Logger.Error("Failed to create batch job", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create job",
		})
	}

	result, err := serverHandler.runBatchWithTracking(c.Request().Context(), job.ID, files, settings)
	if err != nil {
		Logger.Error("Batch aborted", "jobID", job.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":   "Batch aborted",
			"details": err.Error(),
			"batchId": job.ID.String(),
		})
	}

	archiveName := serverHandler.ServerConfig.ArchiveName
	if archiveName == "" {
		archiveName = "processed_files.zip"
	}
	report := newBatchReport(job.ID.String(), archiveName, result)

	if responseMode == "json" {
		report.Archive = result.Archive
		return c.JSON(http.StatusOK, report)
	}

	if result.Empty() {
		return c.JSON(http.StatusUnprocessableEntity, report)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", archiveName))
	header.Set("X-Batch-ID", job.ID.String())
	header.Set("X-Batch-Outputs", strconv.Itoa(len(result.Outputs)))
	header.Set("X-Batch-Failures", strconv.Itoa(len(result.Failures)))
	return c.Blob(http.StatusOK, "application/zip", result.Archive)
}

// parseResponseMode reads the response field and turns previews on for JSON
// reports. A zip download never carries thumbnails.
func parseResponseMode(values map[string][]string, settings *batch.Settings) (string, error) {
	mode := strings.ToLower(formValue(values, "response"))
	if mode != "" && mode != "zip" && mode != "json" {
		return "", fmt.Errorf("response must be zip or json, got %q", mode)
	}
	settings.Previews = mode == "json"
	return mode, nil
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// parseBatchSettings reads the form fields, falling back to the configured defaults
func parseBatchSettings(values map[string][]string, defaults config.FrontEndConfig) (batch.Settings, error) {
	settings := batch.DefaultSettings()
	if defaults.DefaultStartNumber > 0 {
		settings.StartNumber = defaults.DefaultStartNumber
	}
	if defaults.DefaultJPEGQuality > 0 {
		settings.JPEGQuality = defaults.DefaultJPEGQuality
	}
	if defaults.DefaultOutputFormat != "" {
		format, err := batch.ParseOutputFormat(defaults.DefaultOutputFormat)
		if err != nil {
			return settings, err
		}
		settings.Format = format
	}

	if v := formValue(values, "startNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return settings, fmt.Errorf("startNumber must be an integer, got %q", v)
		}
		settings.StartNumber = n
	}

	rotation, err := batch.ParseRotation(formValue(values, "rotation"))
	if err != nil {
		return settings, err
	}
	settings.Rotation = rotation

	for key := range values {
		name, ok := strings.CutPrefix(key, rotationOverridePrefix)
		if !ok || name == "" {
			continue
		}
		r, err := batch.ParseRotation(formValue(values, key))
		if err != nil {
			return settings, fmt.Errorf("%s: %w", name, err)
		}
		if settings.Overrides == nil {
			settings.Overrides = make(map[string]batch.Rotation)
		}
		settings.Overrides[name] = r
	}

	if v := formValue(values, "format"); v != "" {
		format, err := batch.ParseOutputFormat(v)
		if err != nil {
			return settings, err
		}
		settings.Format = format
	}

	if v := formValue(values, "quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return settings, fmt.Errorf("quality must be an integer, got %q", v)
		}
		settings.JPEGQuality = q
	}

	// the prefix is used verbatim, only path separators are refused
	if v, ok := values["prefix"]; ok && len(v) > 0 {
		if strings.ContainsAny(v[0], `/\`) {
			return settings, errors.New("prefix must not contain path separators")
		}
		settings.Prefix = v[0]
	}

	return settings, settings.Validate()
}

// readUploads loads every uploaded part in form order
func readUploads(headers []*multipart.FileHeader) ([]batch.SourceFile, error) {
	files := make([]batch.SourceFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("unable to open upload %s: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to read upload %s: %w", fh.Filename, err)
		}
		files = append(files, batch.NewSourceFile(fh.Filename, fh.Header.Get("Content-Type"), content))
	}
	return files, nil
}
