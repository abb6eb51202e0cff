package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/drummonds/pagepack/config"
	"github.com/drummonds/pagepack/database"
	"github.com/drummonds/pagepack/engine/batch"
	"github.com/drummonds/pagepack/engine/pdfrenderer"
	"github.com/drummonds/pagepack/internal/build"
	"github.com/labstack/echo/v4"
)

// PreviewSize bounds the thumbnails returned in JSON batch reports
const PreviewSize = 256

// AcceptedTypes are the extensions offered by the upload form
var AcceptedTypes = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tif", ".tiff", ".pdf"}

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Pipeline     *batch.Pipeline
	Renderer     pdfrenderer.Renderer
}

// NewServerHandler wires a batch pipeline to the PDF renderer. renderer may be
// nil, in which case every PDF in a batch is recorded as a failure.
func NewServerHandler(db database.Repository, e *echo.Echo, serverConfig config.ServerConfig, renderer pdfrenderer.Renderer) *ServerHandler {
	var rasterizer batch.Rasterizer
	if renderer != nil {
		rasterizer = renderer
	}
	return &ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Renderer:     renderer,
		Pipeline: batch.New(batch.Config{
			Rasterizer:  rasterizer,
			Logger:      Logger,
			PreviewSize: PreviewSize,
		}),
	}
}

// AddAPIRoutes registers every JSON and archive endpoint, all under /api/*
func (serverHandler *ServerHandler) AddAPIRoutes() {
	e := serverHandler.Echo

	// Batch processing
	e.POST("/api/batch", serverHandler.ProcessBatch)

	// Job tracking API routes
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)
	e.GET("/api/jobs/:id/outputs", serverHandler.GetBatchOutputs)

	// Admin API routes
	e.POST("/api/history/prune", serverHandler.PruneHistoryNow)
	e.GET("/api/about", serverHandler.GetAboutInfo)
	e.GET("/api/health", serverHandler.Health)
}

func (serverHandler *ServerHandler) rendererName() string {
	if serverHandler.Renderer == nil {
		return "none"
	}
	return serverHandler.Renderer.Name()
}

// GetAboutInfo returns information about the application configuration
// @Summary Get application information
// @Description Retrieve version, renderer, database and form defaults
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Application information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	cfg := serverHandler.ServerConfig

	aboutInfo := map[string]interface{}{
		"version":               build.Version,
		"renderer":              serverHandler.rendererName(),
		"renderDPI":             cfg.RenderDPI,
		"databaseType":          cfg.DatabaseType,
		"databaseHost":          cfg.DatabaseHost,
		"databasePort":          cfg.DatabasePort,
		"databaseName":          cfg.DatabaseDbname,
		"defaultStartNumber":    cfg.DefaultStartNumber,
		"defaultOutputFormat":   cfg.DefaultOutputFormat,
		"defaultJPEGQuality":    cfg.DefaultJPEGQuality,
		"maxUploadMB":           cfg.MaxUploadMB,
		"archiveName":           cfg.ArchiveName,
		"historyRetentionHours": cfg.HistoryRetentionHours,
		"acceptedTypes":         AcceptedTypes,
	}

	return c.JSON(http.StatusOK, aboutInfo)
}

// Health reports whether the database and the PDF renderer are reachable
// @Summary Health check
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "All dependencies reachable"
// @Failure 503 {object} map[string]interface{} "A dependency is down"
// @Router /health [get]
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	status := http.StatusOK
	checks := map[string]string{}

	if err := serverHandler.DB.Ping(); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	checks["renderer"] = "ok"
	if pinger, ok := serverHandler.Renderer.(pdfrenderer.Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			checks["renderer"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	} else if serverHandler.Renderer == nil {
		checks["renderer"] = "not configured"
	}

	label := "ok"
	if status != http.StatusOK {
		label = "degraded"
	}
	return c.JSON(status, map[string]interface{}{
		"status": label,
		"checks": checks,
	})
}
