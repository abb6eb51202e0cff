package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/pagepack/config"
	"github.com/drummonds/pagepack/database"
	"github.com/drummonds/pagepack/engine"
	"github.com/drummonds/pagepack/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
}

// @title pagepack Backend API
// @version 1.0
// @description Batch renaming, rotation and re-encoding of images and PDF pages
// @description Every image and every PDF page becomes one consecutively numbered file in a zip archive

// @contact.name API Support
// @contact.url https://github.com/drummonds/pagepack

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @tag.name Batch
// @tag.description Batch processing

// @tag.name Jobs
// @tag.description Job history and output manifests

// @tag.name Admin
// @tag.description Application information and history cleanup

// @tag.name Health
// @tag.description Service health check

func main() {
	port := flag.String("port", "", "Port to run backend server on (overrides LISTEN_PORT)")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("🔧  pagepack Backend API Server")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("• API-only mode (no frontend)")
	fmt.Println("• All endpoints under /api/*")
	fmt.Println("• CORS enabled for frontend access")
	fmt.Println(strings.Repeat("=", 50) + "\n")

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	if *port != "" {
		serverConfig.ListenAddrPort = *port
	}
	if err := serverConfig.Validate(); err != nil {
		Logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if serverConfig.DatabaseType == "ephemeral" {
		fmt.Println("🚀  EPHEMERAL DATABASE MODE")
		fmt.Println("• Job history is destroyed on exit")
		fmt.Println()
	}

	repo, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Database setup failed", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	renderer, err := pdfrenderer.NewRenderer(pdfrenderer.Options{
		Backend:    serverConfig.PDFRenderer,
		DPI:        serverConfig.RenderDPI,
		ServiceURL: serverConfig.PDFServiceURL,
	})
	if err != nil {
		Logger.Warn("PDF renderer unavailable, PDFs will be reported as failures", "error", err)
		renderer = nil
	} else {
		defer renderer.Close()
	}

	e := echo.New()
	e.HideBanner = true

	// Every unknown path is an API path here
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusNotFound {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.Recover())
	// CORS configuration - allow frontend from different origin
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"}, // In production, specify your frontend URL
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		ExposeHeaders: []string{echo.HeaderContentDisposition, "X-Batch-ID", "X-Batch-Outputs", "X-Batch-Failures"},
	}))
	e.Use(middleware.BodyLimit(serverConfig.MaxUploadLimit()))

	// Request logging
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	serverHandler := engine.NewServerHandler(repo, e, serverConfig, renderer)
	if err := serverHandler.StartupChecks(); err != nil {
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	scheduler := serverHandler.InitializeSchedules()
	defer scheduler.Stop()

	serverHandler.AddAPIRoutes()

	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting Backend API Server", "address", addr)
	fmt.Printf("\n✅  Backend API Server running on %s\n", addr)
	fmt.Printf("📡  API endpoints available at http://%s/api/\n", addr)
	fmt.Printf("🏥  Health check: http://%s/api/health\n\n", addr)

	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
