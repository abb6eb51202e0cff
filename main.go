package main

import (
	"embed"
	"errors"
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
	"github.com/drummonds/pagepack/webapp"
)

//go:embed webapp/webapp.css
var webappFS embed.FS

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

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	if err := serverConfig.Validate(); err != nil {
		Logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Show info banner if using ephemeral database
	if serverConfig.DatabaseType == "ephemeral" {
		fmt.Println("\n" + strings.Repeat("=", 50))
		fmt.Println("🚀  EPHEMERAL DATABASE MODE")
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println("• Job history is destroyed on exit")
		fmt.Println("• Perfect for testing and development")
		fmt.Println(strings.Repeat("=", 50) + "\n")
	}

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Database setup failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	renderer := newRenderer(serverConfig)
	if renderer != nil {
		defer renderer.Close()
	}

	e, serverHandler := newServer(serverConfig, db, renderer)
	if err := serverHandler.StartupChecks(); err != nil {
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	scheduler := serverHandler.InitializeSchedules()
	defer scheduler.Stop()

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}
	if err := startWithRetry(e, &serverConfig, 5); err != nil {
		Logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}

// newRenderer builds the configured PDF backend. A server without one still
// processes images, so failure is only a warning.
func newRenderer(serverConfig config.ServerConfig) pdfrenderer.Renderer {
	renderer, err := pdfrenderer.NewRenderer(pdfrenderer.Options{
		Backend:    serverConfig.PDFRenderer,
		DPI:        serverConfig.RenderDPI,
		ServiceURL: serverConfig.PDFServiceURL,
	})
	if err != nil {
		Logger.Warn("PDF renderer unavailable, PDFs will be reported as failures",
			"renderer", serverConfig.PDFRenderer, "error", err)
		return nil
	}
	Logger.Info("PDF renderer ready", "renderer", renderer.Name(), "dpi", serverConfig.RenderDPI)
	return renderer
}

// newServer builds the echo instance with the API, the go-app UI and static assets
func newServer(serverConfig config.ServerConfig, db database.Repository, renderer pdfrenderer.Renderer) (*echo.Echo, *engine.ServerHandler) {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = notFoundHandler(e)

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	e.Use(middleware.BodyLimit(serverConfig.MaxUploadLimit()))

	serverHandler := engine.NewServerHandler(db, e, serverConfig, renderer)
	serverHandler.AddAPIRoutes()

	appHandler := webapp.Handler()

	// go-app expects wasm_exec.js at the root; app.wasm is built into web/
	e.File("/wasm_exec.js", "web/wasm_exec.js")
	e.Static("/web", "web")

	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	e.GET("/webapp/webapp.css", func(c echo.Context) error {
		data, err := webappFS.ReadFile("webapp/webapp.css")
		if err != nil {
			return c.String(http.StatusNotFound, "webapp.css not found")
		}
		return c.Blob(http.StatusOK, "text/css", data)
	})

	// Inject backend API URL and form defaults into the page
	e.GET("/config.js", func(c echo.Context) error {
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, webapp.ConfigScript(serverConfig.ServerAPIURL, formDefaults(serverConfig.FrontEndConfig)))
	})

	// Serve go-app handler for all other routes (must be last)
	// The WASM app handles its own client-side routing and 404s via NotFoundPage component
	e.Any("/*", echo.WrapHandler(appHandler))

	return e, serverHandler
}

func formDefaults(f config.FrontEndConfig) webapp.FormDefaults {
	return webapp.FormDefaults{
		StartNumber: f.DefaultStartNumber,
		Format:      f.DefaultOutputFormat,
		Quality:     f.DefaultJPEGQuality,
	}
}

// notFoundHandler answers 404s with JSON under /api/ and a small HTML page elsewhere
func notFoundHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}

		if code != http.StatusNotFound {
			e.DefaultHTTPErrorHandler(err, c)
			return
		}

		if strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		c.HTML(http.StatusNotFound, `<!DOCTYPE html>
<html>
<head><title>404 - Not Found</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
	<h1>404 - Page Not Found</h1>
	<p>The page you're looking for doesn't exist.</p>
	<a href="/" style="color: #3498db; text-decoration: none; font-size: 18px;">← Back to pagepack</a>
</body>
</html>`)
	}
}

// startWithRetry starts the server, moving to the next port while the
// current one is in use
func startWithRetry(e *echo.Echo, serverConfig *config.ServerConfig, maxRetries int) error {
	startPort := serverConfig.ListenAddrPort

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		err := e.Start(addr)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			if serverConfig.ListenAddrPort != startPort {
				Logger.Warn("Server ran on alternative port due to conflicts",
					"requested_port", startPort,
					"actual_port", serverConfig.ListenAddrPort)
			}
			return nil
		}
		if !isAddressInUse(err) {
			return err
		}

		Logger.Warn("Port already in use, trying next port",
			"port", serverConfig.ListenAddrPort,
			"attempt", attempt+1,
			"max_attempts", maxRetries)
		serverConfig.ListenAddrPort = nextPort(serverConfig.ListenAddrPort)
	}

	return fmt.Errorf("no free port between %s and %s after %d attempts", startPort, serverConfig.ListenAddrPort, maxRetries)
}

func nextPort(port string) string {
	portNum := 0
	fmt.Sscanf(port, "%d", &portNum)
	return fmt.Sprintf("%d", portNum+1)
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
