package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/pagepack/config"
	"github.com/drummonds/pagepack/webapp"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

func main() {
	port := flag.String("port", "3000", "Port to run frontend server on")
	apiURL := flag.String("api", "", "Backend API URL (overrides config)")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("🎨  pagepack Frontend Server")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("• WASM application server")
	fmt.Println("• Proxies API calls to backend")
	fmt.Println(strings.Repeat("=", 50) + "\n")

	frontendConfig, logger := config.SetupFrontend()
	Logger = logger
	config.Logger = logger

	if *apiURL != "" {
		frontendConfig.ServerAPIURL = *apiURL
	}
	if err := frontendConfig.Validate(); err != nil {
		Logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	backendURL, err := url.Parse(frontendConfig.ServerAPIURL)
	if err != nil || backendURL.Host == "" {
		Logger.Error("Invalid backend API URL", "url", frontendConfig.ServerAPIURL, "error", err)
		os.Exit(1)
	}

	Logger.Info("Frontend server starting",
		"backendAPI", frontendConfig.ServerAPIURL,
		"port", *port)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.CORS())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	appHandler := webapp.Handler()

	e.File("/wasm_exec.js", "web/wasm_exec.js")
	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	e.Static("/web", "web")
	e.File("/webapp/webapp.css", "webapp/webapp.css")

	// The browser talks to this server only; /api/* is proxied below
	defaults := webapp.FormDefaults{
		StartNumber: frontendConfig.DefaultStartNumber,
		Format:      frontendConfig.DefaultOutputFormat,
		Quality:     frontendConfig.DefaultJPEGQuality,
	}
	e.GET("/config.js", func(c echo.Context) error {
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, webapp.ConfigScript("", defaults))
	})

	// API proxy middleware - forward /api/* requests to backend
	e.Group("/api", middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
			{
				URL: backendURL,
			},
		}),
	}))

	// Serve go-app handler for all other routes (must be last)
	e.Any("/*", echo.WrapHandler(appHandler))

	addr := fmt.Sprintf(":%s", *port)
	Logger.Info("Starting Frontend Server", "address", addr, "backendAPI", frontendConfig.ServerAPIURL)
	fmt.Printf("\n✅  Frontend Server running on %s\n", addr)
	fmt.Printf("🎨  Open http://localhost:%s in your browser\n", *port)
	fmt.Printf("📡  API proxied to: %s\n\n", frontendConfig.ServerAPIURL)

	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
