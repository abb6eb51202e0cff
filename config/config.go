package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	PDFRenderer      string // pdfium, fitz or remote
	PDFServiceURL    string
	RenderDPI        int
	MaxUploadMB      int
	// finished batches older than this are pruned from the history
	HistoryRetentionHours int
	HistoryPruneInterval  int // minutes
	ArchiveName           string
	FrontEndConfig
}

// FrontEndConfig stores the settings the UI needs, the form defaults mostly
type FrontEndConfig struct {
	ServerAPIURL        string
	DefaultStartNumber  int
	DefaultOutputFormat string
	DefaultJPEGQuality  int
}

// HistoryRetention returns the pruning age as a duration
func (c ServerConfig) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionHours) * time.Hour
}

// MaxUploadLimit is the request body limit handed to echo, e.g. "64M"
func (c ServerConfig) MaxUploadLimit() string {
	return fmt.Sprintf("%dM", c.MaxUploadMB)
}

// Validate reports settings the server cannot start with
func (c ServerConfig) Validate() error {
	switch c.PDFRenderer {
	case "pdfium", "fitz", "remote":
	default:
		return fmt.Errorf("PDF_RENDERER must be pdfium, fitz or remote, got %q", c.PDFRenderer)
	}
	if c.PDFRenderer == "remote" && c.PDFServiceURL == "" {
		return fmt.Errorf("PDF_SERVICE_URL is required for the remote renderer")
	}
	if c.RenderDPI < 36 || c.RenderDPI > 1200 {
		return fmt.Errorf("RENDER_DPI must be between 36 and 1200, got %d", c.RenderDPI)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return c.FrontEndConfig.Validate()
}

// Validate checks the form defaults
func (f FrontEndConfig) Validate() error {
	if f.DefaultStartNumber < 1 {
		return fmt.Errorf("DEFAULT_START_NUMBER must be at least 1, got %d", f.DefaultStartNumber)
	}
	switch f.DefaultOutputFormat {
	case "jpeg", "png":
	default:
		return fmt.Errorf("DEFAULT_OUTPUT_FORMAT must be jpeg or png, got %q", f.DefaultOutputFormat)
	}
	if f.DefaultJPEGQuality < 50 || f.DefaultJPEGQuality > 100 {
		return fmt.Errorf("DEFAULT_JPEG_QUALITY must be between 50 and 100, got %d", f.DefaultJPEGQuality)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// loadFrontEnd reads the form defaults shared by the server and the UI-only binary
func loadFrontEnd(defaultAPIURL string) FrontEndConfig {
	format := strings.ToLower(getEnv("DEFAULT_OUTPUT_FORMAT", "jpeg"))
	if format == "jpg" {
		format = "jpeg"
	}
	return FrontEndConfig{
		ServerAPIURL:        getEnv("SERVER_API_URL", defaultAPIURL),
		DefaultStartNumber:  getEnvInt("DEFAULT_START_NUMBER", 1001),
		DefaultOutputFormat: format,
		DefaultJPEGQuality:  getEnvInt("DEFAULT_JPEG_QUALITY", 95),
	}
}

// LoadServerConfig builds a ServerConfig from the environment
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{}

	// Server configuration
	cfg.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	cfg.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	cfg.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	cfg.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	cfg.DatabasePort = getEnv("DATABASE_PORT", "5432")
	cfg.DatabaseUser = getEnv("DATABASE_USER", "pagepack")
	cfg.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	defaultDbname := "pagepack"
	if cfg.DatabaseType == "sqlite" {
		defaultDbname = filepath.ToSlash(filepath.Join("databases", "pagepack.sqlite"))
	}
	cfg.DatabaseDbname = getEnv("DATABASE_NAME", defaultDbname)
	cfg.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	// Rendering
	cfg.PDFRenderer = strings.ToLower(getEnv("PDF_RENDERER", "pdfium"))
	cfg.PDFServiceURL = getEnv("PDF_SERVICE_URL", "http://localhost:8002")
	cfg.RenderDPI = getEnvInt("RENDER_DPI", 300)

	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", 64)
	cfg.HistoryRetentionHours = getEnvInt("HISTORY_RETENTION_HOURS", 168)
	cfg.HistoryPruneInterval = getEnvInt("HISTORY_PRUNE_INTERVAL", 60)
	cfg.ArchiveName = getEnv("ARCHIVE_NAME", "processed_files.zip")

	cfg.FrontEndConfig = loadFrontEnd("")
	return cfg
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfigLive := LoadServerConfig()
	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)
	logger.Info("Renderer configuration loaded",
		"renderer", serverConfigLive.PDFRenderer,
		"dpi", serverConfigLive.RenderDPI)

	fmt.Println("\n========================================")
	fmt.Println("   pagepack - image and PDF batch renamer")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	if getEnv("LOG_OUTPUT", "file") != "stdout" {
		fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pagepack.log"))
	}
	fmt.Println("Initializing...")

	return serverConfigLive, logger
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := loadFrontEnd("http://localhost:8000")

	logger.Info("Frontend configuration loaded",
		"apiURL", frontendConfig.ServerAPIURL,
		"startNumber", frontendConfig.DefaultStartNumber,
		"format", frontendConfig.DefaultOutputFormat)

	return frontendConfig, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pagepack.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
