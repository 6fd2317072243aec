package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string

	// DatabasePath is the sqlite file holding conversion history.
	DatabasePath string

	// UploadPath is where the web server stages uploaded documents and
	// keeps finished archives for download.
	UploadPath string

	// MaxConcurrentJobs caps how many uploaded documents convert at once.
	MaxConcurrentJobs int

	// WatchPath and WatchInterval drive the scheduled folder pass; an
	// empty WatchPath disables it. WatchOutputPath collects the archives,
	// or leaves them next to their sources when empty.
	WatchPath       string
	WatchOutputPath string
	WatchInterval   int

	ConvertConfig
}

// ConvertConfig stores the conversion defaults applied to every job that
// does not override them.
type ConvertConfig struct {
	Workers      int
	DPI          int
	Format       string
	Quality      int
	SkipChecks   bool
	SkipExisting bool
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
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

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration
	databasePath := filepath.ToSlash(getEnv("DATABASE_PATH", "cbzify.db"))
	databasePathAbs, err := filepath.Abs(databasePath)
	if err != nil {
		logger.Error("Failed creating absolute path for database file", "error", err)
	}
	serverConfigLive.DatabasePath = databasePathAbs

	// Upload staging configuration
	uploadPath := filepath.ToSlash(getEnv("UPLOAD_PATH", "uploads"))
	uploadPathAbs, err := filepath.Abs(uploadPath)
	if err != nil {
		logger.Error("Failed creating absolute path for upload directory", "error", err)
	}
	serverConfigLive.UploadPath = uploadPathAbs
	serverConfigLive.MaxConcurrentJobs = getEnvInt("MAX_CONCURRENT_JOBS", 2)

	// Watch configuration
	watchPath := filepath.ToSlash(getEnv("WATCH_PATH", ""))
	if watchPath != "" {
		watchPathAbs, err := filepath.Abs(watchPath)
		if err != nil {
			logger.Error("Failed creating absolute path for watch directory", "error", err)
		}
		serverConfigLive.WatchPath = watchPathAbs
	}
	watchOutputPath := filepath.ToSlash(getEnv("WATCH_OUTPUT_PATH", ""))
	if watchOutputPath != "" {
		watchOutputPathAbs, err := filepath.Abs(watchOutputPath)
		if err != nil {
			logger.Error("Failed creating absolute path for watch output directory", "error", err)
		}
		serverConfigLive.WatchOutputPath = watchOutputPathAbs
	}
	serverConfigLive.WatchInterval = getEnvInt("WATCH_INTERVAL", 10)

	// Conversion defaults
	serverConfigLive.ConvertConfig = loadConvertConfig()
	if err := serverConfigLive.ConvertConfig.Validate(); err != nil {
		logger.Error("Invalid conversion configuration, falling back to defaults", "error", err)
		serverConfigLive.ConvertConfig = defaultConvertConfig()
	}

	logger.Info("Configuration loaded",
		"port", serverConfigLive.ListenAddrPort,
		"database", serverConfigLive.DatabasePath,
		"uploads", serverConfigLive.UploadPath,
		"workers", serverConfigLive.Workers,
		"format", serverConfigLive.Format)

	return serverConfigLive, logger
}

func defaultConvertConfig() ConvertConfig {
	return ConvertConfig{
		Workers: 4,
		DPI:     300,
		Format:  "jpg",
		Quality: 95,
	}
}

func loadConvertConfig() ConvertConfig {
	return ConvertConfig{
		Workers:      getEnvInt("CONVERT_WORKERS", 4),
		DPI:          getEnvInt("CONVERT_DPI", 300),
		Format:       getEnv("CONVERT_FORMAT", "jpg"),
		Quality:      getEnvInt("CONVERT_QUALITY", 95),
		SkipChecks:   getEnvBool("CONVERT_SKIP_CHECKS", false),
		SkipExisting: getEnvBool("CONVERT_SKIP_EXISTING", true),
	}
}

// Validate rejects settings outside their workable ranges rather than
// clamping them silently.
func (c ConvertConfig) Validate() error {
	if c.Workers < 1 || c.Workers > 16 {
		return fmt.Errorf("workers must be in [1, 16], got %d", c.Workers)
	}
	if c.DPI < 50 || c.DPI > 600 {
		return fmt.Errorf("dpi must be in [50, 600], got %d", c.DPI)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be in [1, 100], got %d", c.Quality)
	}
	switch c.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("format must be one of jpg, png, webp, got %q", c.Format)
	}
	return nil
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

	logOutput := getEnv("LOG_OUTPUT", "stderr")
	var logWriter io.Writer

	switch logOutput {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "cbzify.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stderr
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stderr
			} else {
				logWriter = logFile
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
