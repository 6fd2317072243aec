package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/cbzify/cbzify/config"
	"github.com/cbzify/cbzify/database"
	"github.com/cbzify/cbzify/engine"
	"github.com/cbzify/cbzify/engine/document"
	"github.com/cbzify/cbzify/web"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = logger
	database.Logger = logger
	document.Logger = logger
	engine.Logger = logger
	web.Logger = logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	if err := os.MkdirAll(serverConfig.UploadPath, os.ModePerm); err != nil {
		Logger.Error("Unable to create upload directory", "path", serverConfig.UploadPath, "error", err)
		os.Exit(1)
	}

	Logger.Info("Setting up history database", "path", serverConfig.DatabasePath)
	db, err := database.NewRepository(serverConfig.DatabasePath)
	if err != nil {
		Logger.Error("Failed to open history database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			Logger.Debug("request", "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	serverHandler := web.NewServerHandler(db, e, serverConfig)
	serverHandler.SetupRoutes()

	if serverConfig.WatchPath != "" {
		opts := engine.Options{
			Workers:      serverConfig.Workers,
			DPI:          serverConfig.DPI,
			Quality:      serverConfig.Quality,
			SkipChecks:   serverConfig.SkipChecks,
			SkipExisting: serverConfig.SkipExisting,
		}
		if format, err := engine.ParseFormat(serverConfig.Format); err == nil {
			opts.Format = format
		}
		if _, err := engine.WatchFolder(context.Background(), serverConfig.WatchPath, serverConfig.WatchOutputPath, serverConfig.WatchInterval, opts); err != nil {
			Logger.Error("Failed to start folder watcher", "error", err)
		}
	}

	listenAddr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting web server", "addr", listenAddr)
	if err := e.Start(listenAddr); err != nil {
		Logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
