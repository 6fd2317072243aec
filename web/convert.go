package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cbzify/cbzify/database"
	"github.com/cbzify/cbzify/engine"
)

// UploadDocument accepts a multipart PDF or EPUB, records a pending
// conversion and kicks off the job in the background. The response carries
// the conversion ID for progress polling and download.
func (serverHandler *ServerHandler) UploadDocument(c echo.Context) error {
	file, fileHeader, err := c.Request().FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Missing file upload",
		})
	}
	defer file.Close()

	name := filepath.Base(fileHeader.Filename)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".epub":
	default:
		return c.JSON(http.StatusUnsupportedMediaType, map[string]interface{}{
			"error": "Only PDF and EPUB uploads are supported",
		})
	}

	conversion, err := serverHandler.DB.CreateConversion(name, "")
	if err != nil {
		Logger.Error("Failed to record conversion", "name", name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to record conversion",
		})
	}
	id := conversion.ID.String()

	// Stage the upload under its job ID so concurrent uploads of the same
	// filename never collide.
	jobDir := filepath.Join(serverHandler.ServerConfig.UploadPath, id)
	if err := os.MkdirAll(jobDir, os.ModePerm); err != nil {
		Logger.Error("Unable to create upload directory", "dir", jobDir, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to stage upload",
		})
	}
	sourcePath := filepath.Join(jobDir, name)
	if err := stageUpload(sourcePath, file); err != nil {
		Logger.Error("Unable to write uploaded file", "path", sourcePath, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to stage upload",
		})
	}

	tracker := engine.NewProgressTracker()
	serverHandler.setLiveTracker(id, tracker)
	go serverHandler.runConversion(conversion, sourcePath, tracker)

	return c.JSON(http.StatusAccepted, conversion)
}

// stageUpload streams the upload straight to disk so large documents
// never sit wholly in memory.
func stageUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (serverHandler *ServerHandler) runConversion(conversion *database.Conversion, sourcePath string, tracker *engine.ProgressTracker) {
	id := conversion.ID
	idStr := id.String()
	defer serverHandler.clearLiveTracker(idStr)
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in conversion job", "panic", r, "id", idStr)
			serverHandler.DB.FailConversion(id, fmt.Sprintf("Panic: %v", r))
		}
	}()

	ctx := context.Background()
	if err := serverHandler.sem.Acquire(ctx, 1); err != nil {
		serverHandler.DB.FailConversion(id, err.Error())
		return
	}
	defer serverHandler.sem.Release(1)

	opts := serverHandler.convertOptions()
	dest := engine.DefaultDest(sourcePath)

	if err := serverHandler.DB.UpdateConversionProgress(id, string(engine.StageAnalyzing), 0, 0); err != nil {
		Logger.Error("Failed to update conversion progress", "id", idStr, "error", err)
	}

	result, err := engine.Convert(ctx, sourcePath, dest, opts, tracker)
	if err != nil {
		Logger.Error("Conversion failed", "id", idStr, "source", sourcePath, "error", err)
		serverHandler.DB.FailConversion(id, err.Error())
		return
	}

	if err := serverHandler.DB.UpdateConversionStrategy(id, string(result.Classification.Strategy)); err != nil {
		Logger.Error("Failed to record conversion strategy", "id", idStr, "error", err)
	}
	if err := serverHandler.DB.UpdateConversionProgress(id, string(engine.StageDone), result.TotalPages, result.TotalPages); err != nil {
		Logger.Error("Failed to update conversion progress", "id", idStr, "error", err)
	}
	if err := serverHandler.DB.CompleteConversion(id, dest, result.ArchiveBytes, len(result.FailedPages)); err != nil {
		Logger.Error("Failed to mark conversion complete", "id", idStr, "error", err)
	}

	// The source upload is no longer needed once the archive exists.
	if err := os.Remove(sourcePath); err != nil {
		Logger.Warn("Unable to remove staged upload", "path", sourcePath, "error", err)
	}
}

func (serverHandler *ServerHandler) convertOptions() engine.Options {
	cfg := serverHandler.ServerConfig.ConvertConfig
	format, err := engine.ParseFormat(cfg.Format)
	if err != nil {
		format = engine.FormatJPEG
	}
	return engine.Options{
		Workers:    cfg.Workers,
		DPI:        cfg.DPI,
		Format:     format,
		Quality:    cfg.Quality,
		SkipChecks: cfg.SkipChecks,
	}
}
