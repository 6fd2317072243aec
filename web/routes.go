package web

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/cbzify/cbzify/config"
	"github.com/cbzify/cbzify/database"
	"github.com/cbzify/cbzify/engine"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig

	// sem caps how many uploads convert at once; further jobs queue in
	// their goroutines until a slot frees.
	sem *semaphore.Weighted

	mu   sync.Mutex
	live map[string]*engine.ProgressTracker
}

// NewServerHandler wires the handler against its database and config.
func NewServerHandler(db database.Repository, e *echo.Echo, serverConfig config.ServerConfig) *ServerHandler {
	maxJobs := serverConfig.MaxConcurrentJobs
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		sem:          semaphore.NewWeighted(int64(maxJobs)),
		live:         make(map[string]*engine.ProgressTracker),
	}
}

// SetupRoutes registers every route on the echo instance
func (serverHandler *ServerHandler) SetupRoutes() {
	serverHandler.Echo.GET("/", serverHandler.Home)
	serverHandler.Echo.POST("/api/convert", serverHandler.UploadDocument)
	serverHandler.Echo.GET("/api/conversions", serverHandler.GetRecentConversions)
	serverHandler.Echo.GET("/api/conversions/:id", serverHandler.GetConversion)
	serverHandler.Echo.GET("/download/:id", serverHandler.DownloadArchive)
}

// Home serves the upload form
func (serverHandler *ServerHandler) Home(c echo.Context) error {
	return c.HTML(http.StatusOK, uploadPageHTML)
}

// GetConversion retrieves one conversion by ID, overlaying the live
// progress snapshot on the stored row while the job is still running.
func (serverHandler *ServerHandler) GetConversion(c echo.Context) error {
	idStr := c.Param("id")

	id, err := ulid.Parse(idStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid conversion ID format",
		})
	}

	conversion, err := serverHandler.DB.GetConversion(id)
	if err != nil {
		Logger.Error("Failed to get conversion", "id", idStr, "error", err)
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Conversion not found",
		})
	}

	if tracker := serverHandler.liveTracker(idStr); tracker != nil {
		snapshot := tracker.Snapshot()
		conversion.Stage = string(snapshot.Stage)
		conversion.CurrentPage = snapshot.Current
		conversion.TotalPages = snapshot.Total
		conversion.FailedPages = len(snapshot.Errors)
	}

	return c.JSON(http.StatusOK, conversion)
}

// GetRecentConversions retrieves recent conversions
func (serverHandler *ServerHandler) GetRecentConversions(c echo.Context) error {
	limit := 20
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	conversions, err := serverHandler.DB.GetRecentConversions(limit)
	if err != nil {
		Logger.Error("Failed to get recent conversions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve conversions",
		})
	}

	if conversions == nil {
		conversions = []database.Conversion{}
	}
	return c.JSON(http.StatusOK, conversions)
}

// DownloadArchive streams a finished CBZ back to the client
func (serverHandler *ServerHandler) DownloadArchive(c echo.Context) error {
	idStr := c.Param("id")

	id, err := ulid.Parse(idStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid conversion ID format",
		})
	}

	conversion, err := serverHandler.DB.GetConversion(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Conversion not found",
		})
	}
	if conversion.Status != database.StatusCompleted || conversion.ArchivePath == "" {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "Conversion has not produced an archive",
		})
	}
	if _, err := os.Stat(conversion.ArchivePath); err != nil {
		Logger.Error("Archive file missing for completed conversion", "id", idStr, "path", conversion.ArchivePath)
		return c.JSON(http.StatusGone, map[string]interface{}{
			"error": "Archive file no longer available",
		})
	}

	return c.Attachment(conversion.ArchivePath, filepath.Base(conversion.ArchivePath))
}

func (serverHandler *ServerHandler) liveTracker(id string) *engine.ProgressTracker {
	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	return serverHandler.live[id]
}

func (serverHandler *ServerHandler) setLiveTracker(id string, tracker *engine.ProgressTracker) {
	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	serverHandler.live[id] = tracker
}

func (serverHandler *ServerHandler) clearLiveTracker(id string) {
	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	delete(serverHandler.live, id)
}

const uploadPageHTML = `<!DOCTYPE html>
<html>
<head>
<title>CBZify</title>
<style>
body { font-family: sans-serif; max-width: 40em; margin: 3em auto; }
form { border: 1px solid #ccc; padding: 2em; border-radius: 6px; }
</style>
</head>
<body>
<h1>CBZify</h1>
<p>Upload a PDF or EPUB comic and download it back as a CBZ archive.</p>
<form action="/api/convert" method="post" enctype="multipart/form-data">
<input type="file" name="file" accept=".pdf,.epub" required>
<button type="submit">Convert</button>
</form>
<p>Poll <code>/api/conversions/{id}</code> for progress, then fetch
<code>/download/{id}</code>.</p>
</body>
</html>
`
