package database

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ConversionStatus represents the status of a conversion job
type ConversionStatus string

const (
	StatusPending   ConversionStatus = "pending"
	StatusRunning   ConversionStatus = "running"
	StatusCompleted ConversionStatus = "completed"
	StatusFailed    ConversionStatus = "failed"
)

// Conversion is one document-to-CBZ run, persisted so history survives
// restarts and finished archives stay downloadable.
type Conversion struct {
	ID           ulid.ULID        `json:"id"`
	SourceName   string           `json:"sourceName"`
	SourcePath   string           `json:"sourcePath"`
	ArchivePath  string           `json:"archivePath,omitempty"`
	Status       ConversionStatus `json:"status"`
	Stage        string           `json:"stage"`
	CurrentPage  int              `json:"currentPage"`
	TotalPages   int              `json:"totalPages"`
	Strategy     string           `json:"strategy,omitempty"`
	FailedPages  int              `json:"failedPages"`
	Error        string           `json:"error,omitempty"`
	ArchiveBytes int64            `json:"archiveBytes"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

// Repository is the persistence surface the rest of the application
// depends on.
type Repository interface {
	CreateConversion(sourceName, sourcePath string) (*Conversion, error)
	UpdateConversionProgress(id ulid.ULID, stage string, current, total int) error
	UpdateConversionStrategy(id ulid.ULID, strategy string) error
	CompleteConversion(id ulid.ULID, archivePath string, archiveBytes int64, failedPages int) error
	FailConversion(id ulid.ULID, errorMsg string) error
	GetConversion(id ulid.ULID) (*Conversion, error)
	GetRecentConversions(limit int) ([]Conversion, error)
	Close() error
}

// CalculateUUID derives a ULID from a timestamp
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
