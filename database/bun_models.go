package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunConversion represents the conversions table for Bun ORM
type BunConversion struct {
	bun.BaseModel `bun:"table:conversions,alias:c"`

	ID           int        `bun:"id,pk,autoincrement"`
	ULID         string     `bun:"ulid,notnull,unique"` // Stored as string in DB
	SourceName   string     `bun:"source_name,notnull"`
	SourcePath   string     `bun:"source_path,notnull"`
	ArchivePath  string     `bun:"archive_path,nullzero"`
	Status       string     `bun:"status,notnull"`
	Stage        string     `bun:"stage,notnull,default:'pending'"`
	CurrentPage  int        `bun:"current_page,notnull,default:0"`
	TotalPages   int        `bun:"total_pages,notnull,default:0"`
	Strategy     string     `bun:"strategy,nullzero"`
	FailedPages  int        `bun:"failed_pages,notnull,default:0"`
	Error        string     `bun:"error,nullzero"`
	ArchiveBytes int64      `bun:"archive_bytes,notnull,default:0"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	CompletedAt  *time.Time `bun:"completed_at,nullzero"`
}

// ToConversion converts BunConversion to Conversion
func (bc *BunConversion) ToConversion() (*Conversion, error) {
	parsedULID, err := ulid.Parse(bc.ULID)
	if err != nil {
		return nil, err
	}

	return &Conversion{
		ID:           parsedULID,
		SourceName:   bc.SourceName,
		SourcePath:   bc.SourcePath,
		ArchivePath:  bc.ArchivePath,
		Status:       ConversionStatus(bc.Status),
		Stage:        bc.Stage,
		CurrentPage:  bc.CurrentPage,
		TotalPages:   bc.TotalPages,
		Strategy:     bc.Strategy,
		FailedPages:  bc.FailedPages,
		Error:        bc.Error,
		ArchiveBytes: bc.ArchiveBytes,
		CreatedAt:    bc.CreatedAt,
		UpdatedAt:    bc.UpdatedAt,
		CompletedAt:  bc.CompletedAt,
	}, nil
}

// FromConversion converts Conversion to BunConversion
func FromConversion(conv *Conversion) *BunConversion {
	return &BunConversion{
		ULID:         conv.ID.String(),
		SourceName:   conv.SourceName,
		SourcePath:   conv.SourcePath,
		ArchivePath:  conv.ArchivePath,
		Status:       string(conv.Status),
		Stage:        conv.Stage,
		CurrentPage:  conv.CurrentPage,
		TotalPages:   conv.TotalPages,
		Strategy:     conv.Strategy,
		FailedPages:  conv.FailedPages,
		Error:        conv.Error,
		ArchiveBytes: conv.ArchiveBytes,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		CompletedAt:  conv.CompletedAt,
	}
}
