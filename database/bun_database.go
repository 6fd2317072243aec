package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// BunDB implements Repository using Bun ORM over sqlite
type BunDB struct {
	db *bun.DB
}

// NewRepository opens (creating if necessary) the sqlite history database
// at path and runs migrations.
func NewRepository(path string) (*BunDB, error) {
	connectionString := fmt.Sprintf("file:%s?cache=shared&mode=rwc", path)
	sqlDB, err := sql.Open(sqliteshim.ShimName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	// Option to turn on verbose logging just returns failures otherwise
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(false)))

	b := &BunDB{db: db}
	if err := b.runMigrations(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	Logger.Info("Connected to history database", "path", path)
	return b, nil
}

func (b *BunDB) runMigrations(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*BunConversion)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create conversions table: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (b *BunDB) Close() error {
	return b.db.Close()
}

// CreateConversion records a new pending conversion
func (b *BunDB) CreateConversion(sourceName, sourcePath string) (*Conversion, error) {
	ctx := context.Background()
	now := time.Now()
	id, err := CalculateUUID(now)
	if err != nil {
		return nil, err
	}

	conv := &Conversion{
		ID:         id,
		SourceName: sourceName,
		SourcePath: sourcePath,
		Status:     StatusPending,
		Stage:      "pending",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = b.db.NewInsert().
		Model(FromConversion(conv)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return conv, nil
}

// UpdateConversionProgress updates stage and page counters
func (b *BunDB) UpdateConversionProgress(id ulid.ULID, stage string, current, total int) error {
	ctx := context.Background()

	_, err := b.db.NewUpdate().
		Model((*BunConversion)(nil)).
		Set("status = ?", StatusRunning).
		Set("stage = ?", stage).
		Set("current_page = ?", current).
		Set("total_pages = ?", total).
		Set("updated_at = ?", time.Now()).
		Where("ulid = ?", id.String()).
		Exec(ctx)

	return err
}

// UpdateConversionStrategy records the classifier decision
func (b *BunDB) UpdateConversionStrategy(id ulid.ULID, strategy string) error {
	ctx := context.Background()

	_, err := b.db.NewUpdate().
		Model((*BunConversion)(nil)).
		Set("strategy = ?", strategy).
		Set("updated_at = ?", time.Now()).
		Where("ulid = ?", id.String()).
		Exec(ctx)

	return err
}

// CompleteConversion marks a conversion as finished
func (b *BunDB) CompleteConversion(id ulid.ULID, archivePath string, archiveBytes int64, failedPages int) error {
	ctx := context.Background()
	now := time.Now()

	_, err := b.db.NewUpdate().
		Model((*BunConversion)(nil)).
		Set("status = ?", StatusCompleted).
		Set("stage = ?", "done").
		Set("archive_path = ?", archivePath).
		Set("archive_bytes = ?", archiveBytes).
		Set("failed_pages = ?", failedPages).
		Set("updated_at = ?", now).
		Set("completed_at = ?", now).
		Where("ulid = ?", id.String()).
		Exec(ctx)

	return err
}

// FailConversion marks a conversion as failed with an error message
func (b *BunDB) FailConversion(id ulid.ULID, errorMsg string) error {
	ctx := context.Background()
	now := time.Now()

	_, err := b.db.NewUpdate().
		Model((*BunConversion)(nil)).
		Set("status = ?", StatusFailed).
		Set("stage = ?", "failed").
		Set("error = ?", errorMsg).
		Set("updated_at = ?", now).
		Set("completed_at = ?", now).
		Where("ulid = ?", id.String()).
		Exec(ctx)

	return err
}

// GetConversion retrieves a conversion by ID
func (b *BunDB) GetConversion(id ulid.ULID) (*Conversion, error) {
	ctx := context.Background()
	bunConv := new(BunConversion)

	err := b.db.NewSelect().
		Model(bunConv).
		Where("ulid = ?", id.String()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return bunConv.ToConversion()
}

// GetRecentConversions retrieves the newest conversions
func (b *BunDB) GetRecentConversions(limit int) ([]Conversion, error) {
	ctx := context.Background()
	var bunConvs []BunConversion

	err := b.db.NewSelect().
		Model(&bunConvs).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	conversions := make([]Conversion, 0, len(bunConvs))
	for _, bc := range bunConvs {
		conv, err := bc.ToConversion()
		if err != nil {
			Logger.Warn("Skipping history row with bad id", "ulid", bc.ULID, "error", err)
			continue
		}
		conversions = append(conversions, *conv)
	}
	return conversions, nil
}
