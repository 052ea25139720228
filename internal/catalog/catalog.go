// Package catalog records which documents each tenant has ingested.
//
// The vector store holds chunk rows; the catalog holds one row per document
// so filename uniqueness is enforced by a database constraint instead of a
// racy search. Ingestion claims a filename first (status pending), writes
// vectors, then commits the claim (status ready). Only ready documents are
// listed or searchable.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 1000

// Sentinel errors.
var (
	// ErrDocumentExists is returned by Claim when the filename is taken.
	ErrDocumentExists = fmt.Errorf("document %w", errdefs.ErrAlreadyExists)

	// ErrDocumentNotFound is returned when no matching catalog row exists.
	ErrDocumentNotFound = fmt.Errorf("document %w", errdefs.ErrNotFound)
)

// Status is a document's ingestion state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
)

// Document is one catalog row.
type Document struct {
	ID        uint      `gorm:"primaryKey"`
	Tenant    string    `gorm:"size:128;not null;uniqueIndex:idx_tenant_filename"`
	Filename  string    `gorm:"size:255;not null;uniqueIndex:idx_tenant_filename"`
	Status    Status    `gorm:"size:16;not null;index"`
	Pages     int       `gorm:"not null;default:0"`
	Chunks    int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Config configures the catalog database.
type Config struct {
	// Path is the sqlite file. ":memory:" keeps the catalog in memory.
	Path string

	// ListLimit caps List results. Default: 1000
	ListLimit int
}

// Catalog is a gorm-backed document catalog.
type Catalog struct {
	db        *gorm.DB
	listLimit int
	logger    *zap.Logger
}

// Open opens (creating if needed) the catalog database and migrates it.
func Open(cfg Config, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, errdefs.InvalidInput("catalog path is required")
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("catalog connection pool: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases from being recreated per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Document{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating catalog: %w", err)
	}

	logger.Info("catalog opened", zap.String("path", cfg.Path))
	return &Catalog{db: db, listLimit: cfg.ListLimit, logger: logger}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (c *Catalog) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errdefs.Upstream("catalog ping", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func dbError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDocumentNotFound
	}
	return fmt.Errorf("catalog %s: %w: %w", op, errdefs.ErrInternal, err)
}

func scope(tenant, filename string) (string, []any) {
	return "tenant = ? AND filename = ?", []any{tenant, filename}
}

// Claim reserves filename for tenant with a pending row. The first caller
// wins; later callers get ErrDocumentExists until the claim is released or
// the document removed.
func (c *Catalog) Claim(ctx context.Context, tenant, filename string) error {
	doc := Document{Tenant: tenant, Filename: filename, Status: StatusPending}
	if err := c.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrDocumentExists, filename)
		}
		return dbError("claim", err)
	}
	return nil
}

// Commit marks a claimed document ready and records its size.
func (c *Catalog) Commit(ctx context.Context, tenant, filename string, pages, chunks int) error {
	where, args := scope(tenant, filename)
	res := c.db.WithContext(ctx).
		Model(&Document{}).
		Where(where, args...).
		Where("status = ?", StatusPending).
		Updates(map[string]any{
			"status": StatusReady,
			"pages":  pages,
			"chunks": chunks,
		})
	if res.Error != nil {
		return dbError("commit", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: no pending claim for %s", ErrDocumentNotFound, filename)
	}
	return nil
}

// Release drops a pending claim. Releasing a missing or committed document
// is a no-op.
func (c *Catalog) Release(ctx context.Context, tenant, filename string) error {
	where, args := scope(tenant, filename)
	err := c.db.WithContext(ctx).
		Where(where, args...).
		Where("status = ?", StatusPending).
		Delete(&Document{}).Error
	if err != nil {
		return dbError("release", err)
	}
	return nil
}

// Exists reports whether filename is claimed or ready for tenant.
func (c *Catalog) Exists(ctx context.Context, tenant, filename string) (bool, error) {
	var n int64
	where, args := scope(tenant, filename)
	if err := c.db.WithContext(ctx).Model(&Document{}).Where(where, args...).Count(&n).Error; err != nil {
		return false, dbError("exists", err)
	}
	return n > 0, nil
}

// Get returns the catalog row for filename.
func (c *Catalog) Get(ctx context.Context, tenant, filename string) (*Document, error) {
	var doc Document
	where, args := scope(tenant, filename)
	if err := c.db.WithContext(ctx).Where(where, args...).First(&doc).Error; err != nil {
		return nil, dbError("get", err)
	}
	return &doc, nil
}

// List returns up to limit ready filenames in ascending order. A limit of
// zero or less uses the configured default.
func (c *Catalog) List(ctx context.Context, tenant string, limit int) ([]string, error) {
	if limit <= 0 || limit > c.listLimit {
		limit = c.listLimit
	}
	return c.filenames(ctx, tenant, StatusReady, limit)
}

// Ready returns every ready filename of tenant.
func (c *Catalog) Ready(ctx context.Context, tenant string) ([]string, error) {
	return c.filenames(ctx, tenant, StatusReady, -1)
}

// Pending returns the filenames of in-flight ingests.
func (c *Catalog) Pending(ctx context.Context, tenant string) ([]string, error) {
	return c.filenames(ctx, tenant, StatusPending, -1)
}

func (c *Catalog) filenames(ctx context.Context, tenant string, status Status, limit int) ([]string, error) {
	names := []string{}
	err := c.db.WithContext(ctx).
		Model(&Document{}).
		Where("tenant = ? AND status = ?", tenant, status).
		Order("filename asc").
		Limit(limit).
		Pluck("filename", &names).Error
	if err != nil {
		return nil, dbError("list", err)
	}
	return names, nil
}

// Remove deletes the catalog row for filename regardless of status and
// reports whether one existed.
func (c *Catalog) Remove(ctx context.Context, tenant, filename string) (bool, error) {
	where, args := scope(tenant, filename)
	res := c.db.WithContext(ctx).Where(where, args...).Delete(&Document{})
	if res.Error != nil {
		return false, dbError("remove", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RemoveTenant deletes every catalog row of tenant and returns the count.
func (c *Catalog) RemoveTenant(ctx context.Context, tenant string) (int, error) {
	res := c.db.WithContext(ctx).Where("tenant = ?", tenant).Delete(&Document{})
	if res.Error != nil {
		return 0, dbError("remove tenant", res.Error)
	}
	if res.RowsAffected > 0 {
		c.logger.Info("removed tenant documents from catalog",
			zap.String("tenant", tenant),
			zap.Int64("documents", res.RowsAffected),
		)
	}
	return int(res.RowsAffected), nil
}
