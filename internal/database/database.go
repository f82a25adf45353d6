package database

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

type GormDB struct {
	db *gorm.DB
}

// Open connects to the configured database type (mysql, postgres or sqlite)
func Open(cfg config.DatabaseConfig) (*GormDB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	if cfg.LogSQL {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Type {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Database)
		db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	case "postgres", "":
		db, err = openPostgres(cfg.Postgres, gormCfg)
	case "sqlite":
		db, err = openSQLite(cfg.SQLite.Path, gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// single writer
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Property{},
		&models.PropertyImage{},
		&models.PropertySnapshot{},
		&models.PropertyChange{},
		&models.DeleteLog{},
		&models.SyncSchedule{},
		&models.SyncRun{},
		&models.User{},
		&models.Affiliate{},
		&models.Referral{},
		&models.Commission{},
		&models.Payout{},
		&models.Notification{},
		&models.CacheEntry{},
		&models.RateLimitCounter{},
	)
}

// propertyUpdateColumns are overwritten when a synced listing already exists.
// is_published, slug and created_at are owned by the portal once the row exists.
var propertyUpdateColumns = []string{
	"title", "description", "property_type", "purpose", "price", "rent_frequency",
	"bedrooms", "bathrooms", "area_sqft", "location_area", "community",
	"latitude", "longitude", "cover_image_url", "photo_count", "permit_number",
	"agency_name", "furnishing", "is_verified", "status", "removed_at",
	"last_synced_at", "updated_at",
}

// UpsertProperty inserts or updates a listing keyed by (external_id, external_source).
// It returns the row as it was before the write, or nil when the listing is new.
func (gdb *GormDB) UpsertProperty(ctx context.Context, p *models.Property, images []string) (*models.Property, error) {
	prepareProperty(p)

	var previous *models.Property
	err := gdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Property
		result := tx.Where("external_id = ? AND external_source = ?", p.ExternalID, p.ExternalSource).
			First(&existing)

		if result.Error == nil {
			previous = &existing
			p.ID = existing.ID
			p.Slug = existing.Slug
			p.IsPublished = existing.IsPublished
			p.CreatedAt = existing.CreatedAt
		} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}

		// ON CONFLICT keeps overlapping areas and concurrent runs from duplicating rows
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}, {Name: "external_source"}},
			DoUpdates: clause.AssignmentColumns(propertyUpdateColumns),
		}).Create(p).Error; err != nil {
			return err
		}

		return savePropertyImages(tx, p.ID, images)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func prepareProperty(p *models.Property) {
	if p.ID == "" {
		p.ID = PropertyID(p.ExternalSource, p.ExternalID)
	}
	if p.LastSyncedAt.IsZero() {
		p.LastSyncedAt = time.Now().UTC()
	}
	// a listing seen by a sync is live again
	p.Status = models.PropertyStatusActive
	p.RemovedAt = nil
}

// savePropertyImages replaces the photos of a listing.
// An empty list keeps existing rows: list pages often carry only the cover photo.
func savePropertyImages(tx *gorm.DB, propertyID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	if err := tx.Where("property_id = ?", propertyID).Delete(&models.PropertyImage{}).Error; err != nil {
		return err
	}

	images := make([]models.PropertyImage, 0, len(urls))
	for i, u := range urls {
		images = append(images, models.PropertyImage{
			PropertyID: propertyID,
			ImageURL:   u,
			SortOrder:  i,
		})
	}
	return tx.Create(&images).Error
}

// GetPropertyByID retrieves a property by ID
func (gdb *GormDB) GetPropertyByID(id string) (*models.Property, error) {
	var property models.Property
	err := gdb.db.Where("id = ?", id).First(&property).Error
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// GetPropertyImages returns the photos of a listing in display order
func (gdb *GormDB) GetPropertyImages(propertyID string) ([]models.PropertyImage, error) {
	var images []models.PropertyImage
	err := gdb.db.Where("property_id = ?", propertyID).Order("sort_order ASC").Find(&images).Error
	return images, err
}

// MarkStaleAsRemoved flags active listings not seen by a sync since cutoff
func (gdb *GormDB) MarkStaleAsRemoved(source string, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	result := gdb.db.Model(&models.Property{}).
		Where("external_source = ? AND status = ? AND last_synced_at < ?", source, models.PropertyStatusActive, cutoff).
		Updates(map[string]interface{}{
			"status":     models.PropertyStatusRemoved,
			"removed_at": &now,
		})
	return result.RowsAffected, result.Error
}

// PropertyID derives the stable row id of a listing from its source identity
func PropertyID(source, externalID string) string {
	return generateMD5(source + ":" + externalID)
}

// generateMD5 generates MD5 hash for a string
func generateMD5(text string) string {
	hash := md5.Sum([]byte(text))
	return fmt.Sprintf("%x", hash)
}
