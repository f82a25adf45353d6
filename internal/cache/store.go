package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

// DBStore is a RemoteStore backed by the shared database, so every instance sees the same entries
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDBStore creates a database-backed store
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, now: time.Now}
}

func (s *DBStore) Get(ctx context.Context, key string) (string, time.Time, error) {
	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", time.Time{}, ErrMiss
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if entry.Expired(s.now().UTC()) {
		return "", time.Time{}, ErrMiss
	}
	var expiresAt time.Time
	if entry.ExpiresAt != nil {
		expiresAt = *entry.ExpiresAt
	}
	return entry.Value, expiresAt, nil
}

func (s *DBStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := models.CacheEntry{Key: key, Value: value}
	if ttl > 0 {
		expiresAt := s.now().UTC().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).Delete(&models.CacheEntry{}).Error
}

// Incr counts a hit in the current fixed window, starting a new window once the old one ends.
// The insert and the bump are one upsert so concurrent first hits cannot collide on the key.
func (s *DBStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.now().UTC()
	windowEnded := now.Add(-window)
	windowStart := clause.Column{Table: clause.CurrentTable, Name: "window_start"}
	count := clause.Column{Table: clause.CurrentTable, Name: "count"}

	var counter models.RateLimitCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// count is assigned first: mysql evaluates later assignments against updated values
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "count"}, Value: gorm.Expr("CASE WHEN ? <= ? THEN 1 ELSE ? + 1 END", windowStart, windowEnded, count)},
				{Column: clause.Column{Name: "window_start"}, Value: gorm.Expr("CASE WHEN ? <= ? THEN ? ELSE ? END", windowStart, windowEnded, now, windowStart)},
			},
		}).Create(&models.RateLimitCounter{Key: key, WindowStart: now, Count: 1}).Error
		if err != nil {
			return err
		}
		return tx.Where(map[string]interface{}{"key": key}).First(&counter).Error
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return counter.Count, counter.WindowStart.Add(window), nil
}

// PurgeExpired removes expired cache entries
func (s *DBStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}
