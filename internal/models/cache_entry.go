package models

import "time"

// CacheEntry is a row of the shared cache tier
type CacheEntry struct {
	Key       string     `gorm:"type:varchar(255);primaryKey" json:"key"`
	Value     string     `gorm:"type:text;not null" json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is past its expiry at now
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// RateLimitCounter is a fixed-window request counter
type RateLimitCounter struct {
	Key         string    `gorm:"type:varchar(255);primaryKey" json:"key"`
	WindowStart time.Time `gorm:"not null" json:"window_start"`
	Count       int64     `gorm:"not null;default:0" json:"count"`
}

// TableName specifies the table name
func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}
