package models

import "time"

// PropertySnapshot represents a daily snapshot of a property's state
type PropertySnapshot struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID string    `gorm:"type:varchar(32);not null;index:idx_snapshot_property_date,priority:1" json:"property_id"`
	SnapshotAt time.Time `gorm:"not null;index:idx_snapshot_property_date,priority:2" json:"snapshot_at"`

	// Property state at snapshot time
	Price         int64   `json:"price"`
	Bedrooms      int     `json:"bedrooms"`
	AreaSqft      float64 `gorm:"type:decimal(12,2)" json:"area_sqft"`
	PropertyType  string  `gorm:"type:varchar(32)" json:"property_type"`
	CoverImageURL string  `gorm:"type:text" json:"cover_image_url,omitempty"`
	Status        string  `gorm:"type:varchar(20);not null" json:"status"`

	// Change detection
	HasChanged bool   `gorm:"default:false" json:"has_changed"`
	ChangeNote string `gorm:"type:text" json:"change_note,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (PropertySnapshot) TableName() string {
	return "property_snapshots"
}

// PropertyChange represents detected changes between snapshots
type PropertyChange struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID      string    `gorm:"type:varchar(32);not null;index" json:"property_id"`
	SnapshotID      uint      `gorm:"not null" json:"snapshot_id"`
	ChangeType      string    `gorm:"type:varchar(50);not null" json:"change_type"`
	OldValue        string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue        string    `gorm:"type:text" json:"new_value,omitempty"`
	ChangeMagnitude *float64  `gorm:"type:decimal(14,2)" json:"change_magnitude,omitempty"`
	DetectedAt      time.Time `gorm:"not null;autoCreateTime;index" json:"detected_at"`
}

// TableName specifies the table name
func (PropertyChange) TableName() string {
	return "property_changes"
}

// ChangeType constants
const (
	ChangeTypePrice    = "price_changed"
	ChangeTypeStatus   = "status_changed"
	ChangeTypeArea     = "area_changed"
	ChangeTypeBedrooms = "bedrooms_changed"
	ChangeTypeType     = "property_type_changed"
	ChangeTypeImage    = "image_changed"
	ChangeTypeNew      = "new_property"
)
