package models

import "time"

// DeleteLog represents a record of physically deleted properties
type DeleteLog struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID     string    `gorm:"type:varchar(32);not null;index" json:"property_id"`
	ExternalID     string    `gorm:"type:varchar(64)" json:"external_id"`
	ExternalSource string    `gorm:"type:varchar(32)" json:"external_source"`
	Title          string    `gorm:"type:text" json:"title"`
	RemovedAt      time.Time `json:"removed_at"`
	DeletedAt      time.Time `gorm:"not null;autoCreateTime;index" json:"deleted_at"`
	Reason         string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonExpired = "expired_retention"
	DeleteReasonManual  = "manual_deletion"
)
