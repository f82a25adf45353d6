package models

import "time"

// SyncRun records one invocation of the sync coordinator
type SyncRun struct {
	ID                uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ScheduleName      string     `gorm:"type:varchar(64);index" json:"schedule_name,omitempty"`
	Trigger           string     `gorm:"type:varchar(20);not null" json:"trigger"`
	Status            string     `gorm:"type:varchar(20);not null;index" json:"status"`
	Areas             string     `gorm:"type:text" json:"areas"`
	MaxPages          int        `json:"max_pages"`
	PropertiesSynced  int        `json:"properties_synced"`
	PropertiesCreated int        `json:"properties_created"`
	PropertiesUpdated int        `json:"properties_updated"`
	AreasFailed       int        `json:"areas_failed"`
	Error             string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt         time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	DurationMs        int64      `json:"duration_ms"`
}

// TableName specifies the table name
func (SyncRun) TableName() string {
	return "sync_runs"
}

// Sync run statuses
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// Sync triggers
const (
	SyncTriggerSchedule = "schedule"
	SyncTriggerManual   = "manual"
)

// Finish stamps the terminal status and timing of a run
func (r *SyncRun) Finish(status string, now time.Time) {
	r.Status = status
	r.FinishedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
}
