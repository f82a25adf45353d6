package models

import (
	"strings"
	"time"
)

// SyncSchedule is the configuration entity for a scheduled property sync.
// The trigger reads it, never mutates Enabled/CronSpec/Areas; only the last-run
// fields and NextRunAt are written back after each invocation.
type SyncSchedule struct {
	ID                uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	CronSpec          string     `gorm:"type:varchar(64);not null" json:"cron_spec"`
	Enabled           bool       `gorm:"not null;default:false" json:"enabled"`
	Areas             string     `gorm:"type:text" json:"areas"`
	MaxPages          int        `gorm:"not null;default:1" json:"max_pages"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus     string     `gorm:"type:varchar(20)" json:"last_run_status,omitempty"`
	LastRunCount      int        `json:"last_run_count"`
	LastRunDurationMs int64      `json:"last_run_duration_ms"`
	LastError         string     `gorm:"type:text" json:"last_error,omitempty"`
	NextRunAt         *time.Time `json:"next_run_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (SyncSchedule) TableName() string {
	return "sync_schedules"
}

// AreaList splits the stored area identifiers
func (s *SyncSchedule) AreaList() []string {
	var areas []string
	for _, a := range strings.Split(s.Areas, ",") {
		if a = strings.TrimSpace(a); a != "" {
			areas = append(areas, a)
		}
	}
	return areas
}

// SetAreas stores area identifiers in their comma separated form
func (s *SyncSchedule) SetAreas(areas []string) {
	s.Areas = strings.Join(areas, ",")
}
