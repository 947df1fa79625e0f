package models

import (
	"time"

	"gorm.io/datatypes"

	"meshbridge/internal/shared/constants"
)

// EventLogModel is one raw ingested event, kept verbatim for forensic replay.
// Append-only; the retention sweeper is the only deleter.
type EventLogModel struct {
	ID        uint           `gorm:"primarykey"`
	EventType string         `gorm:"not null;size:64;index:idx_event_logs_type"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;index:idx_event_logs_created_at"`
}

// TableName specifies the table name for GORM
func (EventLogModel) TableName() string {
	return constants.TableEventLogs
}
