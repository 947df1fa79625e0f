package models

import (
	"time"

	"gorm.io/datatypes"

	"meshbridge/internal/shared/constants"
)

// TracePathModel is the persistence shape of a path-discovery result. Hop
// hashes and SNR values are stored as JSON arrays.
type TracePathModel struct {
	ID           uint   `gorm:"primarykey"`
	InitiatorTag uint32 `gorm:"not null;index:idx_trace_paths_tag"`
	PathHashes   datatypes.JSON
	SNRValues    datatypes.JSON
	HopCount     *int
	CompletedAt  time.Time `gorm:"not null;index:idx_trace_paths_completed_at"`
}

// TableName specifies the table name for GORM
func (TracePathModel) TableName() string {
	return constants.TableTracePaths
}
