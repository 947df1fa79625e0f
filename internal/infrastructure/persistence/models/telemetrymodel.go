package models

import (
	"time"

	"gorm.io/datatypes"

	"meshbridge/internal/shared/constants"
)

// TelemetryModel is the persistence shape of one sensor snapshot.
type TelemetryModel struct {
	ID            uint   `gorm:"primarykey"`
	NodePublicKey string `gorm:"not null;size:64;index:idx_telemetry_key"`
	Raw           []byte
	Parsed        datatypes.JSON
	ReceivedAt    time.Time `gorm:"not null;index:idx_telemetry_received_at"`
}

// TableName specifies the table name for GORM
func (TelemetryModel) TableName() string {
	return constants.TableTelemetry
}
