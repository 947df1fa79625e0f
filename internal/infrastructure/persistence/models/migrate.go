package models

import "gorm.io/gorm"

// AutoMigrate creates or updates the full schema. Called once at startup
// before any component touches the store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&NodeModel{},
		&NodeTagModel{},
		&MessageModel{},
		&AdvertisementModel{},
		&TracePathModel{},
		&TelemetryModel{},
		&EventLogModel{},
	)
}
