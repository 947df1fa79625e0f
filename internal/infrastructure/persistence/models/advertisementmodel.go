package models

import (
	"time"

	"meshbridge/internal/shared/constants"
)

// AdvertisementModel is the persistence shape of one observed announcement.
type AdvertisementModel struct {
	ID         uint    `gorm:"primarykey"`
	PublicKey  string  `gorm:"not null;size:64;index:idx_advertisements_key"`
	AdvType    *string `gorm:"size:20"`
	Name       *string `gorm:"size:255"`
	Flags      *int
	ReceivedAt time.Time `gorm:"not null;index:idx_advertisements_received_at"`
}

// TableName specifies the table name for GORM
func (AdvertisementModel) TableName() string {
	return constants.TableAdvertisements
}
