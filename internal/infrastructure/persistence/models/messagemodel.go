package models

import (
	"time"

	"meshbridge/internal/shared/constants"
)

// MessageModel is the persistence shape of an observed mesh message. Contact
// messages carry PubkeyPrefix; channel messages carry ChannelIdx.
type MessageModel struct {
	ID              uint    `gorm:"primarykey"`
	Direction       string  `gorm:"not null;size:10"` // inbound, outbound
	MessageType     string  `gorm:"not null;size:10;index:idx_messages_type"`
	PubkeyPrefix    *string `gorm:"size:12;index:idx_messages_prefix"`
	ChannelIdx      *int    `gorm:"index:idx_messages_channel"`
	TxtType         *int
	PathLen         *int
	Signature       *string `gorm:"size:255"`
	Content         string
	SNR             *float64
	SenderTimestamp *time.Time
	ReceivedAt      time.Time `gorm:"not null;index:idx_messages_received_at"`
}

// TableName specifies the table name for GORM
func (MessageModel) TableName() string {
	return constants.TableMessages
}
