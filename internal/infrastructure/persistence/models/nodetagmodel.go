package models

import (
	"time"

	"meshbridge/internal/shared/constants"
)

// NodeTagModel is the persistence shape of a user-assigned node tag. One row
// per (node, key); exactly one value column is populated, named by ValueType.
type NodeTagModel struct {
	ID            uint   `gorm:"primarykey"`
	NodePublicKey string `gorm:"not null;size:64;uniqueIndex:idx_node_tags_node_key;index:idx_node_tags_node"`
	Key           string `gorm:"not null;size:100;uniqueIndex:idx_node_tags_node_key"`
	ValueType     string `gorm:"not null;size:20"` // string, number, boolean, coordinate
	ValueString   *string
	ValueNumber   *float64
	ValueBoolean  *bool
	Latitude      *float64
	Longitude     *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName specifies the table name for GORM
func (NodeTagModel) TableName() string {
	return constants.TableNodeTags
}
