package models

import (
	"time"

	"meshbridge/internal/shared/constants"
)

// NodeModel is the persistence shape of a mesh node. The public key is the
// primary key; the prefix columns exist only to serve indexed prefix search
// and are always derived from the key.
type NodeModel struct {
	PublicKey string `gorm:"primaryKey;size:64"`
	Prefix2   string `gorm:"not null;size:2;index:idx_nodes_prefix2"`
	Prefix8   string `gorm:"not null;size:8;index:idx_nodes_prefix8"`
	NodeType  string `gorm:"not null;default:unknown;size:20;index:idx_nodes_type"`
	Name      string `gorm:"size:255;index:idx_nodes_name"`
	FirstSeen time.Time
	LastSeen  time.Time `gorm:"index:idx_nodes_last_seen"`
}

// TableName specifies the table name for GORM
func (NodeModel) TableName() string {
	return constants.TableNodes
}
