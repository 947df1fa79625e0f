package record

import (
	"strings"
	"time"

	"meshbridge/internal/shared/utils"
)

// Telemetry is one sensor snapshot reported by a node. The raw blob is kept
// verbatim; parsed holds whatever structured view the firmware provided.
type Telemetry struct {
	id            uint
	nodePublicKey string
	raw           []byte
	parsed        map[string]any
	receivedAt    time.Time
}

// NewTelemetry records a telemetry response from the given node.
func NewTelemetry(nodePublicKey string, raw []byte, parsed map[string]any, receivedAt time.Time) (*Telemetry, error) {
	nodePublicKey = strings.ToLower(strings.TrimSpace(nodePublicKey))
	if err := utils.ValidatePublicKey(nodePublicKey); err != nil {
		return nil, err
	}
	return &Telemetry{
		nodePublicKey: nodePublicKey,
		raw:           raw,
		parsed:        parsed,
		receivedAt:    receivedAt,
	}, nil
}

// ReconstructTelemetry rebuilds a telemetry row from persistence.
func ReconstructTelemetry(id uint, nodePublicKey string, raw []byte, parsed map[string]any, receivedAt time.Time) *Telemetry {
	return &Telemetry{
		id:            id,
		nodePublicKey: nodePublicKey,
		raw:           raw,
		parsed:        parsed,
		receivedAt:    receivedAt,
	}
}

func (t *Telemetry) ID() uint               { return t.id }
func (t *Telemetry) NodePublicKey() string  { return t.nodePublicKey }
func (t *Telemetry) Raw() []byte            { return t.raw }
func (t *Telemetry) Parsed() map[string]any { return t.parsed }
func (t *Telemetry) ReceivedAt() time.Time  { return t.receivedAt }
