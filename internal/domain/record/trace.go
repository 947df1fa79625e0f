package record

import (
	"fmt"
	"time"
)

// TracePath is one completed multi-hop path-discovery result. Hop hashes are
// 2-char key prefixes in hop order; snr_values, when present, runs parallel
// to path_hashes.
type TracePath struct {
	id           uint
	initiatorTag uint32
	pathHashes   []string
	snrValues    []float64
	hopCount     *int
	completedAt  time.Time
}

// NewTracePath records a trace result correlated by its initiator tag.
func NewTracePath(initiatorTag uint32, pathHashes []string, snrValues []float64, hopCount *int, completedAt time.Time) (*TracePath, error) {
	if len(snrValues) > 0 && len(pathHashes) > 0 && len(snrValues) != len(pathHashes) {
		return nil, fmt.Errorf("snr_values length %d does not match path_hashes length %d", len(snrValues), len(pathHashes))
	}
	if hopCount != nil && len(pathHashes) > 0 && *hopCount != len(pathHashes) {
		return nil, fmt.Errorf("hop_count %d does not match path_hashes length %d", *hopCount, len(pathHashes))
	}
	return &TracePath{
		initiatorTag: initiatorTag,
		pathHashes:   pathHashes,
		snrValues:    snrValues,
		hopCount:     hopCount,
		completedAt:  completedAt,
	}, nil
}

// ReconstructTracePath rebuilds a trace result from persistence.
func ReconstructTracePath(id uint, initiatorTag uint32, pathHashes []string, snrValues []float64, hopCount *int, completedAt time.Time) *TracePath {
	return &TracePath{
		id:           id,
		initiatorTag: initiatorTag,
		pathHashes:   pathHashes,
		snrValues:    snrValues,
		hopCount:     hopCount,
		completedAt:  completedAt,
	}
}

func (t *TracePath) ID() uint               { return t.id }
func (t *TracePath) InitiatorTag() uint32   { return t.initiatorTag }
func (t *TracePath) PathHashes() []string   { return t.pathHashes }
func (t *TracePath) SNRValues() []float64   { return t.snrValues }
func (t *TracePath) HopCount() *int         { return t.hopCount }
func (t *TracePath) CompletedAt() time.Time { return t.completedAt }
