package mappers

import (
	"encoding/json"
	"fmt"

	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/persistence/models"
)

// TracePathMapper handles the conversion between trace paths and persistence
// models. Hop arrays round-trip through JSON columns.
type TracePathMapper interface {
	ToModel(t *record.TracePath) (*models.TracePathModel, error)
	ToDomain(model *models.TracePathModel) (*record.TracePath, error)
	ToDomains(ms []*models.TracePathModel) ([]*record.TracePath, error)
}

// TracePathMapperImpl is the concrete implementation of TracePathMapper.
type TracePathMapperImpl struct{}

// NewTracePathMapper creates a new trace path mapper.
func NewTracePathMapper() TracePathMapper {
	return &TracePathMapperImpl{}
}

// ToModel converts a trace path entity to its persistence model.
func (m *TracePathMapperImpl) ToModel(t *record.TracePath) (*models.TracePathModel, error) {
	model := &models.TracePathModel{
		ID:           t.ID(),
		InitiatorTag: t.InitiatorTag(),
		HopCount:     t.HopCount(),
		CompletedAt:  t.CompletedAt(),
	}
	if t.PathHashes() != nil {
		raw, err := json.Marshal(t.PathHashes())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal path hashes: %w", err)
		}
		model.PathHashes = raw
	}
	if t.SNRValues() != nil {
		raw, err := json.Marshal(t.SNRValues())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal snr values: %w", err)
		}
		model.SNRValues = raw
	}
	return model, nil
}

// ToDomain converts a persistence model to a trace path entity.
func (m *TracePathMapperImpl) ToDomain(model *models.TracePathModel) (*record.TracePath, error) {
	var hashes []string
	if len(model.PathHashes) > 0 {
		if err := json.Unmarshal(model.PathHashes, &hashes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal path hashes: %w", err)
		}
	}
	var snrs []float64
	if len(model.SNRValues) > 0 {
		if err := json.Unmarshal(model.SNRValues, &snrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snr values: %w", err)
		}
	}
	return record.ReconstructTracePath(
		model.ID,
		model.InitiatorTag,
		hashes,
		snrs,
		model.HopCount,
		model.CompletedAt,
	), nil
}

// ToDomains converts a slice of persistence models.
func (m *TracePathMapperImpl) ToDomains(ms []*models.TracePathModel) ([]*record.TracePath, error) {
	out := make([]*record.TracePath, 0, len(ms))
	for _, model := range ms {
		t, err := m.ToDomain(model)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
