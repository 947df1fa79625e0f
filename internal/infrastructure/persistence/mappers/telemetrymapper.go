package mappers

import (
	"encoding/json"
	"fmt"

	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/persistence/models"
)

// TelemetryMapper handles the conversion between telemetry snapshots and
// persistence models.
type TelemetryMapper interface {
	ToModel(t *record.Telemetry) (*models.TelemetryModel, error)
	ToDomain(model *models.TelemetryModel) (*record.Telemetry, error)
	ToDomains(ms []*models.TelemetryModel) ([]*record.Telemetry, error)
}

// TelemetryMapperImpl is the concrete implementation of TelemetryMapper.
type TelemetryMapperImpl struct{}

// NewTelemetryMapper creates a new telemetry mapper.
func NewTelemetryMapper() TelemetryMapper {
	return &TelemetryMapperImpl{}
}

// ToModel converts a telemetry entity to its persistence model.
func (m *TelemetryMapperImpl) ToModel(t *record.Telemetry) (*models.TelemetryModel, error) {
	model := &models.TelemetryModel{
		ID:            t.ID(),
		NodePublicKey: t.NodePublicKey(),
		Raw:           t.Raw(),
		ReceivedAt:    t.ReceivedAt(),
	}
	if t.Parsed() != nil {
		raw, err := json.Marshal(t.Parsed())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parsed telemetry: %w", err)
		}
		model.Parsed = raw
	}
	return model, nil
}

// ToDomain converts a persistence model to a telemetry entity.
func (m *TelemetryMapperImpl) ToDomain(model *models.TelemetryModel) (*record.Telemetry, error) {
	var parsed map[string]any
	if len(model.Parsed) > 0 {
		if err := json.Unmarshal(model.Parsed, &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parsed telemetry: %w", err)
		}
	}
	return record.ReconstructTelemetry(
		model.ID,
		model.NodePublicKey,
		model.Raw,
		parsed,
		model.ReceivedAt,
	), nil
}

// ToDomains converts a slice of persistence models.
func (m *TelemetryMapperImpl) ToDomains(ms []*models.TelemetryModel) ([]*record.Telemetry, error) {
	out := make([]*record.Telemetry, 0, len(ms))
	for _, model := range ms {
		t, err := m.ToDomain(model)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
