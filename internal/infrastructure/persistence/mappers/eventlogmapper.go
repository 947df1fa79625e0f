package mappers

import (
	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/persistence/models"
)

// EventLogMapper handles the conversion between event log entries and
// persistence models.
type EventLogMapper interface {
	ToModel(e *record.EventLogEntry) *models.EventLogModel
	ToDomain(model *models.EventLogModel) *record.EventLogEntry
	ToDomains(ms []*models.EventLogModel) []*record.EventLogEntry
}

// EventLogMapperImpl is the concrete implementation of EventLogMapper.
type EventLogMapperImpl struct{}

// NewEventLogMapper creates a new event log mapper.
func NewEventLogMapper() EventLogMapper {
	return &EventLogMapperImpl{}
}

// ToModel converts a log entry to its persistence model.
func (m *EventLogMapperImpl) ToModel(e *record.EventLogEntry) *models.EventLogModel {
	return &models.EventLogModel{
		ID:        e.ID(),
		EventType: e.EventType(),
		Payload:   e.Payload(),
		CreatedAt: e.CreatedAt(),
	}
}

// ToDomain converts a persistence model to a log entry.
func (m *EventLogMapperImpl) ToDomain(model *models.EventLogModel) *record.EventLogEntry {
	return record.ReconstructEventLogEntry(
		model.ID,
		model.EventType,
		model.Payload,
		model.CreatedAt,
	)
}

// ToDomains converts a slice of persistence models.
func (m *EventLogMapperImpl) ToDomains(ms []*models.EventLogModel) []*record.EventLogEntry {
	out := make([]*record.EventLogEntry, 0, len(ms))
	for _, model := range ms {
		out = append(out, m.ToDomain(model))
	}
	return out
}
