package mappers

import (
	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/persistence/models"
)

// MessageMapper handles the conversion between messages and persistence models.
type MessageMapper interface {
	ToModel(msg *record.Message) *models.MessageModel
	ToDomain(model *models.MessageModel) *record.Message
	ToDomains(ms []*models.MessageModel) []*record.Message
}

// MessageMapperImpl is the concrete implementation of MessageMapper.
type MessageMapperImpl struct{}

// NewMessageMapper creates a new message mapper.
func NewMessageMapper() MessageMapper {
	return &MessageMapperImpl{}
}

// ToModel converts a message entity to its persistence model.
func (m *MessageMapperImpl) ToModel(msg *record.Message) *models.MessageModel {
	return &models.MessageModel{
		ID:              msg.ID(),
		Direction:       string(msg.Direction()),
		MessageType:     string(msg.MessageType()),
		PubkeyPrefix:    msg.PubkeyPrefix(),
		ChannelIdx:      msg.ChannelIdx(),
		TxtType:         msg.TxtType(),
		PathLen:         msg.PathLen(),
		Signature:       msg.Signature(),
		Content:         msg.Content(),
		SNR:             msg.SNR(),
		SenderTimestamp: msg.SenderTimestamp(),
		ReceivedAt:      msg.ReceivedAt(),
	}
}

// ToDomain converts a persistence model to a message entity.
func (m *MessageMapperImpl) ToDomain(model *models.MessageModel) *record.Message {
	return record.ReconstructMessage(
		model.ID,
		record.Direction(model.Direction),
		record.MessageType(model.MessageType),
		model.PubkeyPrefix,
		model.ChannelIdx,
		model.TxtType,
		model.PathLen,
		model.Signature,
		model.Content,
		model.SNR,
		model.SenderTimestamp,
		model.ReceivedAt,
	)
}

// ToDomains converts a slice of persistence models.
func (m *MessageMapperImpl) ToDomains(ms []*models.MessageModel) []*record.Message {
	out := make([]*record.Message, 0, len(ms))
	for _, model := range ms {
		out = append(out, m.ToDomain(model))
	}
	return out
}
