package mappers

import (
	"meshbridge/internal/domain/node"
	"meshbridge/internal/infrastructure/persistence/models"
)

// NodeTagMapper handles the conversion between node tags and persistence models.
type NodeTagMapper interface {
	ToModel(t *node.NodeTag) *models.NodeTagModel
	ToDomain(model *models.NodeTagModel) *node.NodeTag
	ToDomains(ms []*models.NodeTagModel) []*node.NodeTag
}

// NodeTagMapperImpl is the concrete implementation of NodeTagMapper.
type NodeTagMapperImpl struct{}

// NewNodeTagMapper creates a new node tag mapper.
func NewNodeTagMapper() NodeTagMapper {
	return &NodeTagMapperImpl{}
}

// ToModel converts a tag entity to its persistence model, populating the one
// value column named by the value type.
func (m *NodeTagMapperImpl) ToModel(t *node.NodeTag) *models.NodeTagModel {
	model := &models.NodeTagModel{
		ID:            t.ID(),
		NodePublicKey: t.NodePublicKey(),
		Key:           t.Key(),
		ValueType:     string(t.Value().Type()),
		CreatedAt:     t.CreatedAt(),
		UpdatedAt:     t.UpdatedAt(),
	}
	switch t.Value().Type() {
	case node.TagValueString:
		s := t.Value().String()
		model.ValueString = &s
	case node.TagValueNumber:
		n := t.Value().Number()
		model.ValueNumber = &n
	case node.TagValueBoolean:
		b := t.Value().Boolean()
		model.ValueBoolean = &b
	case node.TagValueCoordinate:
		lat, lon := t.Value().Coordinate()
		model.Latitude = &lat
		model.Longitude = &lon
	}
	return model
}

// ToDomain converts a persistence model to a tag entity.
func (m *NodeTagMapperImpl) ToDomain(model *models.NodeTagModel) *node.NodeTag {
	value := node.ReconstructTagValue(
		node.TagValueType(model.ValueType),
		model.ValueString,
		model.ValueNumber,
		model.ValueBoolean,
		model.Latitude,
		model.Longitude,
	)
	return node.ReconstructNodeTag(
		model.ID,
		model.NodePublicKey,
		model.Key,
		value,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// ToDomains converts a slice of persistence models.
func (m *NodeTagMapperImpl) ToDomains(ms []*models.NodeTagModel) []*node.NodeTag {
	tags := make([]*node.NodeTag, 0, len(ms))
	for _, model := range ms {
		tags = append(tags, m.ToDomain(model))
	}
	return tags
}
