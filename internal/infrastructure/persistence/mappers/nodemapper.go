package mappers

import (
	"meshbridge/internal/domain/node"
	"meshbridge/internal/infrastructure/persistence/models"
)

// NodeMapper handles the conversion between node entities and persistence models.
type NodeMapper interface {
	ToModel(n *node.Node) *models.NodeModel
	ToDomain(model *models.NodeModel) *node.Node
	ToDomains(ms []*models.NodeModel) []*node.Node
}

// NodeMapperImpl is the concrete implementation of NodeMapper.
type NodeMapperImpl struct{}

// NewNodeMapper creates a new node mapper.
func NewNodeMapper() NodeMapper {
	return &NodeMapperImpl{}
}

// ToModel converts a node entity to its persistence model.
func (m *NodeMapperImpl) ToModel(n *node.Node) *models.NodeModel {
	return &models.NodeModel{
		PublicKey: n.PublicKey(),
		Prefix2:   n.Prefix2(),
		Prefix8:   n.Prefix8(),
		NodeType:  string(n.NodeType()),
		Name:      n.Name(),
		FirstSeen: n.FirstSeen(),
		LastSeen:  n.LastSeen(),
	}
}

// ToDomain converts a persistence model to a node entity.
func (m *NodeMapperImpl) ToDomain(model *models.NodeModel) *node.Node {
	return node.ReconstructNode(
		model.PublicKey,
		model.Prefix2,
		model.Prefix8,
		node.NodeType(model.NodeType),
		model.Name,
		model.FirstSeen,
		model.LastSeen,
	)
}

// ToDomains converts a slice of persistence models.
func (m *NodeMapperImpl) ToDomains(ms []*models.NodeModel) []*node.Node {
	nodes := make([]*node.Node, 0, len(ms))
	for _, model := range ms {
		nodes = append(nodes, m.ToDomain(model))
	}
	return nodes
}
