package node

import "context"

// NodeFilter narrows node listings. Prefix is a normalized lowercase hex
// prefix (2..64 chars); Name matches as a substring.
type NodeFilter struct {
	Prefix   *string
	NodeType *NodeType
	Name     *string
	Page     int
	PageSize int
}

type NodeRepository interface {
	Create(ctx context.Context, n *Node) error
	Update(ctx context.Context, n *Node) error
	GetByPublicKey(ctx context.Context, publicKey string) (*Node, error)

	// FindByPrefix resolves a lowercase hex prefix using the indexed prefix
	// columns (length 2 and up to 8) or a key range scan for longer inputs.
	// Results are ordered by public_key ascending.
	FindByPrefix(ctx context.Context, prefix string) ([]*Node, error)

	List(ctx context.Context, filter NodeFilter) ([]*Node, int64, error)
	Count(ctx context.Context) (int64, error)
}

type NodeTagRepository interface {
	Create(ctx context.Context, tag *NodeTag) error
	Update(ctx context.Context, tag *NodeTag) error
	GetByNodeAndKey(ctx context.Context, nodePublicKey, key string) (*NodeTag, error)
	ListByNode(ctx context.Context, nodePublicKey string) ([]*NodeTag, error)
	Delete(ctx context.Context, nodePublicKey, key string) error
}
