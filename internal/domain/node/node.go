// Package node holds the mesh node aggregate: the node identity observed on
// air plus the user-assigned tag metadata attached to it.
package node

import (
	"fmt"
	"strings"
	"time"

	"meshbridge/internal/shared/constants"
	"meshbridge/internal/shared/utils"
)

// NodeType classifies a node by its advertised role.
type NodeType string

const (
	NodeTypeUnknown   NodeType = "unknown"
	NodeTypeCompanion NodeType = "companion"
	NodeTypeRepeater  NodeType = "repeater"
)

// NodeTypeFromAdvType maps the advertisement adv_type field onto a node type.
// Rooms are relay infrastructure, so they count as repeaters.
func NodeTypeFromAdvType(advType string) NodeType {
	switch strings.ToLower(strings.TrimSpace(advType)) {
	case "chat":
		return NodeTypeCompanion
	case "repeater", "room":
		return NodeTypeRepeater
	default:
		return NodeTypeUnknown
	}
}

// ParseNodeType validates a node type supplied by a caller.
func ParseNodeType(s string) (NodeType, error) {
	switch NodeType(strings.ToLower(strings.TrimSpace(s))) {
	case NodeTypeUnknown:
		return NodeTypeUnknown, nil
	case NodeTypeCompanion:
		return NodeTypeCompanion, nil
	case NodeTypeRepeater:
		return NodeTypeRepeater, nil
	default:
		return "", fmt.Errorf("invalid node type: %s", s)
	}
}

// Node is a mesh participant identified by its full public key. Created
// lazily on first observation or first tag write; never deleted.
type Node struct {
	publicKey string
	prefix2   string
	prefix8   string
	nodeType  NodeType
	name      string
	firstSeen time.Time
	lastSeen  time.Time
}

// NewNode creates a node from a full 64-hex public key. The key is
// lowercased, both search prefixes are derived from it, and first/last seen
// are set to the observation time.
func NewNode(publicKey string, observedAt time.Time) (*Node, error) {
	publicKey = strings.ToLower(strings.TrimSpace(publicKey))
	if err := utils.ValidatePublicKey(publicKey); err != nil {
		return nil, err
	}
	return &Node{
		publicKey: publicKey,
		prefix2:   publicKey[:constants.Prefix2Length],
		prefix8:   publicKey[:constants.Prefix8Length],
		nodeType:  NodeTypeUnknown,
		firstSeen: observedAt,
		lastSeen:  observedAt,
	}, nil
}

// ReconstructNode rebuilds a node from persistence without validation.
func ReconstructNode(publicKey, prefix2, prefix8 string, nodeType NodeType, name string, firstSeen, lastSeen time.Time) *Node {
	return &Node{
		publicKey: publicKey,
		prefix2:   prefix2,
		prefix8:   prefix8,
		nodeType:  nodeType,
		name:      name,
		firstSeen: firstSeen,
		lastSeen:  lastSeen,
	}
}

func (n *Node) PublicKey() string    { return n.publicKey }
func (n *Node) Prefix2() string      { return n.prefix2 }
func (n *Node) Prefix8() string      { return n.prefix8 }
func (n *Node) NodeType() NodeType   { return n.nodeType }
func (n *Node) Name() string         { return n.name }
func (n *Node) FirstSeen() time.Time { return n.firstSeen }
func (n *Node) LastSeen() time.Time  { return n.lastSeen }

// Placeholder is the default display name for an unnamed node: the first
// eight characters of its public key.
func (n *Node) Placeholder() string { return n.prefix8 }

// DisplayName returns the node's name, falling back to the placeholder.
func (n *Node) DisplayName() string {
	if n.name != "" {
		return n.name
	}
	return n.Placeholder()
}

// UpdateName applies the no-downgrade naming rule and reports whether the
// name changed. A real name never reverts to the key-prefix placeholder, and
// a placeholder never overwrites a real name.
func (n *Node) UpdateName(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	if n.name == "" {
		n.name = candidate
		return true
	}
	if strings.EqualFold(n.name, candidate) {
		return false
	}
	placeholder := n.Placeholder()
	if n.name == placeholder {
		n.name = candidate
		return true
	}
	if candidate == placeholder {
		return false
	}
	n.name = candidate
	return true
}

// UpdateType records an advertised node type. Unknown never overwrites a
// known type.
func (n *Node) UpdateType(t NodeType) bool {
	if t == NodeTypeUnknown || t == n.nodeType {
		return false
	}
	n.nodeType = t
	return true
}

// Observe advances last_seen. Out-of-order observations never move it back.
func (n *Node) Observe(at time.Time) {
	if at.After(n.lastSeen) {
		n.lastSeen = at
	}
}
