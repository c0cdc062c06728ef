package frame

import (
	"github.com/samber/lo"

	"github.com/outofforest/snapframe/types"
)

// NodeInfo describes node type.
type NodeInfo struct {
	ID         types.NodeID
	Name       string
	Number     types.NodeIndex
	Active     types.NodeIndex
	Attributes []AttrDef
}

// NodeInfo returns descriptions of all the node types in registration order.
func (f *Frame) NodeInfo() []NodeInfo {
	return lo.Map(f.nodes, func(n *nodeType, _ int) NodeInfo {
		number := n.number
		if f.isSetUp {
			number = types.NodeIndex(len(n.instances))
		}
		active := lo.CountBy(n.instances, func(state instanceState) bool { return state == stateActive })
		return NodeInfo{
			ID:         n.id,
			Name:       n.name,
			Number:     number,
			Active:     types.NodeIndex(active),
			Attributes: f.nodeAttrs(n),
		}
	})
}

// NodeByName returns identifier of the node type.
func (f *Frame) NodeByName(name string) (types.NodeID, bool) {
	n, exists := lo.Find(f.nodes, func(n *nodeType) bool { return n.name == name })
	if !exists {
		return 0, false
	}
	return n.id, true
}

// AttrByName returns identifier of the node type attribute.
func (f *Frame) AttrByName(nodeID types.NodeID, name string) (types.AttrID, bool) {
	if int(nodeID) >= len(f.nodes) {
		return 0, false
	}
	attrID, exists := lo.Find(f.nodes[nodeID].attrs, func(attrID types.AttrID) bool {
		return f.attrs[attrID].Name == name
	})
	return attrID, exists
}
