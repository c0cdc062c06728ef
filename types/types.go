package types

import (
	"fmt"
	"math"
)

const (
	// UInt64Length is the number of bytes taken by uint64.
	UInt64Length = 8

	// MaskGranularity is the number of cells covered by one liveness word. Store capacity is always a multiple of it.
	MaskGranularity = 64

	// MaxNodeIndex is the highest node instance index addressable by the composite key. It is also the limit on
	// the number of instances of one node type, so instance counts fit in NodeIndex.
	MaxNodeIndex = math.MaxUint16

	keyFieldBits = 16
	keyFieldMask = 1<<keyFieldBits - 1
)

type (
	// NodeID identifies node type.
	NodeID uint16

	// NodeIndex is the index of node instance within its node type.
	NodeIndex uint16

	// AttrID identifies attribute.
	AttrID uint16

	// SlotIndex is the index of slot within multi-slot attribute.
	SlotIndex uint16

	// Tick is the simulation time unit snapshots are indexed by.
	Tick uint64

	// Key is the composite key addressing one attribute cell.
	Key uint64
)

// NewKey packs node type, node instance, attribute and slot into the composite key.
func NewKey(nodeID NodeID, nodeIndex NodeIndex, attrID AttrID, slotIndex SlotIndex) Key {
	return Key(nodeID)<<(3*keyFieldBits) |
		Key(nodeIndex)<<(2*keyFieldBits) |
		Key(attrID)<<keyFieldBits |
		Key(slotIndex)
}

// NodeID returns node type encoded in the key.
func (k Key) NodeID() NodeID {
	return NodeID(k >> (3 * keyFieldBits) & keyFieldMask)
}

// NodeIndex returns node instance encoded in the key.
func (k Key) NodeIndex() NodeIndex {
	return NodeIndex(k >> (2 * keyFieldBits) & keyFieldMask)
}

// AttrID returns attribute encoded in the key.
func (k Key) AttrID() AttrID {
	return AttrID(k >> keyFieldBits & keyFieldMask)
}

// SlotIndex returns slot encoded in the key.
func (k Key) SlotIndex() SlotIndex {
	return SlotIndex(k & keyFieldMask)
}

func (k Key) String() string {
	return fmt.Sprintf("(node: %d, index: %d, attr: %d, slot: %d)", k.NodeID(), k.NodeIndex(), k.AttrID(), k.SlotIndex())
}

// RoundUp rounds size up to the next multiple of MaskGranularity.
func RoundUp(size uint64) uint64 {
	return (size + MaskGranularity - 1) / MaskGranularity * MaskGranularity
}
