package snapshot

import (
	"sync"

	"github.com/outofforest/snapframe/types"
)

// Layout maps cells of the block to their keys. Layout is shared by consecutive snapshots as long as
// the store has not moved any cell in between, and it is never modified after creation.
type Layout struct {
	keys []types.Key

	indexOnce sync.Once
	index     map[types.Key]uint64
}

func newLayout(keys []types.Key) *Layout {
	return &Layout{keys: keys}
}

// Keys returns keys of cells in physical order.
func (l *Layout) Keys() []types.Key {
	return l.keys
}

// Position returns the physical position of the cell.
func (l *Layout) Position(key types.Key) (uint64, bool) {
	l.indexOnce.Do(func() {
		l.index = make(map[types.Key]uint64, len(l.keys))
		for i, k := range l.keys {
			l.index[k] = uint64(i)
		}
	})
	pos, exists := l.index[key]
	return pos, exists
}

// Block is the compacted copy of attribute store of one node type.
type Block struct {
	NodeID types.NodeID
	Layout *Layout
	Cells  []types.Attribute
}

// Attribute returns the cell captured for the attribute slot of the node instance.
func (b *Block) Attribute(
	nodeIndex types.NodeIndex,
	attrID types.AttrID,
	slotIndex types.SlotIndex,
) (types.Attribute, bool) {
	pos, exists := b.Layout.Position(types.NewKey(b.NodeID, nodeIndex, attrID, slotIndex))
	if !exists {
		return types.Attribute{}, false
	}
	return b.Cells[pos], true
}

// Snapshot is the immutable copy of all the live attribute cells taken at tick.
type Snapshot struct {
	Tick   types.Tick
	Blocks []Block
}

// Block returns the block of the node type.
func (s *Snapshot) Block(nodeID types.NodeID) (*Block, bool) {
	for i := range s.Blocks {
		if s.Blocks[i].NodeID == nodeID {
			return &s.Blocks[i], true
		}
	}
	return nil, false
}

// Attribute returns the cell captured for the attribute slot of the node instance.
func (s *Snapshot) Attribute(
	nodeID types.NodeID,
	nodeIndex types.NodeIndex,
	attrID types.AttrID,
	slotIndex types.SlotIndex,
) (types.Attribute, bool) {
	b, exists := s.Block(nodeID)
	if !exists {
		return types.Attribute{}, false
	}
	return b.Attribute(nodeIndex, attrID, slotIndex)
}
