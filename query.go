package snapframe

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/outofforest/snapframe/frame"
	"github.com/outofforest/snapframe/types"
)

// Query selects values from retained snapshots of the node type.
// Empty Ticks selects all the retained snapshots, empty Indexes selects all the instances and empty Attrs
// selects all the attributes of the node type.
type Query struct {
	NodeID  types.NodeID
	Ticks   []types.Tick
	Indexes []types.NodeIndex
	Attrs   []types.AttrID
}

// QuerySnapshots returns values selected by the query converted to float64, ordered by tick, node index,
// attribute and slot. Values missing in a snapshot, like those of deleted instances, are returned as zeros.
func (b *Backend) QuerySnapshots(q Query) ([]float64, error) {
	info, exists := lo.Find(b.frame.NodeInfo(), func(n frame.NodeInfo) bool { return n.ID == q.NodeID })
	if !exists {
		return nil, errors.Wrapf(types.ErrBadAttributeIndexing, "node %d does not exist", q.NodeID)
	}

	ticks := q.Ticks
	if len(ticks) == 0 {
		ticks = b.snapshots.Ticks()
	}
	indexes := q.Indexes
	if len(indexes) == 0 {
		indexes = lo.Times(int(info.Number), func(i int) types.NodeIndex { return types.NodeIndex(i) })
	}
	attrs := info.Attributes
	if len(q.Attrs) > 0 {
		attrs = make([]frame.AttrDef, 0, len(q.Attrs))
		for _, attrID := range q.Attrs {
			attr, err := b.frame.Attr(attrID)
			if err != nil {
				return nil, err
			}
			if attr.NodeID != q.NodeID {
				return nil, errors.Wrapf(types.ErrBadAttributeIndexing, "attribute %d does not belong to node %d",
					attrID, q.NodeID)
			}
			attrs = append(attrs, attr)
		}
	}

	slotsPerIndex := lo.SumBy(attrs, func(a frame.AttrDef) int { return int(a.Slots) })
	values := make([]float64, 0, len(ticks)*len(indexes)*slotsPerIndex)
	for _, tick := range ticks {
		s, exists := b.snapshots.Get(tick)
		if !exists {
			values = append(values, make([]float64, len(indexes)*slotsPerIndex)...)
			continue
		}
		block, exists := s.Block(q.NodeID)
		for _, nodeIndex := range indexes {
			for _, attr := range attrs {
				for slot := range attr.Slots {
					var v float64
					if exists {
						if a, ok := block.Attribute(nodeIndex, attr.ID, slot); ok {
							v = a.Float64()
						}
					}
					values = append(values, v)
				}
			}
		}
	}
	return values, nil
}
