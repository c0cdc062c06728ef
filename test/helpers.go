package test

import (
	"github.com/outofforest/snapframe/snapshot"
	"github.com/outofforest/snapframe/store"
	"github.com/outofforest/snapframe/types"
)

// CollectStoreValues collects values of all the live cells of the store.
func CollectStoreValues(s *store.Store) map[types.Key]float64 {
	keys := make([]types.Key, s.LastIndex())
	if _, err := s.CopyKeysTo(keys); err != nil {
		panic(err)
	}

	values := map[types.Key]float64{}
	for _, key := range keys {
		a, err := s.Attribute(key.NodeID(), key.NodeIndex(), key.AttrID(), key.SlotIndex())
		if err != nil {
			// Hole left by removed cell.
			continue
		}
		values[key] = a.Float64()
	}
	return values
}

// CollectSnapshotValues collects values of all the cells captured for the node type.
func CollectSnapshotValues(s *snapshot.Snapshot, nodeID types.NodeID) map[types.Key]float64 {
	values := map[types.Key]float64{}
	b, exists := s.Block(nodeID)
	if !exists {
		return values
	}
	for i, key := range b.Layout.Keys() {
		values[key] = b.Cells[i].Float64()
	}
	return values
}
