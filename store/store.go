package store

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/outofforest/snapframe/types"
)

// Config stores configuration of attribute store.
type Config struct {
	// MaxSize limits the number of cells in use. It doesn't need to be a multiple of 64, capacity is still
	// rounded up. Zero means no limit.
	MaxSize uint64
}

// New creates attribute store.
func New(config Config) *Store {
	return &Store{
		config:  config,
		mapping: map[types.Key]uint64{},
	}
}

// Store keeps attribute cells of one node type in the dense array.
// Pointers returned by Attribute are valid only until the next Add, Arrange or Setup.
type Store struct {
	config Config

	mapping    map[types.Key]uint64
	attributes []types.Attribute
	keys       []types.Key
	slotMasks  []uint64

	isDirty       bool
	lastIndex     uint64
	layoutVersion uint64
}

// Setup reserves capacity for at least size cells, rounded up to the multiple of 64.
func (s *Store) Setup(size uint64) error {
	if err := s.checkLimit(size); err != nil {
		return err
	}
	size = types.RoundUp(size)
	if size <= uint64(len(s.attributes)) && len(s.attributes) > 0 {
		return nil
	}
	s.grow(size)
	return nil
}

// Add allocates slotCount cells of the attribute for each of nodeCount instances starting at nodeIndex.
func (s *Store) Add(
	nodeID types.NodeID,
	nodeIndex types.NodeIndex,
	nodeCount types.NodeIndex,
	attrID types.AttrID,
	slotCount types.SlotIndex,
	attrType types.AttrType,
) error {
	if uint64(nodeIndex)+uint64(nodeCount) > types.MaxNodeIndex+1 {
		return errors.Wrapf(types.ErrCapacityExhausted, "node index %d + %d exceeds key space", nodeIndex,
			nodeCount)
	}

	toAdd := uint64(nodeCount) * uint64(slotCount)
	if toAdd == 0 {
		return nil
	}

	for i := range nodeCount {
		for slot := range slotCount {
			key := types.NewKey(nodeID, nodeIndex+i, attrID, slot)
			if _, exists := s.mapping[key]; exists {
				return errors.Wrapf(types.ErrAllocationConflict, "key %s is already allocated", key)
			}
		}
	}

	if err := s.Reserve(toAdd); err != nil {
		return err
	}

	index := s.lastIndex
	for i := range nodeCount {
		for slot := range slotCount {
			key := types.NewKey(nodeID, nodeIndex+i, attrID, slot)
			s.attributes[index] = types.NewAttribute(attrType)
			s.keys[index] = key
			s.mapping[key] = index
			s.slotMasks[index/types.MaskGranularity] |= 1 << (index % types.MaskGranularity)
			index++
		}
	}
	s.lastIndex = index
	s.layoutVersion++

	return nil
}

// Reserve grows the store so the next extra cells are allocated without growing it again.
// If holes keep the store above MaxSize, it is arranged first.
func (s *Store) Reserve(extra uint64) error {
	required := s.lastIndex + extra
	if s.checkLimit(required) != nil && s.isDirty {
		s.Arrange()
		required = s.lastIndex + extra
	}
	if err := s.checkLimit(required); err != nil {
		return err
	}
	if required > uint64(len(s.attributes)) {
		s.grow(types.RoundUp(required))
	}
	return nil
}

// Attribute returns the cell addressed by the composite key.
func (s *Store) Attribute(
	nodeID types.NodeID,
	nodeIndex types.NodeIndex,
	attrID types.AttrID,
	slotIndex types.SlotIndex,
) (*types.Attribute, error) {
	key := types.NewKey(nodeID, nodeIndex, attrID, slotIndex)
	index, exists := s.mapping[key]
	if !exists {
		return nil, errors.Wrapf(types.ErrBadAttributeIndexing, "key %s does not exist", key)
	}
	return &s.attributes[index], nil
}

// Remove releases slotCount cells of the attribute belonging to the node instance.
// Cells are only marked dead, space is reclaimed by Arrange.
func (s *Store) Remove(
	nodeID types.NodeID,
	nodeIndex types.NodeIndex,
	attrID types.AttrID,
	slotCount types.SlotIndex,
) error {
	for slot := range slotCount {
		key := types.NewKey(nodeID, nodeIndex, attrID, slot)
		if _, exists := s.mapping[key]; !exists {
			return errors.Wrapf(types.ErrBadAttributeIndexing, "key %s does not exist", key)
		}
	}

	for slot := range slotCount {
		key := types.NewKey(nodeID, nodeIndex, attrID, slot)
		index := s.mapping[key]
		delete(s.mapping, key)
		s.slotMasks[index/types.MaskGranularity] &^= 1 << (index % types.MaskGranularity)
	}

	if slotCount > 0 {
		s.isDirty = true
		s.layoutVersion++
	}
	return nil
}

// Arrange moves live cells down to fill the holes left by Remove. Relative order of cells is preserved.
func (s *Store) Arrange() {
	if !s.isDirty {
		return
	}

	var free uint64
	for w := uint64(0); w*types.MaskGranularity < s.lastIndex; w++ {
		mask := s.slotMasks[w]
		for mask != 0 {
			index := w*types.MaskGranularity + uint64(bits.TrailingZeros64(mask))
			mask &= mask - 1

			if index != free {
				s.attributes[free] = s.attributes[index]
				s.keys[free] = s.keys[index]
				s.mapping[s.keys[free]] = free
			}
			free++
		}
	}

	clear(s.attributes[free:s.lastIndex])
	clear(s.keys[free:s.lastIndex])
	clear(s.slotMasks)
	for w := uint64(0); w < free/types.MaskGranularity; w++ {
		s.slotMasks[w] = ^uint64(0)
	}
	if rest := free % types.MaskGranularity; rest != 0 {
		s.slotMasks[free/types.MaskGranularity] = 1<<rest - 1
	}

	s.lastIndex = free
	s.isDirty = false
	s.layoutVersion++
}

// CopyTo copies cells [0, LastIndex) to the destination as raw bytes, holes included.
// Call Arrange first to get the layout without holes.
func (s *Store) CopyTo(dest []byte) (int, error) {
	src := types.Bytes(s.attributes[:s.lastIndex])
	if len(dest) < len(src) {
		return 0, errors.Errorf("destination buffer too small: %d < %d", len(dest), len(src))
	}
	return copy(dest, src), nil
}

// CopyKeysTo copies keys of cells [0, LastIndex) to the destination.
func (s *Store) CopyKeysTo(dest []types.Key) (int, error) {
	if uint64(len(dest)) < s.lastIndex {
		return 0, errors.Errorf("destination buffer too small: %d < %d", len(dest), s.lastIndex)
	}
	return copy(dest, s.keys[:s.lastIndex]), nil
}

// Reset zeroes values of all the live cells, keeping allocations.
func (s *Store) Reset() {
	for i := range s.attributes[:s.lastIndex] {
		s.attributes[i].Bits = 0
	}
}

// Size returns the capacity of the store.
func (s *Store) Size() uint64 {
	return uint64(len(s.attributes))
}

// LastIndex returns the index following the last used cell.
func (s *Store) LastIndex() uint64 {
	return s.lastIndex
}

// Len returns the number of live cells.
func (s *Store) Len() uint64 {
	return uint64(len(s.mapping))
}

// IsDirty reports whether there are holes waiting for Arrange.
func (s *Store) IsDirty() bool {
	return s.isDirty
}

// LayoutVersion changes whenever the key to position assignment changes.
func (s *Store) LayoutVersion() uint64 {
	return s.layoutVersion
}

func (s *Store) checkLimit(size uint64) error {
	if s.config.MaxSize > 0 && size > s.config.MaxSize {
		return errors.Wrapf(types.ErrCapacityExhausted, "requested %d cells, limit is %d", size, s.config.MaxSize)
	}
	return nil
}

func (s *Store) grow(size uint64) {
	attributes := make([]types.Attribute, size)
	copy(attributes, s.attributes[:s.lastIndex])
	keys := make([]types.Key, size)
	copy(keys, s.keys[:s.lastIndex])
	slotMasks := make([]uint64, size/types.MaskGranularity)
	copy(slotMasks, s.slotMasks)

	s.attributes = attributes
	s.keys = keys
	s.slotMasks = slotMasks
	s.layoutVersion++
}
