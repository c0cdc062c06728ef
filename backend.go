package snapframe

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/snapframe/frame"
	"github.com/outofforest/snapframe/schema"
	"github.com/outofforest/snapframe/snapshot"
	"github.com/outofforest/snapframe/types"
)

// Config stores backend configuration.
type Config struct {
	Logger *zap.Logger

	// MaxCellsPerNode limits the number of attribute cells of each node type. Zero means no limit.
	MaxCellsPerNode uint64
}

// New creates new backend.
func New(config Config) *Backend {
	f := frame.New(frame.Config{
		MaxCellsPerNode: config.MaxCellsPerNode,
	})
	return &Backend{
		frame: f,
		snapshots: snapshot.New(snapshot.Config{
			Logger: config.Logger,
		}, f),
	}
}

// NewFromSchema creates backend, registers node types and attributes defined by schema, sets it up and enables
// snapshots if schema requests them.
func NewFromSchema(config Config, s *schema.Schema) (*Backend, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b := New(config)
	for _, n := range s.Nodes {
		nodeID, err := b.AddNode(n.Name, types.NodeIndex(n.Number))
		if err != nil {
			return nil, err
		}
		for _, a := range n.Attributes {
			attrType, err := types.ParseAttrType(a.Type)
			if err != nil {
				return nil, err
			}
			if _, err := b.AddAttr(nodeID, a.Name, attrType, types.SlotIndex(a.Slots)); err != nil {
				return nil, err
			}
		}
	}
	if err := b.Setup(); err != nil {
		return nil, err
	}
	if s.Snapshots > 0 {
		b.EnableSnapshot(s.Snapshots)
	}
	return b, nil
}

// Backend is the entry point to the attribute storage. It is not safe for concurrent use.
type Backend struct {
	frame     *frame.Frame
	snapshots *snapshot.List
}

// AddNode registers node type with the number of instances created by Setup.
func (b *Backend) AddNode(name string, number types.NodeIndex) (types.NodeID, error) {
	return b.frame.AddNode(name, number)
}

// AddAttr registers attribute of the node type.
func (b *Backend) AddAttr(
	nodeID types.NodeID,
	name string,
	attrType types.AttrType,
	slots types.SlotIndex,
) (types.AttrID, error) {
	return b.frame.AddAttr(nodeID, name, attrType, slots)
}

// Setup finalizes registration.
func (b *Backend) Setup() error {
	return b.frame.Setup()
}

// GetByte returns value of byte attribute.
func (b *Backend) GetByte(attrID types.AttrID, nodeIndex types.NodeIndex, slotIndex types.SlotIndex) (int8, error) {
	return Get[int8](b, attrID, nodeIndex, slotIndex)
}

// GetShort returns value of short attribute.
func (b *Backend) GetShort(attrID types.AttrID, nodeIndex types.NodeIndex, slotIndex types.SlotIndex) (int16, error) {
	return Get[int16](b, attrID, nodeIndex, slotIndex)
}

// GetInt returns value of int attribute.
func (b *Backend) GetInt(attrID types.AttrID, nodeIndex types.NodeIndex, slotIndex types.SlotIndex) (int32, error) {
	return Get[int32](b, attrID, nodeIndex, slotIndex)
}

// GetLong returns value of long attribute.
func (b *Backend) GetLong(attrID types.AttrID, nodeIndex types.NodeIndex, slotIndex types.SlotIndex) (int64, error) {
	return Get[int64](b, attrID, nodeIndex, slotIndex)
}

// GetFloat returns value of float attribute.
func (b *Backend) GetFloat(
	attrID types.AttrID,
	nodeIndex types.NodeIndex,
	slotIndex types.SlotIndex,
) (float32, error) {
	return Get[float32](b, attrID, nodeIndex, slotIndex)
}

// GetDouble returns value of double attribute.
func (b *Backend) GetDouble(
	attrID types.AttrID,
	nodeIndex types.NodeIndex,
	slotIndex types.SlotIndex,
) (float64, error) {
	return Get[float64](b, attrID, nodeIndex, slotIndex)
}

// Get returns value of the attribute slot of the node instance. T must match the declared attribute type.
func Get[T types.Value](
	b *Backend,
	attrID types.AttrID,
	nodeIndex types.NodeIndex,
	slotIndex types.SlotIndex,
) (T, error) {
	a, err := b.frame.Attribute(attrID, nodeIndex, slotIndex)
	if err != nil {
		var t T
		return t, err
	}
	return types.Get[T](a)
}

// SetAttrValue sets value of the attribute slot of the node instance. T must match the declared attribute type.
func SetAttrValue[T types.Value](
	b *Backend,
	attrID types.AttrID,
	nodeIndex types.NodeIndex,
	slotIndex types.SlotIndex,
	value T,
) error {
	a, err := b.frame.Attribute(attrID, nodeIndex, slotIndex)
	if err != nil {
		return err
	}
	return types.Set(a, value)
}

// DeleteNode removes node instance.
func (b *Backend) DeleteNode(nodeID types.NodeID, nodeIndex types.NodeIndex) error {
	return b.frame.DeleteNode(nodeID, nodeIndex)
}

// AppendNode creates count new instances of the node type.
func (b *Backend) AppendNode(nodeID types.NodeID, count types.NodeIndex) error {
	return b.frame.AppendNode(nodeID, count)
}

// ResumeNode reactivates up to number previously deleted instances of the node type.
func (b *Backend) ResumeNode(nodeID types.NodeID, number types.NodeIndex) error {
	return b.frame.ResumeNode(nodeID, number)
}

// SetAttributeSlot changes the number of slots of the attribute, resetting its values.
func (b *Backend) SetAttributeSlot(attrID types.AttrID, slots types.SlotIndex) error {
	return b.frame.SetAttributeSlot(attrID, slots)
}

// EnableSnapshot sets the number of retained snapshots. Existing snapshots are dropped.
func (b *Backend) EnableSnapshot(maxSnapshots uint64) {
	b.snapshots.Enable(maxSnapshots)
}

// TakeSnapshot captures current state of all the attributes.
func (b *Backend) TakeSnapshot(tick types.Tick) error {
	if !b.frame.IsSetUp() {
		return errors.WithStack(types.ErrNotSetUp)
	}
	return b.snapshots.Take(tick)
}

// Snapshot returns snapshot taken at tick.
func (b *Backend) Snapshot(tick types.Tick) (*snapshot.Snapshot, bool) {
	return b.snapshots.Get(tick)
}

// Ticks returns ticks of retained snapshots.
func (b *Backend) Ticks() []types.Tick {
	return b.snapshots.Ticks()
}

// Dump writes retained snapshots to the file, preceded by the schema document.
func (b *Backend) Dump(ctx context.Context, path string) error {
	data, err := b.Schema().Marshal()
	if err != nil {
		return err
	}
	return b.snapshots.Dump(ctx, path, data)
}

// Reset zeroes all the attribute values and drops snapshots. Population and schema are kept.
func (b *Backend) Reset() {
	b.frame.Reset()
	b.snapshots.Reset()
}

// NodeInfo describes registered node types.
func (b *Backend) NodeInfo() []frame.NodeInfo {
	return b.frame.NodeInfo()
}

// Schema returns schema document describing current node types.
func (b *Backend) Schema() *schema.Schema {
	return &schema.Schema{
		Snapshots: b.snapshots.Capacity(),
		Nodes: lo.Map(b.frame.NodeInfo(), func(n frame.NodeInfo, _ int) schema.Node {
			return schema.Node{
				Name:   n.Name,
				Number: uint16(n.Number),
				Attributes: lo.Map(n.Attributes, func(a frame.AttrDef, _ int) schema.Attribute {
					return schema.Attribute{
						Name:  a.Name,
						Type:  a.Type.Code(),
						Slots: uint16(a.Slots),
					}
				}),
			}
		}),
	}
}
