package frame

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/outofforest/snapframe/store"
	"github.com/outofforest/snapframe/types"
)

type instanceState uint8

const (
	stateActive instanceState = iota
	stateRemoved
)

// Config stores frame configuration.
type Config struct {
	// MaxCellsPerNode limits the size of attribute store of each node type. Zero means no limit.
	MaxCellsPerNode uint64
}

// AttrDef defines attribute.
type AttrDef struct {
	ID     types.AttrID
	NodeID types.NodeID
	Name   string
	Type   types.AttrType
	Slots  types.SlotIndex
}

type nodeType struct {
	id        types.NodeID
	name      string
	number    types.NodeIndex
	attrs     []types.AttrID
	instances []instanceState
	store     *store.Store
}

// New creates new frame.
func New(config Config) *Frame {
	return &Frame{
		config: config,
	}
}

// Frame owns attribute stores of all the node types and tracks which node instances exist.
type Frame struct {
	config  Config
	nodes   []*nodeType
	attrs   []AttrDef
	isSetUp bool
}

// AddNode registers node type with the initial number of instances created by Setup.
func (f *Frame) AddNode(name string, number types.NodeIndex) (types.NodeID, error) {
	if f.isSetUp {
		return 0, errors.Wrapf(types.ErrInvalidSchema, "node %q added after setup", name)
	}
	if name == "" {
		return 0, errors.Wrap(types.ErrInvalidSchema, "node name is empty")
	}
	if _, exists := lo.Find(f.nodes, func(n *nodeType) bool { return n.name == name }); exists {
		return 0, errors.Wrapf(types.ErrInvalidSchema, "node %q already exists", name)
	}
	if len(f.nodes) > math.MaxUint16 {
		return 0, errors.Wrap(types.ErrCapacityExhausted, "too many node types")
	}

	nodeID := types.NodeID(len(f.nodes))
	f.nodes = append(f.nodes, &nodeType{
		id:     nodeID,
		name:   name,
		number: number,
	})
	return nodeID, nil
}

// AddAttr registers attribute of the node type.
func (f *Frame) AddAttr(
	nodeID types.NodeID,
	name string,
	attrType types.AttrType,
	slots types.SlotIndex,
) (types.AttrID, error) {
	if f.isSetUp {
		return 0, errors.Wrapf(types.ErrInvalidSchema, "attribute %q added after setup", name)
	}
	n, err := f.node(nodeID)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return 0, errors.Wrap(types.ErrInvalidSchema, "attribute name is empty")
	}
	if !attrType.Valid() {
		return 0, errors.Wrapf(types.ErrInvalidSchema, "attribute %q has invalid type", name)
	}
	if slots == 0 {
		return 0, errors.Wrapf(types.ErrInvalidSchema, "attribute %q must have at least one slot", name)
	}
	for _, attrID := range n.attrs {
		if f.attrs[attrID].Name == name {
			return 0, errors.Wrapf(types.ErrInvalidSchema, "attribute %q already exists in node %q", name, n.name)
		}
	}
	if len(f.attrs) > math.MaxUint16 {
		return 0, errors.Wrap(types.ErrCapacityExhausted, "too many attributes")
	}

	attrID := types.AttrID(len(f.attrs))
	f.attrs = append(f.attrs, AttrDef{
		ID:     attrID,
		NodeID: nodeID,
		Name:   name,
		Type:   attrType,
		Slots:  slots,
	})
	n.attrs = append(n.attrs, attrID)
	return attrID, nil
}

// Setup finalizes the schema, provisions attribute stores and creates initial node instances.
func (f *Frame) Setup() error {
	if f.isSetUp {
		return errors.Wrap(types.ErrInvalidSchema, "frame is already set up")
	}

	for _, n := range f.nodes {
		n.store = store.New(store.Config{MaxSize: f.config.MaxCellsPerNode})
		if err := n.store.Setup(uint64(n.number) * f.cellsPerInstance(n)); err != nil {
			return errors.Wrapf(err, "setting up store of node %q failed", n.name)
		}
	}
	f.isSetUp = true

	for _, n := range f.nodes {
		if err := f.AppendNode(n.id, n.number); err != nil {
			return err
		}
	}
	return nil
}

// IsSetUp reports whether Setup has been called.
func (f *Frame) IsSetUp() bool {
	return f.isSetUp
}

// AppendNode creates count new instances of the node type.
func (f *Frame) AppendNode(nodeID types.NodeID, count types.NodeIndex) error {
	n, err := f.setUpNode(nodeID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	first := len(n.instances)
	if first+int(count) > types.MaxNodeIndex {
		return errors.Wrapf(types.ErrCapacityExhausted, "node %q can't have more than %d instances", n.name,
			types.MaxNodeIndex)
	}

	if err := n.store.Reserve(uint64(count) * f.cellsPerInstance(n)); err != nil {
		return err
	}
	for _, attrID := range n.attrs {
		attr := f.attrs[attrID]
		if err := n.store.Add(nodeID, types.NodeIndex(first), count, attrID, attr.Slots, attr.Type); err != nil {
			return err
		}
	}

	for range count {
		n.instances = append(n.instances, stateActive)
	}
	return nil
}

// DeleteNode removes node instance. Its index might be reactivated later by ResumeNode.
func (f *Frame) DeleteNode(nodeID types.NodeID, nodeIndex types.NodeIndex) error {
	n, err := f.setUpNode(nodeID)
	if err != nil {
		return err
	}
	if int(nodeIndex) >= len(n.instances) || n.instances[nodeIndex] != stateActive {
		return errors.Wrapf(types.ErrBadAttributeIndexing, "instance %d of node %q is not active", nodeIndex,
			n.name)
	}

	if err := f.release(n, nodeIndex, f.nodeAttrs(n)...); err != nil {
		return err
	}
	n.instances[nodeIndex] = stateRemoved
	return nil
}

// ResumeNode reactivates up to number previously deleted instances, lowest indices first.
// Attributes of resumed instances are zeroed.
func (f *Frame) ResumeNode(nodeID types.NodeID, number types.NodeIndex) error {
	n, err := f.setUpNode(nodeID)
	if err != nil {
		return err
	}

	toResume := make([]types.NodeIndex, 0, number)
	for i, state := range n.instances {
		if len(toResume) == int(number) {
			break
		}
		if state == stateRemoved {
			toResume = append(toResume, types.NodeIndex(i))
		}
	}

	if err := n.store.Reserve(uint64(len(toResume)) * f.cellsPerInstance(n)); err != nil {
		return err
	}
	for _, nodeIndex := range toResume {
		for _, attrID := range n.attrs {
			attr := f.attrs[attrID]
			if err := n.store.Add(nodeID, nodeIndex, 1, attrID, attr.Slots, attr.Type); err != nil {
				return err
			}
		}
		n.instances[nodeIndex] = stateActive
	}
	return nil
}

// SetAttributeSlot changes the number of slots of the attribute. Values of the attribute are reset for all
// the active instances.
func (f *Frame) SetAttributeSlot(attrID types.AttrID, slots types.SlotIndex) error {
	if !f.isSetUp {
		return errors.WithStack(types.ErrNotSetUp)
	}
	if int(attrID) >= len(f.attrs) {
		return errors.Wrapf(types.ErrBadAttributeIndexing, "attribute %d does not exist", attrID)
	}
	if slots == 0 {
		return errors.Wrapf(types.ErrInvalidSchema, "attribute %d must have at least one slot", attrID)
	}

	attr := &f.attrs[attrID]
	if attr.Slots == slots {
		return nil
	}

	n := f.nodes[attr.NodeID]
	active := lo.Filter(n.instances, func(state instanceState, _ int) bool { return state == stateActive })
	if err := n.store.Reserve(uint64(len(active)) * uint64(slots)); err != nil {
		return err
	}

	for i, state := range n.instances {
		if state != stateActive {
			continue
		}
		nodeIndex := types.NodeIndex(i)
		if err := f.release(n, nodeIndex, *attr); err != nil {
			return err
		}
		if err := n.store.Add(n.id, nodeIndex, 1, attrID, slots, attr.Type); err != nil {
			return errors.Wrapf(err, "resizing attribute %q of instance %d failed", attr.Name, nodeIndex)
		}
	}
	attr.Slots = slots
	return nil
}

// Attribute returns the cell of the attribute slot of the node instance.
func (f *Frame) Attribute(
	attrID types.AttrID,
	nodeIndex types.NodeIndex,
	slotIndex types.SlotIndex,
) (*types.Attribute, error) {
	if !f.isSetUp {
		return nil, errors.WithStack(types.ErrNotSetUp)
	}
	if int(attrID) >= len(f.attrs) {
		return nil, errors.Wrapf(types.ErrBadAttributeIndexing, "attribute %d does not exist", attrID)
	}
	attr := f.attrs[attrID]
	return f.nodes[attr.NodeID].store.Attribute(attr.NodeID, nodeIndex, attrID, slotIndex)
}

// Attr returns definition of the attribute.
func (f *Frame) Attr(attrID types.AttrID) (AttrDef, error) {
	if int(attrID) >= len(f.attrs) {
		return AttrDef{}, errors.Wrapf(types.ErrBadAttributeIndexing, "attribute %d does not exist", attrID)
	}
	return f.attrs[attrID], nil
}

// Nodes returns identifiers of all the node types.
func (f *Frame) Nodes() []types.NodeID {
	return lo.Map(f.nodes, func(n *nodeType, _ int) types.NodeID { return n.id })
}

// Store returns attribute store of the node type.
func (f *Frame) Store(nodeID types.NodeID) (*store.Store, error) {
	n, err := f.setUpNode(nodeID)
	if err != nil {
		return nil, err
	}
	return n.store, nil
}

// IsActive reports whether node instance exists.
func (f *Frame) IsActive(nodeID types.NodeID, nodeIndex types.NodeIndex) bool {
	if int(nodeID) >= len(f.nodes) {
		return false
	}
	n := f.nodes[nodeID]
	return int(nodeIndex) < len(n.instances) && n.instances[nodeIndex] == stateActive
}

// Reset zeroes all the attribute values. Population and schema are kept.
func (f *Frame) Reset() {
	if !f.isSetUp {
		return
	}
	for _, n := range f.nodes {
		n.store.Reset()
	}
}

func (f *Frame) node(nodeID types.NodeID) (*nodeType, error) {
	if int(nodeID) >= len(f.nodes) {
		return nil, errors.Wrapf(types.ErrBadAttributeIndexing, "node %d does not exist", nodeID)
	}
	return f.nodes[nodeID], nil
}

func (f *Frame) setUpNode(nodeID types.NodeID) (*nodeType, error) {
	if !f.isSetUp {
		return nil, errors.WithStack(types.ErrNotSetUp)
	}
	return f.node(nodeID)
}

func (f *Frame) nodeAttrs(n *nodeType) []AttrDef {
	return lo.Map(n.attrs, func(attrID types.AttrID, _ int) AttrDef { return f.attrs[attrID] })
}

func (f *Frame) cellsPerInstance(n *nodeType) uint64 {
	return lo.SumBy(n.attrs, func(attrID types.AttrID) uint64 { return uint64(f.attrs[attrID].Slots) })
}

// release removes cells of the attributes of the active instance.
func (f *Frame) release(n *nodeType, nodeIndex types.NodeIndex, attrs ...AttrDef) error {
	for _, attr := range attrs {
		if err := n.store.Remove(n.id, nodeIndex, attr.ID, attr.Slots); err != nil {
			return errors.Wrapf(err, "releasing attribute %q of instance %d of node %q failed", attr.Name,
				nodeIndex, n.name)
		}
	}
	return nil
}
