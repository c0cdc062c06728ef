package snapframe

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"
	"github.com/outofforest/snapframe/persistent"
	"github.com/outofforest/snapframe/schema"
	"github.com/outofforest/snapframe/test"
	"github.com/outofforest/snapframe/types"
)

func newBackend(t *testing.T) (*Backend, types.NodeID, types.AttrID) {
	requireT := require.New(t)

	b := New(Config{})
	nodeID, err := b.AddNode("agent", 0)
	requireT.NoError(err)
	requireT.Equal(types.NodeID(0), nodeID)

	attrID, err := b.AddAttr(nodeID, "inventory", types.TypeInt, 2)
	requireT.NoError(err)
	requireT.Equal(types.AttrID(0), attrID)

	requireT.NoError(b.Setup())
	return b, nodeID, attrID
}

func TestPopulationLifecycle(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, attrID := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 3))

	for nodeIndex := range types.NodeIndex(3) {
		for slot := range types.SlotIndex(2) {
			v, err := b.GetInt(attrID, nodeIndex, slot)
			requireT.NoError(err)
			requireT.Zero(v)
		}
	}

	requireT.NoError(SetAttrValue[int32](b, attrID, 1, 0, 42))
	v, err := b.GetInt(attrID, 1, 0)
	requireT.NoError(err)
	requireT.Equal(int32(42), v)

	requireT.NoError(b.DeleteNode(nodeID, 1))
	_, err = b.GetInt(attrID, 1, 0)
	requireT.ErrorIs(err, types.ErrBadAttributeIndexing)

	requireT.NoError(b.ResumeNode(nodeID, 1))
	v, err = b.GetInt(attrID, 1, 0)
	requireT.NoError(err)
	requireT.Zero(v)
}

func TestTypeMismatch(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, attrID := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 1))

	_, err := b.GetLong(attrID, 0, 0)
	requireT.ErrorIs(err, types.ErrTypeMismatch)
	_, err = b.GetDouble(attrID, 0, 0)
	requireT.ErrorIs(err, types.ErrTypeMismatch)
	requireT.ErrorIs(SetAttrValue[int16](b, attrID, 0, 0, 1), types.ErrTypeMismatch)

	_, err = b.GetInt(attrID, 0, 2)
	requireT.ErrorIs(err, types.ErrBadAttributeIndexing)
	_, err = b.GetInt(attrID+1, 0, 0)
	requireT.ErrorIs(err, types.ErrBadAttributeIndexing)
}

func TestTypedAccessors(t *testing.T) {
	requireT := require.New(t)

	b := New(Config{})
	nodeID, err := b.AddNode("node", 1)
	requireT.NoError(err)

	attrs := map[types.AttrType]types.AttrID{}
	for _, attrType := range []types.AttrType{
		types.TypeByte, types.TypeShort, types.TypeInt, types.TypeLong, types.TypeFloat, types.TypeDouble,
	} {
		attrID, err := b.AddAttr(nodeID, attrType.String(), attrType, 1)
		requireT.NoError(err)
		attrs[attrType] = attrID
	}
	requireT.NoError(b.Setup())

	requireT.NoError(SetAttrValue[int8](b, attrs[types.TypeByte], 0, 0, -8))
	requireT.NoError(SetAttrValue[int16](b, attrs[types.TypeShort], 0, 0, -16))
	requireT.NoError(SetAttrValue[int32](b, attrs[types.TypeInt], 0, 0, -32))
	requireT.NoError(SetAttrValue[int64](b, attrs[types.TypeLong], 0, 0, -64))
	requireT.NoError(SetAttrValue[float32](b, attrs[types.TypeFloat], 0, 0, 3.5))
	requireT.NoError(SetAttrValue[float64](b, attrs[types.TypeDouble], 0, 0, -7.25))

	vb, err := b.GetByte(attrs[types.TypeByte], 0, 0)
	requireT.NoError(err)
	requireT.Equal(int8(-8), vb)

	vs, err := b.GetShort(attrs[types.TypeShort], 0, 0)
	requireT.NoError(err)
	requireT.Equal(int16(-16), vs)

	vi, err := b.GetInt(attrs[types.TypeInt], 0, 0)
	requireT.NoError(err)
	requireT.Equal(int32(-32), vi)

	vl, err := b.GetLong(attrs[types.TypeLong], 0, 0)
	requireT.NoError(err)
	requireT.Equal(int64(-64), vl)

	vf, err := b.GetFloat(attrs[types.TypeFloat], 0, 0)
	requireT.NoError(err)
	requireT.InDelta(3.5, vf, 0)

	vd, err := b.GetDouble(attrs[types.TypeDouble], 0, 0)
	requireT.NoError(err)
	requireT.InDelta(-7.25, vd, 0)
}

func TestNotSetUp(t *testing.T) {
	requireT := require.New(t)

	b := New(Config{})
	nodeID, err := b.AddNode("agent", 1)
	requireT.NoError(err)
	attrID, err := b.AddAttr(nodeID, "x", types.TypeByte, 1)
	requireT.NoError(err)

	_, err = b.GetByte(attrID, 0, 0)
	requireT.ErrorIs(err, types.ErrNotSetUp)
	requireT.ErrorIs(b.AppendNode(nodeID, 1), types.ErrNotSetUp)

	b.EnableSnapshot(1)
	requireT.ErrorIs(b.TakeSnapshot(1), types.ErrNotSetUp)
}

func TestSnapshotEviction(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, attrID := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 2))
	b.EnableSnapshot(2)

	for tick := types.Tick(1); tick <= 3; tick++ {
		requireT.NoError(SetAttrValue(b, attrID, 1, 1, int32(tick)))
		requireT.NoError(b.TakeSnapshot(tick))
	}
	requireT.ErrorIs(b.TakeSnapshot(3), types.ErrDuplicateTick)

	_, exists := b.Snapshot(1)
	requireT.False(exists)
	requireT.Equal([]types.Tick{2, 3}, b.Ticks())

	for _, tick := range []types.Tick{2, 3} {
		s, exists := b.Snapshot(tick)
		requireT.True(exists)
		a, exists := s.Attribute(nodeID, 1, attrID, 1)
		requireT.True(exists)
		v, err := types.Get[int32](&a)
		requireT.NoError(err)
		requireT.Equal(int32(tick), v)
	}

	// Snapshots are not affected by further changes.
	requireT.NoError(SetAttrValue[int32](b, attrID, 1, 1, 100))
	requireT.NoError(b.DeleteNode(nodeID, 0))
	s, _ := b.Snapshot(3)
	a, exists := s.Attribute(nodeID, 1, attrID, 1)
	requireT.True(exists)
	requireT.InDelta(3, a.Float64(), 0)
	_, exists = s.Attribute(nodeID, 0, attrID, 0)
	requireT.True(exists)
}

func TestEnableSnapshotRearms(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, _ := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 1))

	requireT.ErrorIs(b.TakeSnapshot(1), types.ErrSnapshotsDisabled)

	b.EnableSnapshot(3)
	requireT.NoError(b.TakeSnapshot(5))
	requireT.NoError(b.TakeSnapshot(6))

	b.EnableSnapshot(3)
	requireT.Empty(b.Ticks())
	requireT.NoError(b.TakeSnapshot(1))
	requireT.Equal([]types.Tick{1}, b.Ticks())
}

func TestEnableSnapshotWithLargeCapacity(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, attrID := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 1))

	b.EnableSnapshot(math.MaxUint64)
	for tick := types.Tick(1); tick <= 4; tick++ {
		requireT.NoError(SetAttrValue(b, attrID, 0, 0, int32(tick)))
		requireT.NoError(b.TakeSnapshot(tick))
	}
	requireT.Equal([]types.Tick{1, 2, 3, 4}, b.Ticks())
	requireT.EqualValues(uint64(math.MaxUint64), b.Schema().Snapshots)
}

func TestFullPopulation(t *testing.T) {
	requireT := require.New(t)

	b := New(Config{})
	nodeID, err := b.AddNode("agent", types.MaxNodeIndex)
	requireT.NoError(err)
	attrID, err := b.AddAttr(nodeID, "flag", types.TypeByte, 1)
	requireT.NoError(err)
	requireT.NoError(b.Setup())
	requireT.ErrorIs(b.AppendNode(nodeID, 1), types.ErrCapacityExhausted)

	requireT.NoError(SetAttrValue[int8](b, attrID, types.MaxNodeIndex-1, 0, 1))
	b.EnableSnapshot(1)
	requireT.NoError(b.TakeSnapshot(1))

	info := b.NodeInfo()[0]
	requireT.EqualValues(types.MaxNodeIndex, info.Number)
	requireT.EqualValues(types.MaxNodeIndex, info.Active)
	requireT.EqualValues(types.MaxNodeIndex, b.Schema().Nodes[0].Number)

	values, err := b.QuerySnapshots(Query{NodeID: nodeID})
	requireT.NoError(err)
	requireT.Len(values, types.MaxNodeIndex)
	requireT.InDelta(1, values[types.MaxNodeIndex-1], 0)

	b2, err := NewFromSchema(Config{}, b.Schema())
	requireT.NoError(err)
	requireT.EqualValues(types.MaxNodeIndex, b2.NodeInfo()[0].Active)
}

func TestReset(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, attrID := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 2))
	b.EnableSnapshot(2)

	requireT.NoError(SetAttrValue[int32](b, attrID, 1, 1, 9))
	requireT.NoError(b.TakeSnapshot(1))

	b.Reset()
	requireT.Empty(b.Ticks())
	v, err := b.GetInt(attrID, 1, 1)
	requireT.NoError(err)
	requireT.Zero(v)
	requireT.NoError(b.TakeSnapshot(1))
}

func TestSetAttributeSlot(t *testing.T) {
	requireT := require.New(t)

	b, nodeID, attrID := newBackend(t)
	requireT.NoError(b.AppendNode(nodeID, 2))
	requireT.NoError(SetAttrValue[int32](b, attrID, 0, 1, 5))

	requireT.NoError(b.SetAttributeSlot(attrID, 4))
	v, err := b.GetInt(attrID, 0, 1)
	requireT.NoError(err)
	requireT.Zero(v)
	_, err = b.GetInt(attrID, 1, 3)
	requireT.NoError(err)

	requireT.NoError(b.SetAttributeSlot(attrID, 1))
	_, err = b.GetInt(attrID, 0, 1)
	requireT.ErrorIs(err, types.ErrBadAttributeIndexing)
}

func TestQuerySnapshots(t *testing.T) {
	requireT := require.New(t)

	b := New(Config{})
	nodeID, err := b.AddNode("agent", 2)
	requireT.NoError(err)
	energyID, err := b.AddAttr(nodeID, "energy", types.TypeFloat, 1)
	requireT.NoError(err)
	stockID, err := b.AddAttr(nodeID, "stock", types.TypeShort, 2)
	requireT.NoError(err)
	requireT.NoError(b.Setup())
	b.EnableSnapshot(4)

	requireT.NoError(SetAttrValue[float32](b, energyID, 0, 0, 0.5))
	requireT.NoError(SetAttrValue[int16](b, stockID, 1, 1, 7))
	requireT.NoError(b.TakeSnapshot(1))

	requireT.NoError(b.DeleteNode(nodeID, 0))
	requireT.NoError(SetAttrValue[int16](b, stockID, 1, 0, 3))
	requireT.NoError(b.TakeSnapshot(2))

	values, err := b.QuerySnapshots(Query{NodeID: nodeID})
	requireT.NoError(err)
	requireT.Equal([]float64{
		// tick 1
		0.5, 0, 0,
		0, 0, 7,
		// tick 2
		0, 0, 0,
		0, 3, 7,
	}, values)

	values, err = b.QuerySnapshots(Query{
		NodeID:  nodeID,
		Ticks:   []types.Tick{2, 9},
		Indexes: []types.NodeIndex{1},
		Attrs:   []types.AttrID{stockID},
	})
	requireT.NoError(err)
	requireT.Equal([]float64{3, 7, 0, 0}, values)

	_, err = b.QuerySnapshots(Query{NodeID: nodeID + 1})
	requireT.ErrorIs(err, types.ErrBadAttributeIndexing)
}

func TestSchemaAndDump(t *testing.T) {
	requireT := require.New(t)

	s, err := schema.Parse([]byte(`
snapshots: 2
nodes:
  - name: agent
    number: 3
    attributes:
      - name: inventory
        type: i
        slots: 2
  - name: facility
    number: 1
    attributes:
      - name: level
        type: d
`))
	requireT.NoError(err)

	b, err := NewFromSchema(Config{}, s)
	requireT.NoError(err)
	requireT.Equal(s, b.Schema())

	info := b.NodeInfo()
	requireT.Len(info, 2)
	requireT.Equal("facility", info[1].Name)
	requireT.Equal(types.NodeIndex(1), info[1].Active)

	levelID := info[1].Attributes[0].ID
	requireT.NoError(SetAttrValue[float64](b, levelID, 0, 0, 2.5))
	requireT.NoError(b.TakeSnapshot(10))
	requireT.NoError(b.TakeSnapshot(20))
	requireT.NoError(b.TakeSnapshot(30))

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	path := filepath.Join(t.TempDir(), "dump")
	requireT.NoError(b.Dump(ctx, path))

	dump, err := persistent.Load(path)
	requireT.NoError(err)

	s2, err := schema.Parse(dump.Schema)
	requireT.NoError(err)
	requireT.Equal(s, s2)

	requireT.Len(dump.Records, 2)
	requireT.Equal(types.Tick(20), dump.Records[0].Tick)
	requireT.Equal(types.Tick(30), dump.Records[1].Tick)

	block := dump.Records[1].Blocks[1]
	requireT.Equal(types.NodeID(1), block.NodeID)
	requireT.Len(block.Cells, 1)
	v, err := types.Get[float64](&block.Cells[0])
	requireT.NoError(err)
	requireT.InDelta(2.5, v, 0)
	requireT.Len(dump.Records[1].Blocks[0].Cells, 6)
}

func TestInvalidSchemaIsRejected(t *testing.T) {
	_, err := NewFromSchema(Config{}, &schema.Schema{
		Nodes: []schema.Node{{Name: "a"}, {Name: "a"}},
	})
	require.ErrorIs(t, err, types.ErrInvalidSchema)
}

func TestSnapshotsMatchLiveStateUnderChurn(t *testing.T) {
	requireT := require.New(t)

	const numOfInstances = 50

	b := New(Config{})
	nodeID, err := b.AddNode("agent", numOfInstances)
	requireT.NoError(err)
	attrID, err := b.AddAttr(nodeID, "stock", types.TypeLong, 3)
	requireT.NoError(err)
	requireT.NoError(b.Setup())
	b.EnableSnapshot(5)

	s, err := b.frame.Store(nodeID)
	requireT.NoError(err)

	random := rand.New(rand.NewSource(1))
	for tick := types.Tick(1); tick <= 20; tick++ {
		for range 10 {
			nodeIndex := types.NodeIndex(random.Intn(numOfInstances))
			switch random.Intn(3) {
			case 0:
				_ = b.DeleteNode(nodeID, nodeIndex)
			case 1:
				requireT.NoError(b.ResumeNode(nodeID, 1))
			default:
				if b.frame.IsActive(nodeID, nodeIndex) {
					requireT.NoError(SetAttrValue(b, attrID, nodeIndex, types.SlotIndex(random.Intn(3)),
						random.Int63()))
				}
			}
		}

		expected := test.CollectStoreValues(s)
		requireT.NoError(b.TakeSnapshot(tick))
		requireT.False(s.IsDirty())

		snapshot, exists := b.Snapshot(tick)
		requireT.True(exists)
		requireT.Equal(expected, test.CollectSnapshotValues(snapshot, nodeID))
		requireT.Len(expected, int(s.Len()))
	}
}
