package snapshot

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/snapframe/persistent"
	"github.com/outofforest/snapframe/store"
	"github.com/outofforest/snapframe/types"
)

// Source provides attribute stores to take snapshots of.
type Source interface {
	Nodes() []types.NodeID
	Store(nodeID types.NodeID) (*store.Store, error)
}

// Config stores snapshot list configuration.
type Config struct {
	Logger *zap.Logger
}

type layoutRef struct {
	store   *store.Store
	version uint64
	layout  *Layout
}

// New creates new snapshot list. Snapshots are disabled until Enable is called.
func New(config Config, source Source) *List {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &List{
		log:       log,
		source:    source,
		snapshots: newRing[*Snapshot](0),
		layouts:   map[types.NodeID]layoutRef{},
	}
}

// List keeps bounded history of snapshots ordered by tick.
type List struct {
	log       *zap.Logger
	source    Source
	snapshots *ring[*Snapshot]
	layouts   map[types.NodeID]layoutRef

	lastTick    types.Tick
	hasLastTick bool
}

// Enable sets the maximum number of retained snapshots and drops the existing history.
// Zero disables snapshots.
func (l *List) Enable(maxSnapshots uint64) {
	l.snapshots = newRing[*Snapshot](maxSnapshots)
	l.Reset()
	l.log.Info("Snapshots configured", zap.Uint64("capacity", maxSnapshots))
}

// Take captures all the live attribute cells of every node type. Stores are compacted first.
func (l *List) Take(tick types.Tick) error {
	if l.snapshots.Capacity() == 0 {
		return errors.WithStack(types.ErrSnapshotsDisabled)
	}
	if l.hasLastTick && tick <= l.lastTick {
		return errors.Wrapf(types.ErrDuplicateTick, "tick %d is not greater than the last recorded tick %d", tick,
			l.lastTick)
	}

	nodes := l.source.Nodes()
	snapshot := &Snapshot{
		Tick:   tick,
		Blocks: make([]Block, 0, len(nodes)),
	}
	for _, nodeID := range nodes {
		s, err := l.source.Store(nodeID)
		if err != nil {
			return err
		}
		b, err := l.capture(nodeID, s)
		if err != nil {
			return errors.Wrapf(err, "capturing node %d at tick %d failed", nodeID, tick)
		}
		snapshot.Blocks = append(snapshot.Blocks, b)
	}

	if evicted, ok := l.snapshots.Push(snapshot); ok {
		l.log.Debug("Snapshot evicted", zap.Uint64("tick", uint64(evicted.Tick)))
	}
	l.lastTick = tick
	l.hasLastTick = true
	return nil
}

// Get returns snapshot taken at tick.
func (l *List) Get(tick types.Tick) (*Snapshot, bool) {
	n := l.snapshots.Len()
	i := uint64(sort.Search(int(n), func(i int) bool {
		return l.snapshots.At(uint64(i)).Tick >= tick
	}))
	if i == n {
		return nil, false
	}
	s := l.snapshots.At(i)
	if s.Tick != tick {
		return nil, false
	}
	return s, true
}

// Ticks returns ticks of retained snapshots in ascending order.
func (l *List) Ticks() []types.Tick {
	ticks := make([]types.Tick, 0, l.snapshots.Len())
	for i := range l.snapshots.Len() {
		ticks = append(ticks, l.snapshots.At(i).Tick)
	}
	return ticks
}

// Len returns the number of retained snapshots.
func (l *List) Len() uint64 {
	return l.snapshots.Len()
}

// Capacity returns the maximum number of retained snapshots.
func (l *List) Capacity() uint64 {
	return l.snapshots.Capacity()
}

// Reset drops all the snapshots keeping the capacity.
func (l *List) Reset() {
	l.snapshots.Reset()
	clear(l.layouts)
	l.lastTick = 0
	l.hasLastTick = false
}

// Records returns retained snapshots in the form stored in dump files, oldest first.
func (l *List) Records() []persistent.Record {
	records := make([]persistent.Record, 0, l.snapshots.Len())
	for i := range l.snapshots.Len() {
		s := l.snapshots.At(i)
		r := persistent.Record{
			Tick:   s.Tick,
			Blocks: make([]persistent.Block, 0, len(s.Blocks)),
		}
		for _, b := range s.Blocks {
			r.Blocks = append(r.Blocks, persistent.Block{
				NodeID: b.NodeID,
				Keys:   b.Layout.Keys(),
				Cells:  b.Cells,
			})
		}
		records = append(records, r)
	}
	return records
}

// Dump writes retained snapshots to the file in tick order, together with the schema.
func (l *List) Dump(ctx context.Context, path string, schema []byte) error {
	fileStore, closeStore, err := persistent.NewFileStore(path)
	if err != nil {
		return errors.Wrapf(err, "creating dump file %s failed", path)
	}
	defer closeStore()

	records := l.Records()
	size, err := persistent.Write(ctx, fileStore, schema, records)
	if err != nil {
		return errors.Wrapf(err, "writing dump file %s failed", path)
	}

	logger.Get(ctx).Info("Snapshots dumped",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Uint64("bytes", size))
	return nil
}

func (l *List) capture(nodeID types.NodeID, s *store.Store) (Block, error) {
	s.Arrange()

	cells := make([]types.Attribute, s.LastIndex())
	if _, err := s.CopyTo(types.Bytes(cells)); err != nil {
		return Block{}, err
	}

	ref, exists := l.layouts[nodeID]
	if !exists || ref.store != s || ref.version != s.LayoutVersion() {
		keys := make([]types.Key, s.LastIndex())
		if _, err := s.CopyKeysTo(keys); err != nil {
			return Block{}, err
		}
		ref = layoutRef{
			store:   s,
			version: s.LayoutVersion(),
			layout:  newLayout(keys),
		}
		l.layouts[nodeID] = ref
	}

	return Block{
		NodeID: nodeID,
		Layout: ref.layout,
		Cells:  cells,
	}, nil
}
