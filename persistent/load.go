package persistent

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/outofforest/mass"
	"github.com/outofforest/photon"
	"github.com/outofforest/snapframe/types"
)

// Load reads dump file.
func Load(path string) (*Dump, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.Size() < int64(fileHeaderSize) {
		return nil, errors.Wrapf(types.ErrCorruptedDump, "file %s is too short", path)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping file %s failed", path)
	}
	defer func() {
		_ = unix.Munmap(data)
	}()

	return Decode(data)
}

// Decode decodes dump. Returned dump does not reference data.
func Decode(data []byte) (*Dump, error) {
	d := decoder{data: data}

	hb, err := d.next(fileHeaderSize)
	if err != nil {
		return nil, err
	}
	header := *photon.FromBytes[fileHeader](hb)
	if header.Magic != magic {
		return nil, errors.Wrap(types.ErrCorruptedDump, "invalid magic")
	}
	if header.Version != Version {
		return nil, errors.Wrapf(types.ErrCorruptedDump, "unsupported version %d", header.Version)
	}

	schema, err := d.next(int(header.SchemaSize))
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(schema) != header.SchemaHash {
		return nil, errors.Wrap(types.ErrCorruptedDump, "schema hash mismatch")
	}
	if _, err := d.next(padding(len(schema))); err != nil {
		return nil, err
	}

	if uint64(header.NumOfRecords) > uint64((len(d.data)-d.offset)/(recordHeaderSize+ChecksumLength)) {
		return nil, errors.Wrapf(types.ErrCorruptedDump, "invalid number of records %d", header.NumOfRecords)
	}

	dump := &Dump{
		Schema:  bytes.Clone(schema),
		Records: make([]*Record, 0, header.NumOfRecords),
	}
	records := mass.New[Record](max(uint64(header.NumOfRecords), 1))
	for range header.NumOfRecords {
		r := records.New()
		if err := d.record(r); err != nil {
			return nil, err
		}
		dump.Records = append(dump.Records, r)
	}
	if d.offset != len(d.data) {
		return nil, errors.Wrapf(types.ErrCorruptedDump, "%d unexpected bytes at the end", len(d.data)-d.offset)
	}

	return dump, nil
}

type decoder struct {
	data   []byte
	offset int
}

func (d *decoder) next(size int) ([]byte, error) {
	if size < 0 || size > len(d.data)-d.offset {
		return nil, errors.Wrapf(types.ErrCorruptedDump, "%d bytes requested at offset %d, %d available", size,
			d.offset, len(d.data)-d.offset)
	}
	b := d.data[d.offset : d.offset+size]
	d.offset += size
	return b, nil
}

func (d *decoder) record(r *Record) error {
	start := d.offset

	hb, err := d.next(recordHeaderSize)
	if err != nil {
		return err
	}
	header := *photon.FromBytes[recordHeader](hb)
	r.Tick = header.Tick

	// Every block takes at least its header so this bounds the allocation below.
	if header.NumOfBlocks > uint64((len(d.data)-d.offset)/blockHeaderSize) {
		return errors.Wrapf(types.ErrCorruptedDump, "invalid number of blocks at tick %d", r.Tick)
	}
	r.Blocks = make([]Block, 0, header.NumOfBlocks)
	for range header.NumOfBlocks {
		b, err := d.block()
		if err != nil {
			return errors.Wrapf(err, "decoding record of tick %d failed", r.Tick)
		}
		r.Blocks = append(r.Blocks, b)
	}

	checksum := blake3.Sum256(d.data[start:d.offset])
	expected, err := d.next(ChecksumLength)
	if err != nil {
		return err
	}
	if !bytes.Equal(checksum[:], expected) {
		return errors.Wrapf(types.ErrCorruptedDump, "checksum mismatch at tick %d", r.Tick)
	}
	return nil
}

func (d *decoder) block() (Block, error) {
	hb, err := d.next(blockHeaderSize)
	if err != nil {
		return Block{}, err
	}
	header := *photon.FromBytes[blockHeader](hb)

	numOfCells := header.NumOfCells
	if numOfCells > uint64(len(d.data)) || header.DataSize != numOfCells*uint64(types.AttributeSize) {
		return Block{}, errors.Wrapf(types.ErrCorruptedDump, "invalid size of block of node %d", header.NodeID)
	}

	kb, err := d.next(int(numOfCells) * keySize)
	if err != nil {
		return Block{}, err
	}
	cb, err := d.next(int(header.DataSize))
	if err != nil {
		return Block{}, err
	}

	b := Block{
		NodeID: header.NodeID,
		Keys:   make([]types.Key, numOfCells),
		Cells:  make([]types.Attribute, numOfCells),
	}
	if numOfCells > 0 {
		copy(photon.SliceFromPointer[byte](unsafe.Pointer(&b.Keys[0]), len(kb)), kb)
		copy(types.Bytes(b.Cells), cb)
	}
	return b, nil
}
