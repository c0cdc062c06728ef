package persistent

import (
	"context"
	"unsafe"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/outofforest/parallel"
	"github.com/outofforest/photon"
	"github.com/outofforest/snapframe/types"
)

// Version is the version of dump format.
const Version uint32 = 1

// ChecksumLength is the length of record checksum.
const ChecksumLength = 32

var magic = [8]byte{'S', 'N', 'A', 'P', 'F', 'R', 'M', 'E'}

// Dump layout:
//
//	fileHeader | schema (padded to 8 bytes) | record...
//
// record:
//
//	recordHeader | block... | checksum of everything since recordHeader
//
// block:
//
//	blockHeader | keys | attribute cells
type fileHeader struct {
	Magic        [8]byte
	Version      uint32
	NumOfRecords uint32
	SchemaSize   uint64
	SchemaHash   uint64
}

type recordHeader struct {
	Tick        types.Tick
	NumOfBlocks uint64
}

type blockHeader struct {
	NodeID     types.NodeID
	_          [6]byte
	NumOfCells uint64
	DataSize   uint64
}

const (
	fileHeaderSize   = int(unsafe.Sizeof(fileHeader{}))
	recordHeaderSize = int(unsafe.Sizeof(recordHeader{}))
	blockHeaderSize  = int(unsafe.Sizeof(blockHeader{}))
	keySize          = int(unsafe.Sizeof(types.Key(0)))
)

var zeroPadding = make([]byte, types.UInt64Length)

// Block stores attribute cells of one node type together with their keys, in physical order.
type Block struct {
	NodeID types.NodeID
	Keys   []types.Key
	Cells  []types.Attribute
}

// Record is the snapshot taken at tick.
type Record struct {
	Tick   types.Tick
	Blocks []Block
}

// Dump is the content of dump file.
type Dump struct {
	Schema  []byte
	Records []*Record
}

// Write writes records to the store. Record memory is not copied, so records must not change until Write returns.
func Write(ctx context.Context, store Store, schema []byte, records []Record) (uint64, error) {
	var written uint64
	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		chunkCh := make(chan []byte, 64)

		spawn("encoder", parallel.Continue, func(ctx context.Context) error {
			defer close(chunkCh)

			send := func(chunk []byte) error {
				select {
				case <-ctx.Done():
					return errors.WithStack(ctx.Err())
				case chunkCh <- chunk:
					return nil
				}
			}
			return encode(schema, records, send)
		})
		spawn("writer", parallel.Continue, func(ctx context.Context) error {
			for chunk := range chunkCh {
				if err := store.Write(chunk); err != nil {
					return err
				}
				written += uint64(len(chunk))
			}
			return store.Sync()
		})

		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func encode(schema []byte, records []Record, send func([]byte) error) error {
	header := &fileHeader{
		Magic:        magic,
		Version:      Version,
		NumOfRecords: uint32(len(records)),
		SchemaSize:   uint64(len(schema)),
		SchemaHash:   xxhash.Sum64(schema),
	}
	if err := send(photon.NewFromValue(header).B); err != nil {
		return err
	}
	if len(schema) > 0 {
		if err := send(schema); err != nil {
			return err
		}
	}
	if padding := padding(len(schema)); padding > 0 {
		if err := send(zeroPadding[:padding]); err != nil {
			return err
		}
	}

	for i := range records {
		r := &records[i]
		hasher := blake3.New()
		emit := func(chunk []byte) error {
			_, _ = hasher.Write(chunk)
			return send(chunk)
		}

		if err := emit(photon.NewFromValue(&recordHeader{
			Tick:        r.Tick,
			NumOfBlocks: uint64(len(r.Blocks)),
		}).B); err != nil {
			return err
		}

		for _, b := range r.Blocks {
			if len(b.Keys) != len(b.Cells) {
				return errors.Errorf("block of node %d at tick %d has %d keys and %d cells", b.NodeID, r.Tick,
					len(b.Keys), len(b.Cells))
			}

			cells := types.Bytes(b.Cells)
			if err := emit(photon.NewFromValue(&blockHeader{
				NodeID:     b.NodeID,
				NumOfCells: uint64(len(b.Cells)),
				DataSize:   uint64(len(cells)),
			}).B); err != nil {
				return err
			}
			if len(b.Keys) == 0 {
				continue
			}
			if err := emit(photon.SliceFromPointer[byte](unsafe.Pointer(&b.Keys[0]), len(b.Keys)*keySize)); err != nil {
				return err
			}
			if err := emit(cells); err != nil {
				return err
			}
		}

		if err := send(hasher.Sum(nil)); err != nil {
			return err
		}
	}

	return nil
}

func padding(size int) int {
	return (types.UInt64Length - size%types.UInt64Length) % types.UInt64Length
}
