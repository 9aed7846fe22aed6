package file_service

import (
	"context"
	"fmt"
	"sync/atomic"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/inode"
	"github.com/AnishMulay/capfs/internal/log_service"
)

// Version is the state of a stream as of one record: its inode and the
// record hash the next append must link to.
type Version struct {
	Inode  inode.Inode
	Number uint64
	Hash   cs.Hash
}

// File is an open stream. Every mutation appends a full inode record, so the
// handle itself carries no state besides the capsule connection.
type File struct {
	capsule cs.Capsule
	ls      log_service.LogService
	closed  atomic.Bool
}

func (f *File) Name() cs.Name {
	return f.capsule.Name()
}

func (f *File) check() error {
	if f.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close releases the capsule. Closing twice returns ErrClosed.
func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return translate(f.capsule.Close())
}

// latest reads the authoritative inode: the one in the last record.
func (f *File) latest(ctx context.Context) (Version, error) {
	rec, err := f.capsule.ReadLatest(ctx)
	if err != nil {
		return Version{}, translate(err)
	}
	if rec.Number == 0 {
		return Version{}, fmt.Errorf("%w: capsule %s has no data records", ErrCorrupt, f.Name())
	}
	in, err := inode.DecodeInode(rec.Payload)
	if err != nil {
		return Version{}, translate(err)
	}
	if in.RecordNumber != rec.Number {
		return Version{}, fmt.Errorf("%w: inode claims record %d, log says %d", ErrCorrupt, in.RecordNumber, rec.Number)
	}
	return Version{Inode: in, Number: rec.Number, Hash: rec.Hash}, nil
}

func (f *File) readRecord(ctx context.Context, recno uint32) (*inode.Record, error) {
	rec, err := f.capsule.Read(ctx, uint64(recno))
	if err != nil {
		return nil, translate(err)
	}
	dec, err := inode.DecodeRecord(rec.Payload)
	if err != nil {
		return nil, translate(err)
	}
	if dec.Inode.RecordNumber != uint64(recno) {
		return nil, fmt.Errorf("%w: record %d carries inode of record %d", ErrCorrupt, recno, dec.Inode.RecordNumber)
	}
	return dec, nil
}

// indirectTable returns the table held by an indirect host record.
func (f *File) indirectTable(ctx context.Context, host uint32, cache map[uint32]*inode.IndirectBlock) (*inode.IndirectBlock, error) {
	if t, ok := cache[host]; ok {
		return t, nil
	}
	rec, err := f.readRecord(ctx, host)
	if err != nil {
		return nil, err
	}
	if rec.Indirect == nil {
		return nil, fmt.Errorf("%w: record %d is referenced as an indirect block", ErrCorrupt, host)
	}
	if cache != nil {
		cache[host] = rec.Indirect
	}
	return rec.Indirect, nil
}

// blockPointer resolves the record holding the data block at offset.
// Unallocated comes back as inode.Unallocated with a nil error.
func (f *File) blockPointer(ctx context.Context, in *inode.Inode, offset uint64, cache map[uint32]*inode.IndirectBlock) (uint32, error) {
	ptr, err := in.Slot(inode.BlockSlot(offset))
	if err != nil {
		return 0, err
	}
	if !inode.NeedsIndirect(offset) || ptr == inode.Unallocated {
		return ptr, nil
	}
	table, err := f.indirectTable(ctx, ptr, cache)
	if err != nil {
		return 0, err
	}
	return table.Get(inode.SlotWithinIndirect(offset))
}

func (f *File) block(ctx context.Context, recno uint32) ([]byte, error) {
	rec, err := f.readRecord(ctx, recno)
	if err != nil {
		return nil, err
	}
	return rec.Block, nil
}

// Read fills buf from offset. The whole range must lie within the stream.
func (f *File) Read(ctx context.Context, buf []byte, offset uint64) error {
	_, err := f.ReadVersion(ctx, buf, offset)
	return err
}

// ReadVersion is Read that also reports the version it read, for callers
// that will write back conditioned on it.
func (f *File) ReadVersion(ctx context.Context, buf []byte, offset uint64) (Version, error) {
	if err := f.check(); err != nil {
		return Version{}, err
	}
	v, err := f.latest(ctx)
	if err != nil {
		return Version{}, err
	}
	if offset+uint64(len(buf)) > v.Inode.Length || offset+uint64(len(buf)) < offset {
		return Version{}, fmt.Errorf("%w: read [%d, %d) of %d bytes", ErrEndOfFile, offset, offset+uint64(len(buf)), v.Inode.Length)
	}

	cache := make(map[uint32]*inode.IndirectBlock)
	for len(buf) > 0 {
		ptr, err := f.blockPointer(ctx, &v.Inode, offset, cache)
		if err != nil {
			return Version{}, err
		}
		if ptr == inode.Unallocated {
			return Version{}, fmt.Errorf("%w: offset %d is inside the file but unallocated", ErrCorrupt, offset)
		}
		data, err := f.block(ctx, ptr)
		if err != nil {
			return Version{}, err
		}
		n := copy(buf, data[inode.BlockOffset(offset):])
		buf = buf[n:]
		offset += uint64(n)
	}
	return v, nil
}

// Write stores buf at offset, appending one record per touched block.
func (f *File) Write(ctx context.Context, buf []byte, offset uint64) error {
	if err := f.check(); err != nil {
		return err
	}
	base, err := f.latest(ctx)
	if err != nil {
		return err
	}
	_, err = f.WriteVersion(ctx, buf, offset, base)
	return err
}

// WriteVersion writes relative to base. If another writer appended since
// base was read, the first append fails with ErrConcurrentModification and
// nothing is written. Blocks are appended one by one, so a failure later in
// a multi-block write leaves the blocks before it applied.
func (f *File) WriteVersion(ctx context.Context, buf []byte, offset uint64, base Version) (Version, error) {
	if err := f.check(); err != nil {
		return Version{}, err
	}
	if offset > base.Inode.Length {
		return Version{}, fmt.Errorf("%w: write at %d past length %d", ErrEndOfFile, offset, base.Inode.Length)
	}
	end := offset + uint64(len(buf))
	if end > inode.MaxFileSize || end < offset {
		return Version{}, fmt.Errorf("%w: write ends at %d", ErrFileTooLarge, end)
	}

	cur := base
	cache := make(map[uint32]*inode.IndirectBlock)
	for len(buf) > 0 {
		inBlock := inode.BlockOffset(offset)
		n := min(inode.BlockSize-inBlock, len(buf))

		next, err := f.appendBlock(ctx, cur, offset, buf[:n], cache)
		if err != nil {
			return Version{}, err
		}
		cur = next
		buf = buf[n:]
		offset += uint64(n)
	}
	return cur, nil
}

// appendBlock splices data into the block at offset and appends the record
// that makes it current.
func (f *File) appendBlock(ctx context.Context, cur Version, offset uint64, data []byte, cache map[uint32]*inode.IndirectBlock) (Version, error) {
	nextNum := cur.Number + 1
	if nextNum > inode.MaxRecordNumber {
		return Version{}, fmt.Errorf("%w: capsule %s", ErrLogExhausted, f.Name())
	}

	in := cur.Inode
	slot := inode.BlockSlot(offset)
	inBlock := inode.BlockOffset(offset)
	partial := inBlock != 0 || len(data) != inode.BlockSize

	rec := &inode.Record{Block: make([]byte, inode.BlockSize)}
	existing := inode.Unallocated

	if inode.NeedsIndirect(offset) {
		host, err := in.Slot(slot)
		if err != nil {
			return Version{}, err
		}
		table := new(inode.IndirectBlock)
		if host != inode.Unallocated {
			old, err := f.indirectTable(ctx, host, cache)
			if err != nil {
				return Version{}, err
			}
			*table = *old
		}
		within := inode.SlotWithinIndirect(offset)
		if existing, err = table.Get(within); err != nil {
			return Version{}, err
		}
		// This record hosts the updated table and also holds the block.
		if err := table.Set(within, uint32(nextNum)); err != nil {
			return Version{}, err
		}
		rec.Indirect = table
		in.HasIndirectBlock = true
	} else {
		var err error
		if existing, err = in.Slot(slot); err != nil {
			return Version{}, err
		}
		in.HasIndirectBlock = false
	}

	if partial && existing != inode.Unallocated {
		old, err := f.block(ctx, existing)
		if err != nil {
			return Version{}, err
		}
		copy(rec.Block, old)
	}
	copy(rec.Block[inBlock:], data)

	if err := in.SetSlot(slot, uint32(nextNum)); err != nil {
		return Version{}, err
	}
	in.RecordNumber = nextNum
	in.Length = max(in.Length, offset+uint64(len(data)))
	rec.Inode = in

	payload, err := inode.EncodeRecord(rec)
	if err != nil {
		return Version{}, err
	}
	appended, err := f.capsule.Append(ctx, payload, cur.Hash)
	if err != nil {
		f.ls.Debug(log_service.LogEvent{
			Message:  "Block append failed",
			Metadata: map[string]any{"capsule": f.Name().String(), "record": nextNum, "error": err.Error()},
		})
		return Version{}, translate(err)
	}
	if appended.Number != nextNum {
		return Version{}, fmt.Errorf("%w: appended record %d, expected %d", ErrCorrupt, appended.Number, nextNum)
	}
	if rec.Indirect != nil {
		cache[uint32(nextNum)] = rec.Indirect
	}
	return Version{Inode: in, Number: nextNum, Hash: appended.Hash}, nil
}

// Length reads only the latest inode.
func (f *File) Length(ctx context.Context) (uint64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	v, err := f.latest(ctx)
	if err != nil {
		return 0, err
	}
	return v.Inode.Length, nil
}

func (f *File) IsDir(ctx context.Context) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	v, err := f.latest(ctx)
	if err != nil {
		return false, err
	}
	return v.Inode.IsDir, nil
}

// Truncate shrinks the stream to size. Growing is not supported. Blocks past
// the new end stay in the log, unreachable.
func (f *File) Truncate(ctx context.Context, size uint64) error {
	if err := f.check(); err != nil {
		return err
	}
	v, err := f.latest(ctx)
	if err != nil {
		return err
	}
	if size > v.Inode.Length {
		return fmt.Errorf("%w: truncate to %d grows file of %d bytes", ErrInvalidArgument, size, v.Inode.Length)
	}
	nextNum := v.Number + 1
	if nextNum > inode.MaxRecordNumber {
		return fmt.Errorf("%w: capsule %s", ErrLogExhausted, f.Name())
	}

	in := v.Inode
	in.RecordNumber = nextNum
	in.Length = size
	in.HasIndirectBlock = false
	payload, err := inode.EncodeRecord(&inode.Record{Inode: in})
	if err != nil {
		return err
	}
	appended, err := f.capsule.Append(ctx, payload, v.Hash)
	if err != nil {
		return translate(err)
	}
	if appended.Number != nextNum {
		return fmt.Errorf("%w: appended record %d, expected %d", ErrCorrupt, appended.Number, nextNum)
	}

	f.ls.Debug(log_service.LogEvent{
		Message:  "Truncated file",
		Metadata: map[string]any{"capsule": f.Name().String(), "from": v.Inode.Length, "to": size},
	})
	return nil
}
