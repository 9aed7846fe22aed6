// Package inode defines the fixed on-log layout of a capfs stream: the inode
// header carried by every record, the optional indirect block and the single
// data block that follows, plus the offset arithmetic that maps a byte offset
// onto pointer slots.
package inode

import "fmt"

const (
	BlockSize = 32 * 1024

	// The inode header is InodeMetaSize bytes of scalar fields followed by
	// 4-byte record-number slots, three quarters direct and one quarter
	// indirect.
	InodeSize     = 8 * 1024
	InodeMetaSize = 32
	PtrSize       = 4
	inodeSlots    = (InodeSize - InodeMetaSize) / PtrSize

	DirectPtrs   = inodeSlots * 3 / 4
	IndirectPtrs = inodeSlots - DirectPtrs

	IndirectSize     = 8 * 1024
	DirectInIndirect = IndirectSize / PtrSize

	DirectPtrsSize  = uint64(DirectPtrs) * BlockSize
	IndirectPtrSize = uint64(DirectInIndirect) * BlockSize
	MaxFileSize     = DirectPtrsSize + uint64(IndirectPtrs)*IndirectPtrSize

	// MaxRecordNumber is the largest record number a pointer slot can hold.
	MaxRecordNumber = uint64(^uint32(0))
)

// Unallocated marks a pointer slot that has never been written. Record 0 of a
// capsule is its metadata record, so no data block can live there.
const Unallocated uint32 = 0

type Inode struct {
	IsDir            bool
	HasIndirectBlock bool
	RecordNumber     uint64
	Length           uint64
	DirectPtrs       [DirectPtrs]uint32
	IndirectPtrs     [IndirectPtrs]uint32
}

// New returns the inode of a freshly created stream.
func New(isDir bool) Inode {
	return Inode{IsDir: isDir, RecordNumber: 1}
}

// Slot returns the pointer at a BlockSlot index: direct pointers first, then
// indirect pointers from DirectPtrs on.
func (in *Inode) Slot(slot int) (uint32, error) {
	switch {
	case slot >= 0 && slot < DirectPtrs:
		return in.DirectPtrs[slot], nil
	case slot >= DirectPtrs && slot < DirectPtrs+IndirectPtrs:
		return in.IndirectPtrs[slot-DirectPtrs], nil
	default:
		return 0, fmt.Errorf("%w: inode slot %d", ErrOutOfRange, slot)
	}
}

func (in *Inode) SetSlot(slot int, recno uint32) error {
	switch {
	case slot >= 0 && slot < DirectPtrs:
		in.DirectPtrs[slot] = recno
	case slot >= DirectPtrs && slot < DirectPtrs+IndirectPtrs:
		in.IndirectPtrs[slot-DirectPtrs] = recno
	default:
		return fmt.Errorf("%w: inode slot %d", ErrOutOfRange, slot)
	}
	return nil
}

// IndirectBlock is the table of record numbers carried by an indirect host
// record.
type IndirectBlock [DirectInIndirect]uint32

func (ib *IndirectBlock) Get(i int) (uint32, error) {
	if i < 0 || i >= DirectInIndirect {
		return 0, fmt.Errorf("%w: indirect slot %d", ErrOutOfRange, i)
	}
	return ib[i], nil
}

func (ib *IndirectBlock) Set(i int, recno uint32) error {
	if i < 0 || i >= DirectInIndirect {
		return fmt.Errorf("%w: indirect slot %d", ErrOutOfRange, i)
	}
	ib[i] = recno
	return nil
}
