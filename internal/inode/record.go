package inode

import (
	"encoding/binary"
	"fmt"
)

const (
	flagIsDir = 1 << iota
	flagHasIndirectBlock
)

const (
	offFlags        = 0
	offRecordNumber = 8
	offLength       = 16
	offDirectPtrs   = InodeMetaSize
	offIndirectPtrs = offDirectPtrs + DirectPtrs*PtrSize
)

// Record is the decoded payload of one data-bearing log record.
// Indirect is non-nil exactly when Inode.HasIndirectBlock is set.
type Record struct {
	Inode    Inode
	Indirect *IndirectBlock
	Block    []byte
}

// RecordSize is the payload length of a record with or without an indirect
// table.
func RecordSize(hasIndirect bool) int {
	if hasIndirect {
		return InodeSize + IndirectSize + BlockSize
	}
	return InodeSize + BlockSize
}

func putInode(dst []byte, in *Inode) {
	var flags byte
	if in.IsDir {
		flags |= flagIsDir
	}
	if in.HasIndirectBlock {
		flags |= flagHasIndirectBlock
	}
	dst[offFlags] = flags
	binary.LittleEndian.PutUint64(dst[offRecordNumber:], in.RecordNumber)
	binary.LittleEndian.PutUint64(dst[offLength:], in.Length)
	for i, p := range in.DirectPtrs {
		binary.LittleEndian.PutUint32(dst[offDirectPtrs+i*PtrSize:], p)
	}
	for i, p := range in.IndirectPtrs {
		binary.LittleEndian.PutUint32(dst[offIndirectPtrs+i*PtrSize:], p)
	}
}

// EncodeRecord lays out inode ++ [indirect] ++ block. A block shorter than
// BlockSize is zero padded; a longer one is an error.
func EncodeRecord(rec *Record) ([]byte, error) {
	if len(rec.Block) > BlockSize {
		return nil, fmt.Errorf("data block of %d bytes exceeds block size", len(rec.Block))
	}
	hasIndirect := rec.Inode.HasIndirectBlock
	if hasIndirect != (rec.Indirect != nil) {
		return nil, fmt.Errorf("indirect flag %t does not match indirect table presence", hasIndirect)
	}

	out := make([]byte, RecordSize(hasIndirect))
	putInode(out, &rec.Inode)
	pos := InodeSize
	if hasIndirect {
		for i, p := range rec.Indirect {
			binary.LittleEndian.PutUint32(out[pos+i*PtrSize:], p)
		}
		pos += IndirectSize
	}
	copy(out[pos:], rec.Block)
	return out, nil
}

// DecodeInode parses only the header. The payload must still be long enough
// to be a whole record.
func DecodeInode(payload []byte) (Inode, error) {
	var in Inode
	if len(payload) < InodeSize {
		return in, fmt.Errorf("%w: %d bytes, header needs %d", ErrCorrupt, len(payload), InodeSize)
	}
	flags := payload[offFlags]
	in.IsDir = flags&flagIsDir != 0
	in.HasIndirectBlock = flags&flagHasIndirectBlock != 0
	if need := RecordSize(in.HasIndirectBlock); len(payload) < need {
		return in, fmt.Errorf("%w: %d bytes, record needs %d", ErrCorrupt, len(payload), need)
	}

	in.RecordNumber = binary.LittleEndian.Uint64(payload[offRecordNumber:])
	in.Length = binary.LittleEndian.Uint64(payload[offLength:])
	if in.Length > MaxFileSize {
		return in, fmt.Errorf("%w: length %d exceeds maximum file size", ErrCorrupt, in.Length)
	}
	for i := range in.DirectPtrs {
		in.DirectPtrs[i] = binary.LittleEndian.Uint32(payload[offDirectPtrs+i*PtrSize:])
	}
	for i := range in.IndirectPtrs {
		in.IndirectPtrs[i] = binary.LittleEndian.Uint32(payload[offIndirectPtrs+i*PtrSize:])
	}
	return in, nil
}

func DecodeRecord(payload []byte) (*Record, error) {
	in, err := DecodeInode(payload)
	if err != nil {
		return nil, err
	}
	rec := &Record{Inode: in}
	pos := InodeSize
	if in.HasIndirectBlock {
		rec.Indirect = new(IndirectBlock)
		for i := range rec.Indirect {
			rec.Indirect[i] = binary.LittleEndian.Uint32(payload[pos+i*PtrSize:])
		}
		pos += IndirectSize
	}
	rec.Block = make([]byte, BlockSize)
	copy(rec.Block, payload[pos:pos+BlockSize])
	return rec, nil
}
