package inode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleInode(hasIndirect bool) Inode {
	in := New(true)
	in.RecordNumber = 42
	in.Length = DirectPtrsSize + 5
	in.HasIndirectBlock = hasIndirect
	in.DirectPtrs[0] = 2
	in.DirectPtrs[DirectPtrs-1] = 9
	in.IndirectPtrs[0] = 41
	return in
}

func TestRecord_RoundTrip(t *testing.T) {
	block := bytes.Repeat([]byte{0xa5}, BlockSize)
	indirect := new(IndirectBlock)
	indirect[0] = 40
	indirect[DirectInIndirect-1] = 3

	tests := []struct {
		name string
		rec  *Record
	}{
		{"plain", &Record{Inode: sampleInode(false), Block: block}},
		{"indirect host", &Record{Inode: sampleInode(true), Indirect: indirect, Block: block}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := EncodeRecord(tt.rec)
			if err != nil {
				t.Fatalf("EncodeRecord() error = %v", err)
			}
			if len(payload) != RecordSize(tt.rec.Inode.HasIndirectBlock) {
				t.Errorf("len(payload) = %d, want %d", len(payload), RecordSize(tt.rec.Inode.HasIndirectBlock))
			}
			got, err := DecodeRecord(payload)
			if err != nil {
				t.Fatalf("DecodeRecord() error = %v", err)
			}
			if diff := cmp.Diff(tt.rec, got); diff != "" {
				t.Errorf("DecodeRecord() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeRecord_Layout(t *testing.T) {
	in := sampleInode(false)
	payload, err := EncodeRecord(&Record{Inode: in, Block: []byte("tail")})
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	if payload[0] != flagIsDir {
		t.Errorf("flags = %#x, want %#x", payload[0], flagIsDir)
	}
	if got := binary.LittleEndian.Uint64(payload[8:]); got != 42 {
		t.Errorf("record number = %d, want 42", got)
	}
	if got := binary.LittleEndian.Uint64(payload[16:]); got != in.Length {
		t.Errorf("length = %d, want %d", got, in.Length)
	}
	if got := binary.LittleEndian.Uint32(payload[InodeMetaSize:]); got != 2 {
		t.Errorf("first direct pointer = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(payload[InodeMetaSize+DirectPtrs*PtrSize:]); got != 41 {
		t.Errorf("first indirect pointer = %d, want 41", got)
	}
	if !bytes.Equal(payload[InodeSize:InodeSize+4], []byte("tail")) {
		t.Errorf("block does not start right after the header")
	}
	if !bytes.Equal(payload[InodeSize+4:], make([]byte, BlockSize-4)) {
		t.Errorf("short block was not zero padded")
	}
}

func TestEncodeRecord_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rec  *Record
	}{
		{"oversized block", &Record{Inode: New(false), Block: make([]byte, BlockSize+1)}},
		{"flag without table", &Record{Inode: sampleInode(true)}},
		{"table without flag", &Record{Inode: sampleInode(false), Indirect: new(IndirectBlock)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeRecord(tt.rec); err == nil {
				t.Errorf("EncodeRecord() error = nil, want error")
			}
		})
	}
}

func TestDecodeRecord_ShortPayload(t *testing.T) {
	plain, err := EncodeRecord(&Record{Inode: sampleInode(false)})
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	host, err := EncodeRecord(&Record{Inode: sampleInode(true), Indirect: new(IndirectBlock)})
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"metadata only", make([]byte, 64)},
		{"header without block", plain[:InodeSize]},
		{"one byte short", plain[:len(plain)-1]},
		{"indirect host missing block", host[:InodeSize+IndirectSize]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRecord(tt.payload); !errors.Is(err, ErrCorrupt) {
				t.Errorf("DecodeRecord() error = %v, want ErrCorrupt", err)
			}
			if _, err := DecodeInode(tt.payload); !errors.Is(err, ErrCorrupt) {
				t.Errorf("DecodeInode() error = %v, want ErrCorrupt", err)
			}
		})
	}
}
