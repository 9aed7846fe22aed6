package directory_service

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/inode"
)

func target(b byte) cs.Name {
	var n cs.Name
	for i := range n {
		n[i] = b
	}
	return n
}

func TestTableLayout(t *testing.T) {
	if EntrySize != 304 {
		t.Errorf("EntrySize = %d, want 304", EntrySize)
	}
	if DirEntries != 107 {
		t.Errorf("DirEntries = %d, want 107", DirEntries)
	}
	if DirMetaSize+DirEntries*EntrySize != inode.BlockSize {
		t.Errorf("table does not fill one block: %d + %d*%d", DirMetaSize, DirEntries, EntrySize)
	}
}

func TestTable_EncodeDecode(t *testing.T) {
	var tbl Table
	for i, name := range []string{"a", "dir", strings.Repeat("n", FileNameMaxLen)} {
		if err := tbl.Insert(Entry{Name: name, IsDir: i == 1, Target: target(byte(i + 1))}); err != nil {
			t.Fatalf("Insert(%q) error = %v", name, err)
		}
	}

	raw := tbl.Encode()
	if len(raw) != inode.BlockSize {
		t.Fatalf("len(Encode()) = %d, want %d", len(raw), inode.BlockSize)
	}
	got, err := DecodeTable(raw)
	if err != nil {
		t.Fatalf("DecodeTable() error = %v", err)
	}
	if diff := cmp.Diff(&tbl, got); diff != "" {
		t.Errorf("DecodeTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestTable_RemoveZeroesTail(t *testing.T) {
	var tbl Table
	for i, name := range []string{"a", "b", "c"} {
		if err := tbl.Insert(Entry{Name: name, Target: target(byte(i + 1))}); err != nil {
			t.Fatal(err)
		}
	}
	tbl.RemoveAt(0)

	if tbl.Length != 2 {
		t.Fatalf("Length = %d, want 2", tbl.Length)
	}
	var names []string
	for _, e := range tbl.Visible() {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"b", "c"}, names); diff != "" {
		t.Errorf("Visible() mismatch (-want +got):\n%s", diff)
	}

	raw := tbl.Encode()
	tail := raw[DirMetaSize+2*EntrySize:]
	if !bytes.Equal(tail, make([]byte, len(tail))) {
		t.Error("vacated slots are not zero-filled")
	}
}

func TestTable_InsertFull(t *testing.T) {
	var tbl Table
	for i := 0; i < DirEntries; i++ {
		if err := tbl.Insert(Entry{Name: string(rune('A'+i%26)) + string(rune('a'+i/26))}); err != nil {
			t.Fatalf("Insert #%d error = %v", i, err)
		}
	}
	if !tbl.Full() {
		t.Fatal("Full() = false after DirEntries inserts")
	}
	if err := tbl.Insert(Entry{Name: "overflow"}); !errors.Is(err, ErrDirectoryFull) {
		t.Errorf("Insert() error = %v, want ErrDirectoryFull", err)
	}
}

func TestDecodeTable_Corrupt(t *testing.T) {
	valid := func() []byte {
		var tbl Table
		_ = tbl.Insert(Entry{Name: "x", Target: target(9)})
		return tbl.Encode()
	}

	tests := []struct {
		name string
		raw  func() []byte
	}{
		{"short block", func() []byte { return valid()[:inode.BlockSize-1] }},
		{"length larger than valid count", func() []byte {
			raw := valid()
			binary.LittleEndian.PutUint16(raw, 2)
			return raw
		}},
		{"length past capacity", func() []byte {
			raw := valid()
			binary.LittleEndian.PutUint16(raw, uint16(DirEntries+1))
			return raw
		}},
		{"valid entry after a hole", func() []byte {
			raw := valid()
			first := raw[DirMetaSize : DirMetaSize+EntrySize]
			copy(raw[DirMetaSize+EntrySize:DirMetaSize+2*EntrySize], first)
			clear(first)
			return raw
		}},
		{"unterminated name", func() []byte {
			raw := valid()
			name := raw[DirMetaSize+offEntryName : DirMetaSize+EntrySize]
			for i := range name {
				name[i] = 'z'
			}
			return raw
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTable(tt.raw()); !errors.Is(err, file_service.ErrCorrupt) {
				t.Errorf("DecodeTable() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"ok", nil},
		{"", ErrInvalidName},
		{".", ErrInvalidName},
		{"..", ErrInvalidName},
		{"a/b", ErrInvalidName},
		{"nul\x00", ErrInvalidName},
		{strings.Repeat("x", FileNameMaxLen), nil},
		{strings.Repeat("x", FileNameMaxLen+1), ErrNameTooLong},
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.want == nil && err != nil {
			t.Errorf("ValidateName(%q) error = %v, want nil", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("ValidateName(%q) error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if !errors.Is(ValidateName("a/b"), file_service.ErrInvalidArgument) {
		t.Error("ErrInvalidName does not wrap ErrInvalidArgument")
	}
}
