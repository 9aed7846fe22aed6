package directory_service

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/inode"
)

// A table is one data block: DirMetaSize bytes of header (a little-endian
// uint16 entry count first) followed by DirEntries fixed-width entries.
//
// Entry layout:
//
//	0       flags (bit 0 is_dir, bit 1 valid)
//	1..15   zero
//	16..47  target capsule name
//	48..303 name, NUL terminated
const (
	FileNameMaxLen = 255

	EntrySize   = 16 + len(cs.Name{}) + FileNameMaxLen + 1
	DirEntries  = (inode.BlockSize - 128) / EntrySize
	DirMetaSize = inode.BlockSize - DirEntries*EntrySize

	offEntryFlags  = 0
	offEntryTarget = 16
	offEntryName   = offEntryTarget + len(cs.Name{})
)

const (
	entryIsDir = 1 << iota
	entryValid
)

type Entry struct {
	Valid  bool
	IsDir  bool
	Name   string
	Target cs.Name
}

type Table struct {
	Length  int
	Entries [DirEntries]Entry
}

func DecodeTable(raw []byte) (*Table, error) {
	if len(raw) < inode.BlockSize {
		return nil, fmt.Errorf("%w: directory block of %d bytes", file_service.ErrCorrupt, len(raw))
	}
	t := &Table{Length: int(binary.LittleEndian.Uint16(raw[0:]))}
	if t.Length > DirEntries {
		return nil, fmt.Errorf("%w: directory length %d exceeds capacity", file_service.ErrCorrupt, t.Length)
	}

	valid := 0
	for i := range t.Entries {
		e := raw[DirMetaSize+i*EntrySize : DirMetaSize+(i+1)*EntrySize]
		flags := e[offEntryFlags]
		if flags&entryValid == 0 {
			continue
		}
		if i != valid {
			return nil, fmt.Errorf("%w: directory entry %d follows an empty slot", file_service.ErrCorrupt, i)
		}
		name := e[offEntryName:]
		end := bytes.IndexByte(name, 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: directory entry %d name not terminated", file_service.ErrCorrupt, i)
		}
		entry := Entry{Valid: true, IsDir: flags&entryIsDir != 0, Name: string(name[:end])}
		copy(entry.Target[:], e[offEntryTarget:offEntryName])
		t.Entries[i] = entry
		valid++
	}
	if valid != t.Length {
		return nil, fmt.Errorf("%w: directory length %d but %d valid entries", file_service.ErrCorrupt, t.Length, valid)
	}
	return t, nil
}

// Encode always produces a full block. Invalid slots are written as zeros.
func (t *Table) Encode() []byte {
	raw := make([]byte, inode.BlockSize)
	binary.LittleEndian.PutUint16(raw[0:], uint16(t.Length))
	for i, entry := range t.Entries {
		if !entry.Valid {
			continue
		}
		e := raw[DirMetaSize+i*EntrySize : DirMetaSize+(i+1)*EntrySize]
		flags := byte(entryValid)
		if entry.IsDir {
			flags |= entryIsDir
		}
		e[offEntryFlags] = flags
		copy(e[offEntryTarget:], entry.Target[:])
		copy(e[offEntryName:offEntryName+FileNameMaxLen], entry.Name)
	}
	return raw
}

// Visible returns the valid entries in slot order.
func (t *Table) Visible() []Entry {
	out := make([]Entry, 0, t.Length)
	for _, e := range t.Entries {
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}

func (t *Table) Find(name string) (int, bool) {
	for i, e := range t.Entries {
		if e.Valid && e.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (t *Table) Full() bool {
	return t.Length >= DirEntries
}

// Insert places e in the first invalid slot.
func (t *Table) Insert(e Entry) error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	for i := range t.Entries {
		if !t.Entries[i].Valid {
			e.Valid = true
			t.Entries[i] = e
			t.Length++
			return nil
		}
	}
	return ErrDirectoryFull
}

// RemoveAt shifts every later entry left one slot and clears the last.
func (t *Table) RemoveAt(i int) {
	if i < 0 || i >= DirEntries || !t.Entries[i].Valid {
		return
	}
	copy(t.Entries[i:], t.Entries[i+1:])
	t.Entries[DirEntries-1] = Entry{}
	t.Length--
}

func ValidateName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > FileNameMaxLen:
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
