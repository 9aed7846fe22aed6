package inode

// BlockSlot maps a byte offset to a pointer slot. Offsets below
// DirectPtrsSize map to a direct pointer index; past that, DirectPtrs+i
// names indirect pointer i.
func BlockSlot(offset uint64) int {
	if offset < DirectPtrsSize {
		return int(offset / BlockSize)
	}
	return DirectPtrs + int((offset-DirectPtrsSize)/IndirectPtrSize)
}

func NeedsIndirect(offset uint64) bool {
	return offset >= DirectPtrsSize
}

// SlotWithinIndirect is only meaningful when NeedsIndirect(offset).
func SlotWithinIndirect(offset uint64) int {
	return int(((offset - DirectPtrsSize) % IndirectPtrSize) / BlockSize)
}

// BlockOffset is the position of offset inside its data block. Both region
// sizes are whole multiples of BlockSize, so this holds in either region.
func BlockOffset(offset uint64) int {
	return int(offset % BlockSize)
}
