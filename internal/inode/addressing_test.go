package inode

import "testing"

func TestConstants(t *testing.T) {
	tests := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"direct pointers", DirectPtrs, 1530},
		{"indirect pointers", IndirectPtrs, 510},
		{"pointers per indirect block", DirectInIndirect, 2048},
		{"direct region", DirectPtrsSize, 1530 * 32 * 1024},
		{"indirect span", IndirectPtrSize, 64 << 20},
		{"header fills budget", InodeMetaSize + (DirectPtrs+IndirectPtrs)*PtrSize, InodeSize},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestBlockAddressing(t *testing.T) {
	tests := []struct {
		name         string
		offset       uint64
		wantSlot     int
		wantIndirect bool
		wantWithin   int
		wantInBlock  int
	}{
		{name: "zero", offset: 0, wantSlot: 0},
		{name: "inside first block", offset: 100, wantSlot: 0, wantInBlock: 100},
		{name: "second block", offset: BlockSize, wantSlot: 1},
		{name: "last direct byte", offset: DirectPtrsSize - 1, wantSlot: DirectPtrs - 1, wantInBlock: BlockSize - 1},
		{name: "first indirect byte", offset: DirectPtrsSize, wantSlot: DirectPtrs, wantIndirect: true},
		{
			name: "second block of first indirect", offset: DirectPtrsSize + BlockSize + 7,
			wantSlot: DirectPtrs, wantIndirect: true, wantWithin: 1, wantInBlock: 7,
		},
		{
			name: "last block of first indirect", offset: DirectPtrsSize + IndirectPtrSize - 1,
			wantSlot: DirectPtrs, wantIndirect: true, wantWithin: DirectInIndirect - 1, wantInBlock: BlockSize - 1,
		},
		{
			name: "second indirect", offset: DirectPtrsSize + IndirectPtrSize,
			wantSlot: DirectPtrs + 1, wantIndirect: true,
		},
		{
			name: "last addressable byte", offset: MaxFileSize - 1,
			wantSlot: DirectPtrs + IndirectPtrs - 1, wantIndirect: true, wantWithin: DirectInIndirect - 1, wantInBlock: BlockSize - 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BlockSlot(tt.offset); got != tt.wantSlot {
				t.Errorf("BlockSlot(%d) = %d, want %d", tt.offset, got, tt.wantSlot)
			}
			if got := NeedsIndirect(tt.offset); got != tt.wantIndirect {
				t.Errorf("NeedsIndirect(%d) = %t, want %t", tt.offset, got, tt.wantIndirect)
			}
			if tt.wantIndirect {
				if got := SlotWithinIndirect(tt.offset); got != tt.wantWithin {
					t.Errorf("SlotWithinIndirect(%d) = %d, want %d", tt.offset, got, tt.wantWithin)
				}
			}
			if got := BlockOffset(tt.offset); got != tt.wantInBlock {
				t.Errorf("BlockOffset(%d) = %d, want %d", tt.offset, got, tt.wantInBlock)
			}
		})
	}
}

func TestInodeSlotBounds(t *testing.T) {
	in := New(false)
	for _, slot := range []int{0, DirectPtrs - 1, DirectPtrs, DirectPtrs + IndirectPtrs - 1} {
		if err := in.SetSlot(slot, uint32(slot+1)); err != nil {
			t.Fatalf("SetSlot(%d) error = %v", slot, err)
		}
		got, err := in.Slot(slot)
		if err != nil || got != uint32(slot+1) {
			t.Errorf("Slot(%d) = %d, %v, want %d", slot, got, err, slot+1)
		}
	}
	if in.IndirectPtrs[0] != DirectPtrs+1 {
		t.Errorf("slot DirectPtrs landed in IndirectPtrs[0] = %d", in.IndirectPtrs[0])
	}
	for _, slot := range []int{-1, DirectPtrs + IndirectPtrs} {
		if _, err := in.Slot(slot); err == nil {
			t.Errorf("Slot(%d) error = nil, want out of range", slot)
		}
		if err := in.SetSlot(slot, 1); err == nil {
			t.Errorf("SetSlot(%d) error = nil, want out of range", slot)
		}
	}

	var ib IndirectBlock
	if err := ib.Set(DirectInIndirect, 1); err == nil {
		t.Errorf("IndirectBlock.Set() past end error = nil")
	}
	if _, err := ib.Get(-1); err == nil {
		t.Errorf("IndirectBlock.Get(-1) error = nil")
	}
}
