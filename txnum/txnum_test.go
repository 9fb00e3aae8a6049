package txnum

import "testing"

func TestConstructRoundTrip(t *testing.T) {
	cases := []struct {
		height uint32
		index  uint32
	}{
		{0, 0},
		{1, 1},
		{100, 2},
		{1 << 30, MaxIndex},
		{0xFFFFFFFF, 0},
	}
	for _, c := range cases {
		txNum, err := Construct(c.height, c.index)
		if err != nil {
			t.Fatalf("Construct(%d, %d) failed: %v", c.height, c.index, err)
		}
		if got := BlockOf(txNum); got != c.height {
			t.Fatalf("BlockOf(Construct(%d, %d)) = %d, want %d", c.height, c.index, got, c.height)
		}
		if got := IndexOf(txNum); got != c.index {
			t.Fatalf("IndexOf(Construct(%d, %d)) = %d, want %d", c.height, c.index, got, c.index)
		}
	}
}

func TestConstructAcceptsBoundaryIndices(t *testing.T) {
	if _, err := Construct(1, 0); err != nil {
		t.Fatalf("Construct with index 0 should be accepted, got %v", err)
	}
	if _, err := Construct(1, MaxIndex); err != nil {
		t.Fatalf("Construct with index %d (max) should be accepted, got %v", MaxIndex, err)
	}
}

func TestConstructRejectsOutOfRangeIndex(t *testing.T) {
	if _, err := Construct(1, MaxIndex+1); err == nil {
		t.Fatalf("Construct with index 0x%x (max+1) should be rejected", MaxIndex+1)
	}
}

func TestConstructDoesNotCollideAcrossRejectedIndex(t *testing.T) {
	zero, err := Construct(5, 0)
	if err != nil {
		t.Fatalf("Construct(5, 0) failed: %v", err)
	}
	if _, err := Construct(5, MaxIndex+1); err == nil {
		t.Fatal("Construct(5, MaxIndex+1) should be rejected rather than silently wrapping to collide with index 0")
	}
	if BlockOf(zero) != 5 || IndexOf(zero) != 0 {
		t.Fatalf("Construct(5, 0) decoded incorrectly: block=%d index=%d", BlockOf(zero), IndexOf(zero))
	}
}

func TestValidateIndexBoundaries(t *testing.T) {
	if ValidateIndex(-1) {
		t.Fatal("expected -1 to be rejected")
	}
	if ValidateIndex(MaxIndex + 1) {
		t.Fatal("expected MaxIndex+1 (0x1000000) to be rejected")
	}
	if !ValidateIndex(0) {
		t.Fatal("expected 0 to be accepted")
	}
	if !ValidateIndex(MaxIndex) {
		t.Fatal("expected MaxIndex to be accepted")
	}
}

func TestMustConstructPanicsOnInvalidIndex(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustConstruct to panic on an out-of-range index")
		}
	}()
	MustConstruct(1, MaxIndex+1)
}

func TestBatchIDAndBoundary(t *testing.T) {
	if got := BatchID(9, 4); got != 2 {
		t.Fatalf("BatchID(9, 4) = %d, want 2", got)
	}
	if !IsBatchBoundary(3, 4) {
		t.Fatal("expected block 3 to be a batch boundary for batch size 4")
	}
	if IsBatchBoundary(2, 4) {
		t.Fatal("expected block 2 to not be a batch boundary for batch size 4")
	}
	if got := BatchBoundaryCeiling(6, 4); got != 8 {
		t.Fatalf("BatchBoundaryCeiling(6, 4) = %d, want 8", got)
	}
	if got := BatchBoundaryCeiling(8, 4); got != 8 {
		t.Fatalf("BatchBoundaryCeiling(8, 4) = %d, want 8 (already a batch start)", got)
	}
}
