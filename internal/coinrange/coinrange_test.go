package coinrange

import "testing"

func TestPackUnpackRoundtrip(t *testing.T) {
	tests := []Range{
		{Start: 0, Delta: 0},
		{Start: 1, Delta: 1},
		{Start: startMask, Delta: 0},
		{Start: 0, Delta: deltaMask},
		{Start: startMask, Delta: deltaMask},
		{Start: 123456789, Delta: 987654},
	}

	for _, r := range tests {
		packed, err := Pack(r)
		if err != nil {
			t.Fatalf("Pack(%+v): %v", r, err)
		}
		got := Unpack(packed)
		if got != r {
			t.Errorf("roundtrip %+v -> %+v", r, got)
		}
	}
}

func TestPackRejectsOverflow(t *testing.T) {
	if _, err := Pack(Range{Start: startMask + 1, Delta: 0}); err == nil {
		t.Error("expected error for start overflow")
	}
	if _, err := Pack(Range{Start: 0, Delta: deltaMask + 1}); err == nil {
		t.Error("expected error for delta overflow")
	}
}

func TestTapeTakeExact(t *testing.T) {
	tape := NewTape(Range{Start: 0, Delta: 10}, Range{Start: 100, Delta: 5})
	taken := tape.Take(10)
	if len(taken) != 1 || taken[0] != (Range{Start: 0, Delta: 10}) {
		t.Fatalf("taken = %+v", taken)
	}
	if tape.Len() != 5 {
		t.Errorf("remaining len = %d, want 5", tape.Len())
	}
}

func TestTapeTakeSplitsRange(t *testing.T) {
	tape := NewTape(Range{Start: 0, Delta: 10})
	taken := tape.Take(4)
	if len(taken) != 1 || taken[0] != (Range{Start: 0, Delta: 4}) {
		t.Fatalf("taken = %+v", taken)
	}
	remaining := tape.Ranges()
	if len(remaining) != 1 || remaining[0] != (Range{Start: 4, Delta: 6}) {
		t.Fatalf("remaining = %+v", remaining)
	}
}

func TestTapeTakeSpansMultipleRanges(t *testing.T) {
	tape := NewTape(Range{Start: 0, Delta: 3}, Range{Start: 50, Delta: 3})
	taken := tape.Take(4)
	want := []Range{{Start: 0, Delta: 3}, {Start: 50, Delta: 1}}
	if len(taken) != 2 || taken[0] != want[0] || taken[1] != want[1] {
		t.Fatalf("taken = %+v, want %+v", taken, want)
	}
	if tape.Len() != 2 {
		t.Errorf("remaining len = %d, want 2", tape.Len())
	}
}

func TestAssignOutputsConsumesInOrder(t *testing.T) {
	tape := NewTape(Range{Start: 0, Delta: 10})
	assigned, crossings := AssignOutputs(tape, []uint64{4, 6}, nil)

	if len(assigned) != 2 {
		t.Fatalf("assigned len = %d, want 2", len(assigned))
	}
	if len(assigned[0]) != 1 || assigned[0][0] != (Range{Start: 0, Delta: 4}) {
		t.Errorf("assigned[0] = %+v", assigned[0])
	}
	if len(assigned[1]) != 1 || assigned[1][0] != (Range{Start: 4, Delta: 6}) {
		t.Errorf("assigned[1] = %+v", assigned[1])
	}
	if !tape.Empty() {
		t.Errorf("tape should be drained, has %d left", tape.Len())
	}
	if crossings != nil {
		t.Errorf("expected no crossings with nil RarityFunc, got %+v", crossings)
	}
}

func TestAssignOutputsStopsWhenTapeExhausted(t *testing.T) {
	tape := NewTape(Range{Start: 0, Delta: 5})
	assigned, _ := AssignOutputs(tape, []uint64{3, 10}, nil)
	if len(assigned[1]) != 1 || assigned[1][0].Delta != 2 {
		t.Errorf("assigned[1] = %+v, want remaining 2 units", assigned[1])
	}
	if !tape.Empty() {
		t.Errorf("tape should be drained")
	}
}

func TestAssignOutputsReportsUncommonCrossings(t *testing.T) {
	tape := NewTape(Range{Start: 0, Delta: 10})
	isUncommon := func(coinIndex uint64) bool { return coinIndex == 0 || coinIndex == 5 }

	_, crossings := AssignOutputs(tape, []uint64{5, 5}, isUncommon)
	if len(crossings) != 2 {
		t.Fatalf("crossings = %+v, want 2 entries", crossings)
	}
	if crossings[0].CoinIndex != 0 || crossings[0].OutputIndex != 0 {
		t.Errorf("crossings[0] = %+v", crossings[0])
	}
	if crossings[1].CoinIndex != 5 || crossings[1].OutputIndex != 1 {
		t.Errorf("crossings[1] = %+v", crossings[1])
	}
}
