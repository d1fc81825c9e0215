package subsidy

import "testing"

func TestAtHeightPostWonkyHalves(t *testing.T) {
	base, err := AtHeight(WonkyEraEnd)
	if err != nil {
		t.Fatalf("AtHeight: %v", err)
	}
	if base != postWonkyStartDoge*koinuPerDoge {
		t.Errorf("AtHeight(WonkyEraEnd) = %d, want %d", base, postWonkyStartDoge*koinuPerDoge)
	}

	halved, err := AtHeight(WonkyEraEnd + postWonkyHalvingInterval)
	if err != nil {
		t.Fatalf("AtHeight: %v", err)
	}
	if halved != base/2 {
		t.Errorf("AtHeight after one halving = %d, want %d", halved, base/2)
	}
}

func TestAtHeightFloorsAtTenThousand(t *testing.T) {
	far := WonkyEraEnd + postWonkyHalvingInterval*20
	got, err := AtHeight(uint64(far))
	if err != nil {
		t.Fatalf("AtHeight: %v", err)
	}
	if got != postWonkyFloorDoge*koinuPerDoge {
		t.Errorf("AtHeight(%d) = %d, want floor %d", far, got, postWonkyFloorDoge*koinuPerDoge)
	}
}

func TestCumulativeAtIsMonotonic(t *testing.T) {
	heights := []uint64{0, 1000, 50000, WonkyEraEnd - 1, WonkyEraEnd, WonkyEraEnd + 200000, 1000000}
	var prev uint64
	for i, h := range heights {
		c, err := CumulativeAt(h)
		if err != nil {
			t.Fatalf("CumulativeAt(%d): %v", h, err)
		}
		if i > 0 && c < prev {
			t.Errorf("CumulativeAt(%d) = %d is less than previous %d", h, c, prev)
		}
		prev = c
	}
}

func TestHeightForCoinIndexRoundtrip(t *testing.T) {
	for _, h := range []uint64{0, WonkyEraEnd, WonkyEraEnd + 100000, 700000} {
		start, err := CumulativeAt(h)
		if err != nil {
			t.Fatalf("CumulativeAt(%d): %v", h, err)
		}
		gotHeight, err := HeightForCoinIndex(start)
		if err != nil {
			t.Fatalf("HeightForCoinIndex(%d): %v", start, err)
		}
		if gotHeight != h {
			t.Errorf("HeightForCoinIndex(CumulativeAt(%d)) = %d, want %d", h, gotHeight, h)
		}
	}
}

func TestIsFirstCoinOfBlock(t *testing.T) {
	start, err := CumulativeAt(WonkyEraEnd + 100000)
	if err != nil {
		t.Fatalf("CumulativeAt: %v", err)
	}
	if !IsFirstCoinOfBlock(start) {
		t.Errorf("expected coin %d to be first-of-block", start)
	}
	if IsFirstCoinOfBlock(start + 1) {
		t.Errorf("expected coin %d to not be first-of-block", start+1)
	}
}
