package conflict

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name       string
		a, b       Interval
		overlapped bool
	}{
		{"touching end to start", Interval{at(9, 30), at(10, 0)}, Interval{at(10, 0), at(11, 0)}, false},
		{"touching start to end", Interval{at(11, 0), at(11, 30)}, Interval{at(10, 0), at(11, 0)}, false},
		{"inside", Interval{at(10, 15), at(10, 45)}, Interval{at(10, 0), at(11, 0)}, true},
		{"straddles start", Interval{at(9, 45), at(10, 15)}, Interval{at(10, 0), at(11, 0)}, true},
		{"covers", Interval{at(9, 0), at(12, 0)}, Interval{at(10, 0), at(11, 0)}, true},
		{"disjoint", Interval{at(8, 0), at(9, 0)}, Interval{at(10, 0), at(11, 0)}, false},
	}
	for _, tc := range cases {
		if got := tc.a.Overlaps(tc.b); got != tc.overlapped {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.overlapped)
		}
		if got := tc.b.Overlaps(tc.a); got != tc.overlapped {
			t.Fatalf("%s (swapped): got %v, want %v", tc.name, got, tc.overlapped)
		}
	}
}

func TestFirstOverlap(t *testing.T) {
	existing := []Interval{{at(9, 0), at(9, 30)}, {at(10, 0), at(11, 0)}}
	hit, ok := FirstOverlap(Interval{at(10, 30), at(11, 30)}, existing)
	if !ok || !hit.Start.Equal(at(10, 0)) {
		t.Fatalf("expected overlap with 10:00 appointment, got %v %v", hit, ok)
	}
	if _, ok := FirstOverlap(Interval{at(9, 30), at(10, 0)}, existing); ok {
		t.Fatal("gap between appointments should be free")
	}
}
