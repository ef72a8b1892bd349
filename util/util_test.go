package util

import "testing"

func TestMinMax(t *testing.T) {
	if got := Min(3, 7); got != 3 {
		t.Errorf("Min(3,7) = %d, want 3", got)
	}
	if got := Max(3, 7); got != 7 {
		t.Errorf("Max(3,7) = %d, want 7", got)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ v, lo, hi, want int }{
		{-5, 0, 63, 0},
		{100, 0, 63, 63},
		{30, 0, 63, 30},
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestRounddownRoundup(t *testing.T) {
	if got := Rounddown(uintptr(4100), uintptr(4096)); got != 4096 {
		t.Errorf("Rounddown(4100,4096) = %d, want 4096", got)
	}
	if got := Rounddown(uintptr(4096), uintptr(4096)); got != 4096 {
		t.Errorf("Rounddown(4096,4096) = %d, want 4096", got)
	}
	if got := Roundup(int64(4097), int64(4096)); got != 8192 {
		t.Errorf("Roundup(4097,4096) = %d, want 8192", got)
	}
	if got := Roundup(int64(4096), int64(4096)); got != 4096 {
		t.Errorf("Roundup(4096,4096) = %d, want 4096 (already aligned)", got)
	}
}
