package fixedpoint

import "testing"

func TestFromIntRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, -1, 63, -63, 1000} {
		got := FromInt(n).ToIntTrunc()
		if got != n {
			t.Errorf("FromInt(%d).ToIntTrunc() = %d, want %d", n, got, n)
		}
	}
}

func TestToIntRound(t *testing.T) {
	cases := []struct {
		f    FP
		want int
	}{
		{FromInt(2), 2},
		{FromInt(2).AddInt(0).Add(fracUnit / 2), 3}, // 2.5 rounds away from zero
		{FromInt(-2).Sub(fracUnit / 2), -3},         // -2.5 rounds away from zero
		{FromInt(0), 0},
	}
	for _, c := range cases {
		if got := c.f.ToIntRound(); got != c.want {
			t.Errorf("ToIntRound() = %d, want %d", got, c.want)
		}
	}
}

func TestMulDivInverse(t *testing.T) {
	a := FromInt(10)
	b := FromInt(4)
	got := a.Mul(b).Div(b)
	if got.ToIntRound() != 10 {
		t.Errorf("Mul then Div = %d, want 10", got.ToIntRound())
	}
}

func TestAddSubInverse(t *testing.T) {
	a := FromInt(59).Div(FromInt(60))
	sum := a.AddInt(1).SubInt(1)
	if sum != a {
		t.Errorf("AddInt then SubInt = %d, want %d", sum, a)
	}
}

func TestRecentCPUDecayFormula(t *testing.T) {
	// recent_cpu = (2*load_avg)/(2*load_avg+1) * recent_cpu + nice, with
	// load_avg == 0 the coefficient is 0 so recent_cpu collapses to nice.
	loadAvg := FromInt(0)
	recentCPU := FromInt(5)
	nice := 2

	coeff := loadAvg.MulInt(2).Div(loadAvg.MulInt(2).AddInt(1))
	next := coeff.Mul(recentCPU).AddInt(nice)
	if next.ToIntRound() != nice {
		t.Errorf("decayed recent_cpu = %d, want %d", next.ToIntRound(), nice)
	}
}
