// File: internal/scheduler/profile_test.go
// Author: momentics <momentics@gmail.com>

package scheduler

import "testing"

func TestProfileCurveInterpolation(t *testing.T) {
	curve := NewProfileCurve([]ProfilePoint{
		{FlowCount: 100, MaxPps: 1000},
		{FlowCount: 0, MaxPps: 2000}, // out of order on purpose
	})

	cases := []struct {
		flows uint64
		want  uint64
	}{
		{0, 2000},
		{100, 1000},
		{50, 1500},
		{25, 1750},
		{1000, 1000}, // clamp above
	}
	for _, c := range cases {
		if got := curve.MaxPps(c.flows); got != c.want {
			t.Errorf("MaxPps(%d) = %d, want %d", c.flows, got, c.want)
		}
	}
}

func TestProfileCurveSinglePointIsConstant(t *testing.T) {
	curve := NewProfileCurve([]ProfilePoint{{FlowCount: 10, MaxPps: 500}})
	for _, flows := range []uint64{0, 10, 100000} {
		if got := curve.MaxPps(flows); got != 500 {
			t.Fatalf("MaxPps(%d) = %d, want constant 500", flows, got)
		}
	}
}

func TestProfileCurveEmpty(t *testing.T) {
	var curve ProfileCurve
	if got := curve.MaxPps(5); got != 0 {
		t.Fatalf("empty curve must report zero capacity, got %d", got)
	}
}
