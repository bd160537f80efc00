// File: internal/scheduler/profile.go
// Package scheduler
// Author: momentics <momentics@gmail.com>
//
// ProfileCurve is the long-term NF-profile lookup: a monotone table
// mapping flow_count to max_pps_per_core, implemented as a sorted-slice
// piecewise-linear interpolator. A handful of sample points never needs
// more than linear interpolation between adjacent entries.

package scheduler

import "sort"

// ProfilePoint is one (flow_count, max_pps) sample of the monotone
// NF-profile curve.
type ProfilePoint struct {
	FlowCount uint64
	MaxPps    uint64
}

// ProfileCurve is a monotone piecewise-linear flow_count -> max_pps_per_core
// table.
type ProfileCurve struct {
	points []ProfilePoint
}

// NewProfileCurve builds a curve from unordered sample points, sorting them
// by flow count. At least one point is required; a single point behaves as
// a constant curve.
func NewProfileCurve(points []ProfilePoint) ProfileCurve {
	sorted := make([]ProfilePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FlowCount < sorted[j].FlowCount })
	return ProfileCurve{points: sorted}
}

// MaxPps returns the capacity, in packets per second, for a core currently
// holding flowCount distinct flows, linearly interpolating between the two
// bracketing samples (or clamping to the nearest endpoint outside the
// sampled range).
func (p ProfileCurve) MaxPps(flowCount uint64) uint64 {
	n := len(p.points)
	if n == 0 {
		return 0
	}
	if flowCount <= p.points[0].FlowCount {
		return p.points[0].MaxPps
	}
	if flowCount >= p.points[n-1].FlowCount {
		return p.points[n-1].MaxPps
	}
	for i := 1; i < n; i++ {
		lo, hi := p.points[i-1], p.points[i]
		if flowCount > hi.FlowCount {
			continue
		}
		span := hi.FlowCount - lo.FlowCount
		if span == 0 {
			return lo.MaxPps
		}
		frac := float64(flowCount-lo.FlowCount) / float64(span)
		return uint64(float64(lo.MaxPps) + frac*(float64(hi.MaxPps)-float64(lo.MaxPps)))
	}
	return p.points[n-1].MaxPps
}
