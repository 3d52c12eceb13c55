package service

import "sort"

// Interval is a half-open [Start, End) range on the lesson timeline.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (iv Interval) Length() float64 {
	return iv.End - iv.Start
}

// MergeIntervals collapses an unordered set of [start,end) ranges into the
// minimal sorted sequence of disjoint ranges and returns the total covered
// length. Touching intervals merge: a sub-second gap is never a gap.
// Degenerate intervals (start == end) add no length but still participate
// in merging. O(n log n) in the number of intervals.
func MergeIntervals(intervals []Interval) ([]Interval, float64) {
	if len(intervals) == 0 {
		return nil, 0
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})

	merged := make([]Interval, 0, len(sorted))
	running := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= running.End {
			if next.End > running.End {
				running.End = next.End
			}
			continue
		}
		merged = append(merged, running)
		running = next
	}
	merged = append(merged, running)

	var total float64
	for _, iv := range merged {
		total += iv.Length()
	}
	return merged, total
}
