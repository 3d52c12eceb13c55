package service

import (
	"math"

	"video_progress_backend/internal/model"

	"github.com/shopspring/decimal"
)

// ProgressSummary is the derived view of one batch of segments: time spent
// watching (effective, speed-adjusted) and timeline positions seen
// (coverage). The two deliberately disagree on overlap: re-watching a range
// adds effective time again but never adds coverage, so effective time can
// exceed the lesson duration.
type ProgressSummary struct {
	TotalEffectiveSeconds decimal.Decimal    `json:"totalEffectiveSeconds"`
	CoverageSeconds       int                `json:"coverageSeconds"`
	MaxVerifiedSecond     int                `json:"maxVerifiedSecond"`
	SpeedBreakdown        map[string]float64 `json:"speedBreakdown"`
	Intervals             []Interval         `json:"intervals,omitempty"`
}

func ZeroSummary() ProgressSummary {
	return ProgressSummary{
		TotalEffectiveSeconds: decimal.Zero,
		SpeedBreakdown:        map[string]float64{},
	}
}

// AggregateSegments computes a session's ProgressSummary. Input order does
// not matter (the merger sorts); an empty slice yields the zero summary.
// Segments with end < start should have been rejected at the boundary; if
// one is present anyway it contributes nothing rather than failing the
// whole aggregation.
func AggregateSegments(segments []model.WatchSegment) ProgressSummary {
	summary := ZeroSummary()
	if len(segments) == 0 {
		return summary
	}

	intervals := make([]Interval, 0, len(segments))
	var maxEnd float64

	for _, seg := range segments {
		if seg.EndSecond < seg.StartSecond {
			continue
		}

		duration := seg.EndSecond - seg.StartSecond
		intervals = append(intervals, Interval{Start: seg.StartSecond, End: seg.EndSecond})
		if seg.EndSecond > maxEnd {
			maxEnd = seg.EndSecond
		}

		// each reported segment is time genuinely spent at that speed, even
		// when it re-covers positions already seen
		if seg.Speed.IsPositive() {
			summary.TotalEffectiveSeconds = summary.TotalEffectiveSeconds.Add(
				decimal.NewFromFloat(duration).Div(seg.Speed))
			summary.SpeedBreakdown[seg.Speed.String()] += duration
		}
	}

	merged, covered := MergeIntervals(intervals)
	summary.Intervals = merged
	summary.CoverageSeconds = flooredSeconds(covered)
	summary.MaxVerifiedSecond = flooredSeconds(maxEnd)
	return summary
}

// flooredSeconds truncates to whole seconds with a small epsilon so that
// float noise from summing many interval lengths cannot drop a second.
func flooredSeconds(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Floor(v + 1e-9))
}
