// Package features turns raw session event lists into fixed-shape
// statistical summaries. Both extractors are total functions: they never
// fail, and an empty or nil input yields an all-zero summary.
package features

import (
	"math"
	"sort"

	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/stats"
)

const (
	hesitationGapMillis = 1000 // gap above this counts as hesitation
	rapidTouchGapMillis = 100  // gap below this counts as a rapid touch
)

// SummarizeTouch computes the touch statistics of one session.
// Malformed records (non-positive pressure, area or duration) are excluded
// from the corresponding averages; velocity and swipe-accuracy statistics
// only consider swipe and scroll gestures.
func SummarizeTouch(gestures []model.TouchGesture, sessionID string) model.TouchGestureSummary {
	summary := model.TouchGestureSummary{SessionID: sessionID}
	if len(gestures) == 0 {
		return summary
	}
	summary.GestureCount = len(gestures)

	var pressures, areas, durations []float64
	var velocities, accuracyErrs []float64

	for _, g := range gestures {
		if g.Pressure > 0 {
			pressures = append(pressures, g.Pressure)
		}
		if g.TouchArea > 0 {
			areas = append(areas, g.TouchArea)
		}
		if g.Duration > 0 {
			durations = append(durations, g.Duration)
		}
		if g.GestureType == model.GestureSwipe || g.GestureType == model.GestureScroll {
			velocities = append(velocities, g.Velocity)
			expected := math.Hypot(g.EndX-g.StartX, g.EndY-g.StartY)
			accuracyErrs = append(accuracyErrs, math.Abs(expected-g.Distance))
		}
	}

	summary.AvgPressure = stats.Mean(pressures)
	summary.StdDevPressure = stats.StdDev(pressures)
	summary.AvgTouchArea = stats.Mean(areas)
	summary.StdDevTouchArea = stats.StdDev(areas)
	summary.AvgDuration = stats.Mean(durations)
	summary.StdDevDuration = stats.StdDev(durations)
	summary.AvgVelocity = stats.Mean(velocities)
	summary.SwipeAccuracy = stats.Mean(accuracyErrs)

	// Gap detection needs a deterministic time ordering; sort is stable so
	// equal timestamps keep their original order.
	ordered := make([]model.TouchGesture, len(gestures))
	copy(ordered, gestures)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	for i := 1; i < len(ordered); i++ {
		gap := ordered[i].Timestamp - ordered[i-1].Timestamp
		if gap > hesitationGapMillis {
			summary.HesitationCount++
		}
		if gap < rapidTouchGapMillis {
			summary.RapidTouchCount++
		}
	}

	summary.SessionDuration = float64(ordered[len(ordered)-1].Timestamp - ordered[0].Timestamp)
	return summary
}
