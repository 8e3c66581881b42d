package features

import (
	"sort"

	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/stats"
)

const longPauseGapMillis = 2000

// backspace and delete variants sent by the mobile keyboards we ingest.
var correctionKeys = map[string]bool{
	"backspace": true,
	"delete":    true,
	"\b":        true,
	"del":       true,
}

// SummarizeTyping computes the keystroke statistics of one session for the
// given input type (e.g. "mpin", "search", "free_text").
func SummarizeTyping(keystrokes []model.Keystroke, inputType string) model.TypingSummary {
	summary := model.TypingSummary{InputType: inputType}
	if len(keystrokes) == 0 {
		return summary
	}
	summary.KeystrokeCount = len(keystrokes)

	var dwells, flights []float64
	corrections := 0

	for _, k := range keystrokes {
		if k.DwellTime > 0 {
			dwells = append(dwells, k.DwellTime)
		}
		if k.FlightTime > 0 {
			flights = append(flights, k.FlightTime)
		}
		if correctionKeys[k.Character] {
			corrections++
		}
	}

	summary.AvgDwellTime = stats.Mean(dwells)
	summary.StdDevDwellTime = stats.StdDev(dwells)
	summary.AvgFlightTime = stats.Mean(flights)
	summary.StdDevFlight = stats.StdDev(flights)
	summary.ErrorRate = float64(corrections) / float64(len(keystrokes))

	ordered := make([]model.Keystroke, len(keystrokes))
	copy(ordered, keystrokes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	for i := 1; i < len(ordered); i++ {
		if ordered[i].Timestamp-ordered[i-1].Timestamp > longPauseGapMillis {
			summary.LongPauseCount++
		}
	}

	span := ordered[len(ordered)-1].Timestamp - ordered[0].Timestamp
	if span > 0 {
		summary.TypingSpeed = float64(len(keystrokes)) / (float64(span) / 60000)
	}
	return summary
}
