package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"behavior-risk-service/internal/model"
)

func TestSummarizeTyping_EmptyInput(t *testing.T) {
	summary := SummarizeTyping(nil, "mpin")

	assert.Equal(t, "mpin", summary.InputType)
	assert.Zero(t, summary.KeystrokeCount)
	assert.Zero(t, summary.AvgDwellTime)
	assert.Zero(t, summary.ErrorRate)
	assert.Zero(t, summary.TypingSpeed)
}

func TestSummarizeTyping_DwellAndFlightStats(t *testing.T) {
	keystrokes := []model.Keystroke{
		{Character: "a", DwellTime: 100, FlightTime: 0, Timestamp: 0},
		{Character: "b", DwellTime: 200, FlightTime: 150, Timestamp: 300},
		{Character: "c", DwellTime: 300, FlightTime: 250, Timestamp: 600},
	}

	summary := SummarizeTyping(keystrokes, "free_text")

	assert.Equal(t, 3, summary.KeystrokeCount)
	assert.InDelta(t, 200, summary.AvgDwellTime, 1e-9)
	// First flight time is 0 (no previous key) and is filtered out.
	assert.InDelta(t, 200, summary.AvgFlightTime, 1e-9)
	assert.Zero(t, summary.ErrorRate)
}

func TestSummarizeTyping_ErrorRate(t *testing.T) {
	keystrokes := []model.Keystroke{
		{Character: "a", Timestamp: 0},
		{Character: "backspace", Timestamp: 100},
		{Character: "b", Timestamp: 200},
		{Character: "delete", Timestamp: 300},
	}

	summary := SummarizeTyping(keystrokes, "free_text")

	assert.InDelta(t, 0.5, summary.ErrorRate, 1e-9)
}

func TestSummarizeTyping_LongPauses(t *testing.T) {
	keystrokes := []model.Keystroke{
		{Character: "a", Timestamp: 0},
		{Character: "b", Timestamp: 2500}, // gap 2500 > 2000
		{Character: "c", Timestamp: 3000}, // gap 500
		{Character: "d", Timestamp: 5001}, // gap 2001 > 2000
	}

	summary := SummarizeTyping(keystrokes, "free_text")

	assert.Equal(t, 2, summary.LongPauseCount)
}

func TestSummarizeTyping_TypingSpeed(t *testing.T) {
	// 4 keys over 6 seconds -> 40 keys/minute.
	keystrokes := []model.Keystroke{
		{Character: "a", Timestamp: 0},
		{Character: "b", Timestamp: 2000},
		{Character: "c", Timestamp: 4000},
		{Character: "d", Timestamp: 6000},
	}

	summary := SummarizeTyping(keystrokes, "free_text")

	assert.InDelta(t, 40, summary.TypingSpeed, 1e-9)
}

func TestSummarizeTyping_SingleKeystroke(t *testing.T) {
	summary := SummarizeTyping([]model.Keystroke{{Character: "a", DwellTime: 90, Timestamp: 42}}, "mpin")

	assert.Equal(t, 1, summary.KeystrokeCount)
	assert.Zero(t, summary.StdDevDwellTime)
	assert.Zero(t, summary.TypingSpeed, "no span to measure speed over")
	assert.Zero(t, summary.LongPauseCount)
}
