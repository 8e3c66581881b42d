package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"behavior-risk-service/internal/model"
)

func score(t *testing.T, touch model.TouchGestureSummary, loc model.LocationBehavior, net model.NetworkBehavior) model.RiskScoreResult {
	t.Helper()
	return NewScorer().Score(touch, model.TypingSummary{}, loc, net, model.LoginBehavior{}, "s-1", "u-1", 1700000000000)
}

func TestScore_CleanSessionIsZero(t *testing.T) {
	result := score(t, model.TouchGestureSummary{}, model.LocationBehavior{}, model.NetworkBehavior{})

	assert.Zero(t, result.TotalScore)
	assert.Empty(t, result.Breakdown)
	assert.Equal(t, "s-1", result.SessionID)
	assert.EqualValues(t, 1700000000000, result.Timestamp)
}

func TestScore_IndividualFactors(t *testing.T) {
	tests := []struct {
		name     string
		touch    model.TouchGestureSummary
		factor   string
		expected float64
	}{
		{
			name:     "pressure inconsistency",
			touch:    model.TouchGestureSummary{StdDevPressure: 0.51},
			factor:   model.FactorPressureInconsistency,
			expected: 0.2,
		},
		{
			name:     "timing variation",
			touch:    model.TouchGestureSummary{StdDevDuration: 101},
			factor:   model.FactorTimingVariation,
			expected: 0.3,
		},
		{
			name:     "hesitation",
			touch:    model.TouchGestureSummary{HesitationCount: 6},
			factor:   model.FactorHesitation,
			expected: 0.3,
		},
		{
			name:     "rapid touches",
			touch:    model.TouchGestureSummary{RapidTouchCount: 11},
			factor:   model.FactorRapidTouches,
			expected: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := score(t, tt.touch, model.LocationBehavior{}, model.NetworkBehavior{})

			assert.Len(t, result.Breakdown, 1)
			assert.InDelta(t, tt.expected, result.Breakdown[tt.factor], 1e-9)
			assert.InDelta(t, tt.expected, result.TotalScore, 1e-9)
		})
	}
}

func TestScore_ThresholdBoundariesDoNotTrigger(t *testing.T) {
	touch := model.TouchGestureSummary{
		StdDevPressure:  0.5, // not > 0.5
		StdDevDuration:  100, // not > 100
		HesitationCount: 5,   // not > 5
		RapidTouchCount: 10,  // not > 10
	}

	result := score(t, touch, model.LocationBehavior{}, model.NetworkBehavior{})

	assert.Zero(t, result.TotalScore)
	assert.Empty(t, result.Breakdown)
}

func TestScore_CappedAtOne(t *testing.T) {
	touch := model.TouchGestureSummary{
		StdDevPressure:  5,
		StdDevDuration:  5000,
		HesitationCount: 100,
		RapidTouchCount: 100,
	}

	result := score(t, touch, model.LocationBehavior{}, model.NetworkBehavior{})

	assert.InDelta(t, 1.0, result.TotalScore, 1e-9)
	assert.Len(t, result.Breakdown, 4, "cap limits the total, not the audit trail")
}

func TestScore_AlwaysWithinBound(t *testing.T) {
	extremes := []model.TouchGestureSummary{
		{StdDevPressure: 1e12, StdDevDuration: 1e12, HesitationCount: 1 << 30, RapidTouchCount: 1 << 30},
		{StdDevPressure: -1e12, StdDevDuration: -1e12},
		{},
	}

	for _, touch := range extremes {
		result := score(t, touch, model.LocationBehavior{}, model.NetworkBehavior{})
		assert.GreaterOrEqual(t, result.TotalScore, 0.0)
		assert.LessOrEqual(t, result.TotalScore, 1.0)
	}
}

func TestScore_FlagsCarriedFromEnrichment(t *testing.T) {
	loc := model.LocationBehavior{IsVpnDetected: true, IsHighRiskCountry: true, IsKnownLocation: false}
	net := model.NetworkBehavior{IsKnownNetwork: true}

	result := score(t, model.TouchGestureSummary{}, loc, net)

	assert.True(t, result.Flags.IsVpnDetected)
	assert.True(t, result.Flags.IsHighRiskCountry)
	assert.False(t, result.Flags.IsKnownLocation)
	assert.True(t, result.Flags.IsKnownNetwork)
}

func TestScore_Deterministic(t *testing.T) {
	touch := model.TouchGestureSummary{StdDevPressure: 0.9, HesitationCount: 8}

	first := score(t, touch, model.LocationBehavior{}, model.NetworkBehavior{})
	second := score(t, touch, model.LocationBehavior{}, model.NetworkBehavior{})

	assert.Equal(t, first, second)
}
