// Package scoring maps extracted features and enrichment signals to a
// bounded composite risk score with an auditable breakdown. The scorer is
// pure, total and deterministic: no I/O, no clock reads beyond the supplied
// timestamp, fixed rule thresholds.
package scoring

import "behavior-risk-service/internal/model"

// Fixed rule thresholds and weights. These are the agreed reference values,
// not tunables; changing them invalidates every historical breakdown.
const (
	pressureStdDevThreshold = 0.5
	pressureWeight          = 0.2

	durationStdDevThreshold = 100.0 // ms
	timingWeight            = 0.3

	hesitationThreshold = 5
	hesitationWeight    = 0.3

	rapidTouchThreshold = 10
	rapidTouchWeight    = 0.2

	maxScore = 1.0
)

// Scorer computes session risk scores.
type Scorer struct{}

// NewScorer returns a scorer with the reference rule set.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score evaluates one session's features and enrichment signals. The result
// is always within [0, 1]; every contributing factor appears in the
// breakdown under its own name.
func (s *Scorer) Score(
	touch model.TouchGestureSummary,
	typing model.TypingSummary,
	location model.LocationBehavior,
	network model.NetworkBehavior,
	login model.LoginBehavior,
	sessionID, userID string,
	timestamp int64,
) model.RiskScoreResult {
	result := model.RiskScoreResult{
		SessionID: sessionID,
		UserID:    userID,
		Breakdown: make(map[string]float64),
		Timestamp: timestamp,
		Flags: model.RiskFlags{
			IsVpnDetected:     location.IsVpnDetected,
			IsHighRiskCountry: location.IsHighRiskCountry,
			IsKnownLocation:   location.IsKnownLocation,
			IsKnownNetwork:    network.IsKnownNetwork,
		},
	}

	if touch.StdDevPressure > pressureStdDevThreshold {
		result.Breakdown[model.FactorPressureInconsistency] = pressureWeight
	}
	if touch.StdDevDuration > durationStdDevThreshold {
		result.Breakdown[model.FactorTimingVariation] = timingWeight
	}
	if touch.HesitationCount > hesitationThreshold {
		result.Breakdown[model.FactorHesitation] = hesitationWeight
	}
	if touch.RapidTouchCount > rapidTouchThreshold {
		result.Breakdown[model.FactorRapidTouches] = rapidTouchWeight
	}

	total := 0.0
	for _, contribution := range result.Breakdown {
		total += contribution
	}
	if total > maxScore {
		total = maxScore
	}
	result.TotalScore = total
	return result
}
