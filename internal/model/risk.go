package model

// -------------------- RISK SCORE OUTPUT --------------------

// Risk factor names recorded in the score breakdown.
const (
	FactorPressureInconsistency = "pressure_inconsistency"
	FactorTimingVariation       = "timing_variation"
	FactorHesitation            = "hesitation"
	FactorRapidTouches          = "rapid_touches"
)

// RiskFlags carries the boolean signals derived during enrichment.
type RiskFlags struct {
	IsVpnDetected     bool `json:"is_vpn_detected"`
	IsHighRiskCountry bool `json:"is_high_risk_country"`
	IsKnownLocation   bool `json:"is_known_location"`
	IsKnownNetwork    bool `json:"is_known_network"`
}

// RiskScoreResult is the per-session output record. Append-only and
// immutable once written. TotalScore is always within [0, 1].
type RiskScoreResult struct {
	SessionID  string             `json:"session_id"`
	UserID     string             `json:"user_id,omitempty"`
	TotalScore float64            `json:"total_score"`
	Breakdown  map[string]float64 `json:"breakdown"`
	Flags      RiskFlags          `json:"flags"`
	Timestamp  int64              `json:"timestamp"` // epoch millis
}

// CalculatedSession is the full persisted record for one session: the risk
// result plus every derived summary and behavior that produced it. Written
// as one append-only record keyed by session id.
type CalculatedSession struct {
	SessionID string              `json:"session_id"`
	UserID    string              `json:"user_id,omitempty"`
	Touch     TouchGestureSummary `json:"touch_summary"`
	Typing    TypingSummary       `json:"typing_summary"`
	Location  LocationBehavior    `json:"location_behavior"`
	Network   NetworkBehavior     `json:"network_behavior"`
	Login     LoginBehavior       `json:"login_behavior"`
	Device    DeviceSignal        `json:"device_signal"`
	Risk      RiskScoreResult     `json:"risk_score"`
	CreatedAt int64               `json:"created_at"`
}
