package model

// -------------------- ENRICHMENT RESULTS --------------------

// LocationBehavior is the enriched location assessment for one session.
// The zero value plus City/Country set to "Unknown" is the documented
// degraded default when enrichment fails.
type LocationBehavior struct {
	City                string  `json:"city"`
	Country             string  `json:"country"`
	DistanceFromLastKm  float64 `json:"distance_from_last_km"`
	VelocityKmh         float64 `json:"velocity_kmh"`
	SpoofingRisk        float64 `json:"spoofing_risk"` // 0-1
	IsVpnDetected       bool    `json:"is_vpn_detected"`
	VpnConfidence       float64 `json:"vpn_confidence"`
	IsHighRiskCountry   bool    `json:"is_high_risk_country"`
	IsKnownLocation     bool    `json:"is_known_location"`
	HasPreviousLocation bool    `json:"has_previous_location"`
}

// UnknownLocationBehavior returns the degraded default used when the
// geocoder or profile store is unavailable.
func UnknownLocationBehavior() LocationBehavior {
	return LocationBehavior{
		City:          "Unknown",
		Country:       "Unknown",
		VpnConfidence: 0.1,
	}
}

// NetworkBehavior is the enriched network assessment for one session.
type NetworkBehavior struct {
	NetworkKey     string `json:"network_key"` // pseudonymized name_type identifier
	NetworkType    string `json:"network_type"`
	IsKnownNetwork bool   `json:"is_known_network"`
	IsFirstSeen    bool   `json:"is_first_seen"`
}

// UnknownNetworkBehavior returns the degraded default for network enrichment.
func UnknownNetworkBehavior() NetworkBehavior {
	return NetworkBehavior{NetworkKey: "Unknown", NetworkType: "Unknown"}
}

// LoginBehavior summarizes the login context relative to the user's habits.
type LoginBehavior struct {
	Method        string `json:"method"`
	AttemptCount  int    `json:"attempt_count"`
	HourOfDay     int    `json:"hour_of_day"`
	DayOfWeek     int    `json:"day_of_week"`
	IsTypicalHour bool   `json:"is_typical_hour"`
}
