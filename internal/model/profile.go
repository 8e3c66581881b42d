package model

import (
	"sort"
	"time"
)

// MaxFrequencyEntries bounds the per-user frequency tables.
const MaxFrequencyEntries = 10

// FrequencyEntry is one counter in a bounded top-K table. LastSeen breaks
// ties at the eviction boundary so a just-visited key is not evicted by an
// older one with an equal count.
type FrequencyEntry struct {
	Count    int64 `json:"count"`
	LastSeen int64 `json:"last_seen"` // epoch millis of the latest increment
}

// FrequencyTable is a bounded top-K counter table keyed by location city or
// composite network identifier.
type FrequencyTable map[string]FrequencyEntry

// Increment bumps key's count and records the increment time. The caller is
// responsible for trimming afterwards.
func (t FrequencyTable) Increment(key string, now time.Time) {
	e := t[key]
	e.Count++
	e.LastSeen = now.UnixMilli()
	t[key] = e
}

// Trim evicts entries beyond k, keeping the highest counts. Ties are broken
// by the most recently incremented entry, then by key for determinism.
func (t FrequencyTable) Trim(k int) {
	if len(t) <= k {
		return
	}
	type kv struct {
		key   string
		entry FrequencyEntry
	}
	entries := make([]kv, 0, len(t))
	for key, e := range t {
		entries = append(entries, kv{key, e})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].entry.Count != entries[j].entry.Count {
			return entries[i].entry.Count > entries[j].entry.Count
		}
		if entries[i].entry.LastSeen != entries[j].entry.LastSeen {
			return entries[i].entry.LastSeen > entries[j].entry.LastSeen
		}
		return entries[i].key < entries[j].key
	})
	for _, evicted := range entries[k:] {
		delete(t, evicted.key)
	}
}

// Has reports whether key is present with a positive count.
func (t FrequencyTable) Has(key string) bool {
	return t[key].Count > 0
}

// -------------------- USER BEHAVIORAL PROFILE --------------------

// UserBehavioralProfile is the long-lived per-user aggregate. It is owned
// exclusively by the profile store adapter and mutated only inside its
// optimistic transactions. Created lazily with all-zero defaults, never
// deleted by this subsystem.
type UserBehavioralProfile struct {
	UserID            string         `json:"user_id"`
	LastUpdated       int64          `json:"last_updated"` // epoch millis
	SessionCount      int64          `json:"session_count"`
	FrequentLocations FrequencyTable `json:"frequent_locations"`
	FrequentNetworks  FrequencyTable `json:"frequent_networks"`
	Touch             TouchProfile   `json:"touch_profile"`
	Typing            TypingProfile  `json:"typing_profile"`
	Login             LoginProfile   `json:"login_profile"`
	Risk              RiskProfile    `json:"risk_profile"`
}

// NewDefaultProfile returns the all-zero profile written on first contact
// with a user.
func NewDefaultProfile(userID string) *UserBehavioralProfile {
	return &UserBehavioralProfile{
		UserID:            userID,
		FrequentLocations: make(FrequencyTable),
		FrequentNetworks:  make(FrequencyTable),
	}
}

// TouchProfile is the running touch baseline used for comparison.
type TouchProfile struct {
	AvgPressure  float64 `json:"avg_pressure"`
	AvgTouchArea float64 `json:"avg_touch_area"`
	AvgDuration  float64 `json:"avg_duration"`
	SampleCount  int64   `json:"sample_count"`
}

// TypingProfile is the running typing baseline.
type TypingProfile struct {
	AvgDwellTime  float64 `json:"avg_dwell_time"`
	AvgFlightTime float64 `json:"avg_flight_time"`
	AvgTypingRate float64 `json:"avg_typing_rate"`
	SampleCount   int64   `json:"sample_count"`
}

// LoginProfile tracks habitual login behavior.
type LoginProfile struct {
	TypicalHourStart int   `json:"typical_hour_start"`
	TypicalHourEnd   int   `json:"typical_hour_end"`
	LoginCount       int64 `json:"login_count"`
}

// RiskProfile is the running risk baseline (exponential moving average of
// session scores).
type RiskProfile struct {
	CurrentScore  float64 `json:"current_score"`
	HighRiskCount int64   `json:"high_risk_count"`
	LastScoredAt  int64   `json:"last_scored_at"`
}

// MergeSample folds one session summary into the running touch baseline.
func (p *TouchProfile) MergeSample(s TouchGestureSummary) {
	if s.GestureCount == 0 {
		return
	}
	n := float64(p.SampleCount)
	p.AvgPressure = (p.AvgPressure*n + s.AvgPressure) / (n + 1)
	p.AvgTouchArea = (p.AvgTouchArea*n + s.AvgTouchArea) / (n + 1)
	p.AvgDuration = (p.AvgDuration*n + s.AvgDuration) / (n + 1)
	p.SampleCount++
}

// MergeSample folds one session summary into the running typing baseline.
func (p *TypingProfile) MergeSample(s TypingSummary) {
	if s.KeystrokeCount == 0 {
		return
	}
	n := float64(p.SampleCount)
	p.AvgDwellTime = (p.AvgDwellTime*n + s.AvgDwellTime) / (n + 1)
	p.AvgFlightTime = (p.AvgFlightTime*n + s.AvgFlightTime) / (n + 1)
	p.AvgTypingRate = (p.AvgTypingRate*n + s.TypingSpeed) / (n + 1)
	p.SampleCount++
}

// -------------------- LAST KNOWN LOCATION --------------------

// LastKnownLocation is the single most recent location per user, overwritten
// whole on every session. Used to compute distance and velocity since the
// previous login.
type LastKnownLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Timestamp int64   `json:"timestamp"` // epoch millis
}
