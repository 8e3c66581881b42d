package model

// -------------------- DERIVED SESSION SUMMARIES --------------------
//
// Both summaries are immutable once computed, one per session. Every numeric
// field is 0 (never NaN) when the source event list is empty, so callers never
// have to branch on missing fields.

// TouchGestureSummary aggregates the touch statistics of one session.
type TouchGestureSummary struct {
	SessionID       string  `json:"session_id"`
	GestureCount    int     `json:"gesture_count"`
	AvgPressure     float64 `json:"avg_pressure"`
	StdDevPressure  float64 `json:"std_dev_pressure"`
	AvgTouchArea    float64 `json:"avg_touch_area"`
	StdDevTouchArea float64 `json:"std_dev_touch_area"`
	AvgDuration     float64 `json:"avg_duration"`
	StdDevDuration  float64 `json:"std_dev_duration"`
	AvgVelocity     float64 `json:"avg_velocity"`      // swipe/scroll only
	SwipeAccuracy   float64 `json:"swipe_accuracy"`    // mean |expected - reported| distance
	HesitationCount int     `json:"hesitation_count"`  // gaps > 1000 ms
	RapidTouchCount int     `json:"rapid_touch_count"` // gaps < 100 ms
	SessionDuration float64 `json:"session_duration"`  // ms, max - min timestamp
}

// TypingSummary aggregates the keystroke statistics of one session.
type TypingSummary struct {
	InputType       string  `json:"input_type"`
	KeystrokeCount  int     `json:"keystroke_count"`
	AvgDwellTime    float64 `json:"avg_dwell_time"`
	StdDevDwellTime float64 `json:"std_dev_dwell_time"`
	AvgFlightTime   float64 `json:"avg_flight_time"`
	StdDevFlight    float64 `json:"std_dev_flight_time"`
	TypingSpeed     float64 `json:"typing_speed"`     // keys per minute over observed span
	ErrorRate       float64 `json:"error_rate"`       // fraction of backspace/delete keys
	LongPauseCount  int     `json:"long_pause_count"` // gaps > 2000 ms
}
