package model

// -------------------- SESSION TELEMETRY (INPUT) --------------------

// SessionTelemetry is one interaction session captured by the mobile
// collector. It is consumed exactly once and never mutated. Absent event
// lists are treated as empty, not as errors.
type SessionTelemetry struct {
	SessionID  string         `json:"session_id"`
	UserID     string         `json:"user_id,omitempty"` // empty for anonymous sessions
	Timestamp  int64          `json:"timestamp"`         // epoch millis
	Touches    []TouchGesture `json:"touch_events,omitempty"`
	Keystrokes []Keystroke    `json:"keystrokes,omitempty"`
	Login      LoginContext   `json:"login_context"`
	Location   LocationSignal `json:"location_signal"`
	Network    NetworkSignal  `json:"network_signal"`
	Device     DeviceSignal   `json:"device_signal"`
}

// GestureType enumerates recognized touch gesture kinds.
type GestureType string

const (
	GestureTap       GestureType = "tap"
	GestureSwipe     GestureType = "swipe"
	GestureScroll    GestureType = "scroll"
	GestureLongPress GestureType = "long_press"
	GesturePinch     GestureType = "pinch"
)

// TouchGesture is a single touch event. Ordering by Timestamp is significant
// for hesitation and rapid-touch detection.
type TouchGesture struct {
	GestureType GestureType `json:"gesture_type"`
	Pressure    float64     `json:"pressure"`   // 0-1
	TouchArea   float64     `json:"touch_area"` // px^2
	Duration    float64     `json:"duration"`   // ms
	Velocity    float64     `json:"velocity"`   // px/s, swipe/scroll only
	StartX      float64     `json:"start_x"`
	StartY      float64     `json:"start_y"`
	EndX        float64     `json:"end_x"`
	EndY        float64     `json:"end_y"`
	Distance    float64     `json:"distance"` // reported traveled distance, px
	Timestamp   int64       `json:"timestamp"`
}

// Keystroke is a single key event with its timing characteristics.
type Keystroke struct {
	Character  string  `json:"character"`
	DwellTime  float64 `json:"dwell_time"`  // ms the key was held
	FlightTime float64 `json:"flight_time"` // ms since previous key
	Pressure   float64 `json:"pressure"`
	Timestamp  int64   `json:"timestamp"`
}

// LoginContext describes how the session was authenticated.
type LoginContext struct {
	Method        string `json:"method"` // mpin, otp, biometric
	AttemptCount  int    `json:"attempt_count"`
	SucceededAt   int64  `json:"succeeded_at"`
	TimeOfDayHour int    `json:"time_of_day_hour"`
	DayOfWeek     int    `json:"day_of_week"`
}

// LocationSignal is the raw geolocation reading for the session.
type LocationSignal struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"` // meters; <1 suspiciously precise, >1000 suspiciously vague
	Altitude  float64 `json:"altitude"` // meters
	Timestamp int64   `json:"timestamp"`
}

// HasFix reports whether the signal carries a usable coordinate.
func (s LocationSignal) HasFix() bool {
	return !(s.Latitude == 0 && s.Longitude == 0 && s.Accuracy == 0)
}

// NetworkSignal describes the network the device was attached to.
type NetworkSignal struct {
	NetworkName string `json:"network_name"` // SSID or carrier name
	NetworkType string `json:"network_type"` // wifi, cellular, ethernet
	IPPrefix    string `json:"ip_prefix,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Key returns the composite identifier used for frequency tracking.
func (s NetworkSignal) Key() string {
	return s.NetworkName + "_" + s.NetworkType
}

// DeviceSignal identifies the submitting device.
type DeviceSignal struct {
	DeviceID    string `json:"device_id"`
	Model       string `json:"model"`
	OSVersion   string `json:"os_version"`
	AppVersion  string `json:"app_version"`
	Fingerprint string `json:"fingerprint"`
}
