package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"behavior-risk-service/internal/client"
	"behavior-risk-service/internal/model"
)

type stubGeocoder struct {
	result *client.GeocodeResult
	err    error
	calls  int
}

func (s *stubGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*client.GeocodeResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newEnricher(g Geocoder) *LocationEnricher {
	return NewLocationEnricher(g, 3*time.Second)
}

func TestEnrichLocation_NoFixReturnsUnknown(t *testing.T) {
	geocoder := &stubGeocoder{result: &client.GeocodeResult{City: "Mumbai", Country: "India"}}
	e := newEnricher(geocoder)

	behavior := e.Enrich(context.Background(), model.LocationSignal{}, nil, nil)

	assert.Equal(t, "Unknown", behavior.City)
	assert.Equal(t, "Unknown", behavior.Country)
	assert.False(t, behavior.IsVpnDetected)
	assert.InDelta(t, 0.1, behavior.VpnConfidence, 1e-9)
	assert.Zero(t, geocoder.calls, "no coordinate means no geocoder call")
}

func TestEnrichLocation_GeocoderFailureDegradesToUnknown(t *testing.T) {
	e := newEnricher(&stubGeocoder{err: errors.New("upstream timeout")})

	signal := model.LocationSignal{Latitude: 19.07, Longitude: 72.87, Accuracy: 10}
	behavior := e.Enrich(context.Background(), signal, nil, nil)

	assert.Equal(t, "Unknown", behavior.City)
	assert.Equal(t, "Unknown", behavior.Country)
	assert.False(t, behavior.IsVpnDetected)
}

func TestEnrichLocation_ResolvesPlaceAndKnownLocation(t *testing.T) {
	e := newEnricher(&stubGeocoder{result: &client.GeocodeResult{City: "Mumbai", Country: "India"}})

	profile := model.NewDefaultProfile("u-1")
	profile.FrequentLocations.Increment("Mumbai", time.Now())

	signal := model.LocationSignal{Latitude: 19.07, Longitude: 72.87, Accuracy: 10}
	behavior := e.Enrich(context.Background(), signal, nil, profile)

	assert.Equal(t, "Mumbai", behavior.City)
	assert.Equal(t, "India", behavior.Country)
	assert.True(t, behavior.IsKnownLocation)
	assert.False(t, behavior.IsHighRiskCountry)
}

func TestEnrichLocation_ImpossibleTravelSetsVpnAndStacksPenalties(t *testing.T) {
	e := newEnricher(&stubGeocoder{result: &client.GeocodeResult{City: "London", Country: "UK"}})

	// Roughly 1000 km in 30 minutes: ~2000 km/h.
	previous := &model.LastKnownLocation{
		Latitude:  48.8566,
		Longitude: 2.3522,
		City:      "Paris",
		Timestamp: 0,
	}
	signal := model.LocationSignal{
		Latitude:  39.86,
		Longitude: 2.3522, // ~1000 km due south
		Accuracy:  10,
		Timestamp: 30 * 60 * 1000,
	}

	behavior := e.Enrich(context.Background(), signal, previous, nil)

	assert.True(t, behavior.HasPreviousLocation)
	assert.Greater(t, behavior.VelocityKmh, 1000.0)
	assert.True(t, behavior.IsVpnDetected)
	assert.InDelta(t, 0.8, behavior.VpnConfidence, 1e-9)
	// Both velocity penalties stack: 0.4 + 0.2.
	assert.InDelta(t, 0.6, behavior.SpoofingRisk, 1e-9)
}

func TestEnrichLocation_FastButPossibleTravel(t *testing.T) {
	e := newEnricher(&stubGeocoder{result: &client.GeocodeResult{City: "Delhi", Country: "India"}})

	// ~1112 km in 90 minutes: ~740 km/h, an ordinary flight.
	previous := &model.LastKnownLocation{Latitude: 19.07, Longitude: 72.87, Timestamp: 0}
	signal := model.LocationSignal{
		Latitude:  29.07,
		Longitude: 72.87,
		Accuracy:  10,
		Timestamp: 90 * 60 * 1000,
	}

	behavior := e.Enrich(context.Background(), signal, previous, nil)

	assert.Greater(t, behavior.VelocityKmh, 500.0)
	assert.Less(t, behavior.VelocityKmh, 1000.0)
	assert.False(t, behavior.IsVpnDetected, "fast travel alone is not impossible travel")
	assert.InDelta(t, 0.2, behavior.SpoofingRisk, 1e-9)
}

func TestEnrichLocation_SignalQualityPenalties(t *testing.T) {
	tests := []struct {
		name     string
		signal   model.LocationSignal
		expected float64
	}{
		{
			name:     "suspiciously precise accuracy",
			signal:   model.LocationSignal{Latitude: 19, Longitude: 72, Accuracy: 0.5},
			expected: 0.2,
		},
		{
			name:     "suspiciously vague accuracy",
			signal:   model.LocationSignal{Latitude: 19, Longitude: 72, Accuracy: 5000},
			expected: 0.1,
		},
		{
			name:     "implausible altitude",
			signal:   model.LocationSignal{Latitude: 19, Longitude: 72, Accuracy: 10, Altitude: 20000},
			expected: 0.1,
		},
		{
			name:     "negative implausible altitude",
			signal:   model.LocationSignal{Latitude: 19, Longitude: 72, Accuracy: 10, Altitude: -20000},
			expected: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnricher(&stubGeocoder{result: &client.GeocodeResult{City: "X", Country: "Y"}})
			behavior := e.Enrich(context.Background(), tt.signal, nil, nil)
			assert.InDelta(t, tt.expected, behavior.SpoofingRisk, 1e-9)
		})
	}
}

func TestEnrichLocation_AllPenaltiesStackWithinBound(t *testing.T) {
	e := newEnricher(&stubGeocoder{err: errors.New("down")})

	// Impossible travel, suspiciously precise accuracy and implausible
	// altitude all at once.
	previous := &model.LastKnownLocation{Latitude: 0, Longitude: 0, Timestamp: 0}
	signal := model.LocationSignal{
		Latitude:  80,
		Longitude: 170,
		Accuracy:  0.1,
		Altitude:  30000,
		Timestamp: 1000, // one second
	}

	behavior := e.Enrich(context.Background(), signal, previous, nil)

	// 0.4 + 0.2 (velocity) + 0.2 (precision) + 0.1 (altitude).
	assert.InDelta(t, 0.9, behavior.SpoofingRisk, 1e-9)
	assert.LessOrEqual(t, behavior.SpoofingRisk, 1.0)
}

func TestEnrichLocation_HighRiskCountry(t *testing.T) {
	e := newEnricher(&stubGeocoder{result: &client.GeocodeResult{City: "Pyongyang", Country: "North Korea"}})

	signal := model.LocationSignal{Latitude: 39.03, Longitude: 125.75, Accuracy: 10}
	behavior := e.Enrich(context.Background(), signal, nil, nil)

	assert.True(t, behavior.IsHighRiskCountry)
}

func TestEnrichNetwork_KnownAndFirstSeen(t *testing.T) {
	e := NewNetworkEnricher(nil)

	profile := model.NewDefaultProfile("u-1")
	profile.FrequentNetworks.Increment("HomeWifi_wifi", time.Now())

	known := e.Enrich(model.NetworkSignal{NetworkName: "HomeWifi", NetworkType: "wifi"}, profile)
	assert.True(t, known.IsKnownNetwork)
	assert.False(t, known.IsFirstSeen)
	assert.Equal(t, "HomeWifi_wifi", known.NetworkKey)

	fresh := e.Enrich(model.NetworkSignal{NetworkName: "CafeWifi", NetworkType: "wifi"}, profile)
	assert.False(t, fresh.IsKnownNetwork)
	assert.True(t, fresh.IsFirstSeen)
}

func TestEnrichNetwork_EmptySignalDegrades(t *testing.T) {
	e := NewNetworkEnricher(nil)

	behavior := e.Enrich(model.NetworkSignal{}, model.NewDefaultProfile("u-1"))

	assert.Equal(t, "Unknown", behavior.NetworkKey)
	assert.False(t, behavior.IsKnownNetwork)
}

type suffixPseudonymizer struct{}

func (suffixPseudonymizer) Fingerprint(raw string) string { return "fp:" + raw }

func TestEnrichNetwork_PseudonymizesKey(t *testing.T) {
	e := NewNetworkEnricher(suffixPseudonymizer{})

	profile := model.NewDefaultProfile("u-1")
	profile.FrequentNetworks.Increment("fp:HomeWifi_wifi", time.Now())

	behavior := e.Enrich(model.NetworkSignal{NetworkName: "HomeWifi", NetworkType: "wifi"}, profile)

	assert.Equal(t, "fp:HomeWifi_wifi", behavior.NetworkKey)
	assert.True(t, behavior.IsKnownNetwork, "lookup uses the pseudonymized key")
}

func TestEnrichLogin_TypicalHourWindow(t *testing.T) {
	profile := model.NewDefaultProfile("u-1")
	profile.Login = model.LoginProfile{TypicalHourStart: 9, TypicalHourEnd: 22, LoginCount: 40}

	inWindow := EnrichLogin(model.LoginContext{Method: "mpin", TimeOfDayHour: 14}, profile)
	assert.True(t, inWindow.IsTypicalHour)

	outOfWindow := EnrichLogin(model.LoginContext{Method: "mpin", TimeOfDayHour: 3}, profile)
	assert.False(t, outOfWindow.IsTypicalHour)
}

func TestEnrichLogin_WrappingWindowAndNewUser(t *testing.T) {
	profile := model.NewDefaultProfile("u-1")
	profile.Login = model.LoginProfile{TypicalHourStart: 22, TypicalHourEnd: 2, LoginCount: 10}

	late := EnrichLogin(model.LoginContext{TimeOfDayHour: 23}, profile)
	assert.True(t, late.IsTypicalHour)

	early := EnrichLogin(model.LoginContext{TimeOfDayHour: 1}, profile)
	assert.True(t, early.IsTypicalHour)

	// No history yet: nothing is typical.
	fresh := EnrichLogin(model.LoginContext{TimeOfDayHour: 23}, model.NewDefaultProfile("u-2"))
	assert.False(t, fresh.IsTypicalHour)
}
