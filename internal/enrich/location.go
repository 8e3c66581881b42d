// Package enrich turns raw location and network signals into behavioral
// assessments against the user's profile. Enrichment reads the profile and
// calls the geocoding collaborator but never mutates shared state; profile
// writes belong to the store adapter so tests can stub the external call
// without a live store.
package enrich

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"behavior-risk-service/internal/client"
	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/stats"
	"behavior-risk-service/internal/util"
)

// Travel-speed and signal-quality thresholds for location spoofing. The
// velocity penalties stack: an impossible-travel reading trips both.
const (
	impossibleTravelKmh = 1000.0
	fastTravelKmh       = 500.0

	suspiciouslyPreciseAccuracy = 1.0    // meters
	suspiciouslyVagueAccuracy   = 1000.0 // meters
	maxPlausibleAltitudeM       = 10000.0

	impossibleTravelPenalty = 0.4
	fastTravelPenalty       = 0.2
	precisionPenalty        = 0.2
	vaguenessPenalty        = 0.1
	altitudePenalty         = 0.1
	maxSpoofingRisk         = 1.0

	vpnDetectedConfidence = 0.8
	vpnAbsentConfidence   = 0.1
)

// Countries flagged as elevated fraud origin. Static membership test, no
// IP-level inspection.
var highRiskCountries = map[string]bool{
	"North Korea": true,
	"Iran":        true,
	"Syria":       true,
	"Myanmar":     true,
	"Sudan":       true,
}

// Geocoder resolves a coordinate to a place. Satisfied by
// client.GeocodeClient.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (*client.GeocodeResult, error)
}

// LocationEnricher assesses one session's location signal.
type LocationEnricher struct {
	geocoder Geocoder
	timeout  time.Duration
}

func NewLocationEnricher(geocoder Geocoder, timeout time.Duration) *LocationEnricher {
	return &LocationEnricher{
		geocoder: geocoder,
		timeout:  timeout,
	}
}

// Enrich resolves the signal to a place, measures travel since the previous
// location and derives the spoofing and VPN signals. It never fails: any
// collaborator error degrades to the Unknown defaults and the pipeline
// continues. previous and profile may be nil when the user is new or the
// profile read failed.
func (e *LocationEnricher) Enrich(
	ctx context.Context,
	signal model.LocationSignal,
	previous *model.LastKnownLocation,
	profile *model.UserBehavioralProfile,
) model.LocationBehavior {
	if !signal.HasFix() {
		return model.UnknownLocationBehavior()
	}

	behavior := model.UnknownLocationBehavior()

	geoCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	place, err := e.geocoder.ReverseGeocode(geoCtx, signal.Latitude, signal.Longitude)
	if err != nil {
		util.Warn("reverse geocode failed, continuing with unknown place",
			zap.Float64("latitude", signal.Latitude),
			zap.Float64("longitude", signal.Longitude),
			zap.Error(err))
	} else {
		if place.City != "" {
			behavior.City = place.City
		}
		if place.Country != "" {
			behavior.Country = place.Country
		}
	}

	risk := 0.0

	if previous != nil && previous.Timestamp > 0 {
		behavior.HasPreviousLocation = true
		behavior.DistanceFromLastKm = stats.HaversineKm(
			previous.Latitude, previous.Longitude,
			signal.Latitude, signal.Longitude,
		)
		behavior.VelocityKmh = stats.VelocityKmh(behavior.DistanceFromLastKm, signal.Timestamp-previous.Timestamp)

		if behavior.VelocityKmh > impossibleTravelKmh {
			risk += impossibleTravelPenalty
			behavior.IsVpnDetected = true
			behavior.VpnConfidence = vpnDetectedConfidence
		}
		if behavior.VelocityKmh > fastTravelKmh {
			risk += fastTravelPenalty
		}
	}

	if signal.Accuracy < suspiciouslyPreciseAccuracy {
		risk += precisionPenalty
	}
	if signal.Accuracy > suspiciouslyVagueAccuracy {
		risk += vaguenessPenalty
	}
	if math.Abs(signal.Altitude) > maxPlausibleAltitudeM {
		risk += altitudePenalty
	}

	if risk > maxSpoofingRisk {
		risk = maxSpoofingRisk
	}
	behavior.SpoofingRisk = risk

	behavior.IsHighRiskCountry = highRiskCountries[behavior.Country]

	if profile != nil {
		behavior.IsKnownLocation = profile.FrequentLocations.Has(behavior.City)
	}

	return behavior
}
