// Package stats provides the pure numeric primitives shared by the feature
// extractors and the geo enricher. All functions are total: empty input
// yields 0, never NaN.
package stats

import "math"

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation,
// sqrt(mean((x-mean)^2)). Empty and single-element slices yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// HaversineKm returns the great-circle distance in kilometers between two
// coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// VelocityKmh returns the travel velocity implied by covering distanceKm in
// elapsedMillis. Non-positive elapsed time yields 0.
func VelocityKmh(distanceKm float64, elapsedMillis int64) float64 {
	if elapsedMillis <= 0 {
		return 0
	}
	hours := float64(elapsedMillis) / (1000 * 60 * 60)
	return distanceKm / hours
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
