package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/util"
)

// GeocodeResult is the resolved place for a coordinate pair.
type GeocodeResult struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// GeocodeClient resolves coordinates against an external reverse-geocoding
// service. Every lookup is bounded by the configured timeout; callers treat
// any error as "location unknown", never as a pipeline failure.
type GeocodeClient struct {
	httpClient *http.Client
	config     *config.GeocoderConfig
	logger     *zap.Logger
}

func NewGeocodeClient(cfg *config.Config, logger *zap.Logger) *GeocodeClient {
	geoConfig := cfg.Geocoder

	client := &http.Client{
		Timeout: geoConfig.Timeout,
	}

	util.Info("Geocode client initialized",
		zap.String("url", geoConfig.URL),
		zap.Duration("timeout", geoConfig.Timeout),
	)

	return &GeocodeClient{
		httpClient: client,
		config:     &geoConfig,
		logger:     util.Get(),
	}
}

// ReverseGeocode resolves latitude/longitude to a city and country.
func (g *GeocodeClient) ReverseGeocode(ctx context.Context, latitude, longitude float64) (*GeocodeResult, error) {
	endpoint, err := url.Parse(g.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoder URL: %w", err)
	}

	query := endpoint.Query()
	query.Set("lat", strconv.FormatFloat(latitude, 'f', 6, 64))
	query.Set("lon", strconv.FormatFloat(longitude, 'f', 6, 64))
	if g.config.APIKey != "" {
		query.Set("key", g.config.APIKey)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var result GeocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}

	if result.City == "" && result.Country == "" {
		return nil, fmt.Errorf("geocoder returned empty place for (%f, %f)", latitude, longitude)
	}

	return &result, nil
}
