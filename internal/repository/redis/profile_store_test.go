package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"behavior-risk-service/internal/client"
	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/model"
)

func newTestStore(t *testing.T) (*ProfileStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := &client.RedisClient{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}

	cfg := &config.Config{
		Profile: config.ProfileConfig{
			MaxRetries:   5,
			RetryBackoff: 20 * time.Millisecond,
		},
	}

	return NewProfileStore(redisClient, cfg), mr
}

func TestGetOrCreate_WritesAllZeroDefault(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	profile, err := store.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", profile.UserID)
	assert.Zero(t, profile.SessionCount)
	assert.Empty(t, profile.FrequentLocations)
	assert.Zero(t, profile.Touch.SampleCount)
	assert.Zero(t, profile.Risk.CurrentScore)

	// Observable by a subsequent call: same default, not a second create.
	again, err := store.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, profile.UserID, again.UserID)
	assert.Zero(t, again.SessionCount)
}

func TestApplySession_IncrementsAndOverwritesTogether(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	update := SessionUpdate{
		LocationKey: "Mumbai",
		NetworkKey:  "HomeWifi_wifi",
		NewLocation: &model.LastKnownLocation{
			Latitude:  19.07,
			Longitude: 72.87,
			City:      "Mumbai",
			Country:   "India",
			Timestamp: 1700000000000,
		},
		Login:     model.LoginContext{Method: "mpin", TimeOfDayHour: 14},
		RiskScore: 0.2,
		Timestamp: 1700000000000,
	}

	require.NoError(t, store.ApplySession(ctx, "user-1", update))

	profile, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, profile.SessionCount)
	assert.EqualValues(t, 1, profile.FrequentLocations["Mumbai"].Count)
	assert.EqualValues(t, 1, profile.FrequentNetworks["HomeWifi_wifi"].Count)
	assert.EqualValues(t, 1, profile.Login.LoginCount)

	location, err := store.GetLastKnownLocation(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, location)
	assert.Equal(t, "Mumbai", location.City)
}

func TestApplySession_NotIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	update := SessionUpdate{LocationKey: "Delhi", Timestamp: 1700000000000}
	require.NoError(t, store.ApplySession(ctx, "user-1", update))
	require.NoError(t, store.ApplySession(ctx, "user-1", update))

	profile, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, profile.FrequentLocations["Delhi"].Count, "replayed sessions count twice")
	assert.EqualValues(t, 2, profile.SessionCount)
}

func TestApplySession_TrimsToTopTen(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// "Home" gets incremented often, the rest once each.
	for i := 0; i < 5; i++ {
		require.NoError(t, store.ApplySession(ctx, "user-1", SessionUpdate{
			LocationKey: "Home",
			Timestamp:   int64(1700000000000 + i),
		}))
	}
	for i := 0; i < 14; i++ {
		require.NoError(t, store.ApplySession(ctx, "user-1", SessionUpdate{
			LocationKey: fmt.Sprintf("city-%02d", i),
			Timestamp:   int64(1700000100000 + i),
		}))
	}

	profile, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(profile.FrequentLocations), model.MaxFrequencyEntries)
	assert.True(t, profile.FrequentLocations.Has("Home"), "highest count always survives")
	assert.True(t, profile.FrequentLocations.Has("city-13"), "most recent tie survives")
}

func TestApplySession_SkipsEmptyKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplySession(ctx, "user-1", SessionUpdate{
		Timestamp: 1700000000000,
		RiskScore: 0.5,
	}))

	profile, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, profile.FrequentLocations)
	assert.Empty(t, profile.FrequentNetworks)
	assert.EqualValues(t, 1, profile.SessionCount)
	assert.InDelta(t, 0.15, profile.Risk.CurrentScore, 1e-9)

	location, err := store.GetLastKnownLocation(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, location, "no location signal means no overwrite")
}

func TestApplySession_LearnsLoginWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hours := []int{10, 14, 9}
	for i, h := range hours {
		require.NoError(t, store.ApplySession(ctx, "user-1", SessionUpdate{
			Login:     model.LoginContext{Method: "mpin", TimeOfDayHour: h},
			Timestamp: int64(1700000000000 + i),
		}))
	}

	profile, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 9, profile.Login.TypicalHourStart)
	assert.Equal(t, 14, profile.Login.TypicalHourEnd)
	assert.EqualValues(t, 3, profile.Login.LoginCount)
}

func TestGetProfile_MissingUserIsError(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetProfile(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestGetLastKnownLocation_MissingReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	location, err := store.GetLastKnownLocation(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, location)
}

func TestRiskScoreCache_RoundTripAndMiss(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	result := &model.RiskScoreResult{
		SessionID:  "s-1",
		UserID:     "user-1",
		TotalScore: 0.4,
		Breakdown:  map[string]float64{model.FactorHesitation: 0.3},
		Timestamp:  1700000000000,
	}
	require.NoError(t, store.CacheRiskScore(ctx, result))

	cached, err := store.GetCachedRiskScore(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.InDelta(t, 0.4, cached.TotalScore, 1e-9)
	assert.InDelta(t, 0.3, cached.Breakdown[model.FactorHesitation], 1e-9)

	miss, err := store.GetCachedRiskScore(ctx, "s-unknown")
	require.NoError(t, err)
	assert.Nil(t, miss)
}
