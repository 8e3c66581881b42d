package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"behavior-risk-service/internal/client"
	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/util"
)

const (
	profilePrefix      = "behavior_profile:"
	lastLocationPrefix = "last_location:"
	riskCachePrefix    = "risk_cache:"

	riskCacheTTL = 15 * time.Minute

	// Exponential moving average weight for the running risk baseline.
	riskEMAWeight     = 0.3
	highRiskThreshold = 0.7
)

// ErrConflictRetriesExhausted is returned when concurrent sessions for the
// same user kept invalidating the optimistic transaction. The caller treats
// the profile update as dropped; the session's own score still stands.
var ErrConflictRetriesExhausted = errors.New("profile update retries exhausted")

// SessionUpdate is everything one scored session contributes to the user's
// profile. Applied atomically: the frequency increments and the last-known
// location land together or not at all.
type SessionUpdate struct {
	LocationKey string                   // resolved city; empty skips the location table
	NetworkKey  string                   // pseudonymized name_type; empty skips the network table
	NewLocation *model.LastKnownLocation // nil skips the last-location overwrite
	Touch       model.TouchGestureSummary
	Typing      model.TypingSummary
	Login       model.LoginContext
	RiskScore   float64
	Timestamp   int64 // epoch millis
}

// ProfileStore owns every read-modify-write against the per-user behavioral
// profile. Concurrent sessions for one user contend here and nowhere else;
// WATCH-based optimistic transactions with bounded retries resolve the
// increment-then-trim race.
type ProfileStore struct {
	client     *client.RedisClient
	maxRetries int
	backoff    time.Duration
}

func NewProfileStore(redisClient *client.RedisClient, cfg *config.Config) *ProfileStore {
	return &ProfileStore{
		client:     redisClient,
		maxRetries: cfg.Profile.MaxRetries,
		backoff:    cfg.Profile.RetryBackoff,
	}
}

// GetOrCreate returns the user's profile, writing the all-zero default on
// first contact. Idempotent: a concurrent first call observes the same
// default thanks to SETNX.
func (s *ProfileStore) GetOrCreate(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	key := profilePrefix + userID

	defaultProfile := model.NewDefaultProfile(userID)
	payload, err := json.Marshal(defaultProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal default profile: %w", err)
	}

	created, err := s.client.SetNX(ctx, key, string(payload), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile: %w", err)
	}
	if created {
		util.Info("Default behavioral profile created", zap.String("user_id", userID))
		return defaultProfile, nil
	}

	return s.getProfile(ctx, key, userID)
}

// GetProfile returns the stored profile without creating one. A missing
// profile is an error; callers surface it as not-found.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	return s.getProfile(ctx, profilePrefix+userID, userID)
}

func (s *ProfileStore) getProfile(ctx context.Context, key, userID string) (*model.UserBehavioralProfile, error) {
	raw, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}

	var profile model.UserBehavioralProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile for %s: %w", userID, err)
	}
	if profile.FrequentLocations == nil {
		profile.FrequentLocations = make(model.FrequencyTable)
	}
	if profile.FrequentNetworks == nil {
		profile.FrequentNetworks = make(model.FrequencyTable)
	}
	return &profile, nil
}

// GetLastKnownLocation returns the user's most recent location, or nil when
// none has been recorded yet.
func (s *ProfileStore) GetLastKnownLocation(ctx context.Context, userID string) (*model.LastKnownLocation, error) {
	key := lastLocationPrefix + userID

	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if err.Error() == fmt.Sprintf("key not found: %s", key) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load last location for %s: %w", userID, err)
	}

	var location model.LastKnownLocation
	if err := json.Unmarshal([]byte(raw), &location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last location for %s: %w", userID, err)
	}
	return &location, nil
}

// ApplySession folds one session into the profile. The whole read-modify-
// write runs under WATCH on the profile and last-location keys; a concurrent
// writer fails the EXEC and the sequence retries with exponential backoff
// and jitter, up to the configured attempt limit.
func (s *ProfileStore) ApplySession(ctx context.Context, userID string, update SessionUpdate) error {
	profileKey := profilePrefix + userID
	locationKey := lastLocationPrefix + userID

	txn := func(tx *goredis.Tx) error {
		profile := model.NewDefaultProfile(userID)
		raw, err := tx.Get(ctx, profileKey).Result()
		if err != nil && err != goredis.Nil {
			return fmt.Errorf("failed to read profile: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal([]byte(raw), profile); err != nil {
				return fmt.Errorf("failed to unmarshal profile: %w", err)
			}
			if profile.FrequentLocations == nil {
				profile.FrequentLocations = make(model.FrequencyTable)
			}
			if profile.FrequentNetworks == nil {
				profile.FrequentNetworks = make(model.FrequencyTable)
			}
		}

		s.mutate(profile, update)

		payload, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}

		var locationPayload []byte
		if update.NewLocation != nil {
			locationPayload, err = json.Marshal(update.NewLocation)
			if err != nil {
				return fmt.Errorf("failed to marshal last location: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, profileKey, string(payload), 0)
			if locationPayload != nil {
				pipe.Set(ctx, locationKey, string(locationPayload), 0)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, profileKey, locationKey)
		if err == nil {
			util.Debug("Profile updated",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt+1))
			return nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return fmt.Errorf("profile update failed for %s: %w", userID, err)
		}

		delay := s.backoff << uint(attempt)
		delay += time.Duration(rand.Int63n(int64(s.backoff)))
		util.Debug("Profile update conflict, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	util.Warn("Profile update dropped after repeated conflicts",
		zap.String("user_id", userID),
		zap.Int("max_retries", s.maxRetries))
	return ErrConflictRetriesExhausted
}

func (s *ProfileStore) mutate(profile *model.UserBehavioralProfile, update SessionUpdate) {
	now := time.UnixMilli(update.Timestamp)

	profile.SessionCount++
	profile.LastUpdated = update.Timestamp

	if update.LocationKey != "" {
		profile.FrequentLocations.Increment(update.LocationKey, now)
		profile.FrequentLocations.Trim(model.MaxFrequencyEntries)
	}
	if update.NetworkKey != "" {
		profile.FrequentNetworks.Increment(update.NetworkKey, now)
		profile.FrequentNetworks.Trim(model.MaxFrequencyEntries)
	}

	profile.Touch.MergeSample(update.Touch)
	profile.Typing.MergeSample(update.Typing)

	if update.Login.Method != "" {
		hour := update.Login.TimeOfDayHour
		if profile.Login.LoginCount == 0 {
			profile.Login.TypicalHourStart = hour
			profile.Login.TypicalHourEnd = hour
		} else {
			if hour < profile.Login.TypicalHourStart {
				profile.Login.TypicalHourStart = hour
			}
			if hour > profile.Login.TypicalHourEnd {
				profile.Login.TypicalHourEnd = hour
			}
		}
		profile.Login.LoginCount++
	}

	profile.Risk.CurrentScore = (1-riskEMAWeight)*profile.Risk.CurrentScore + riskEMAWeight*update.RiskScore
	if update.RiskScore > highRiskThreshold {
		profile.Risk.HighRiskCount++
	}
	profile.Risk.LastScoredAt = update.Timestamp
}

// CacheRiskScore stores a freshly computed result for read-through serving.
func (s *ProfileStore) CacheRiskScore(ctx context.Context, result *model.RiskScoreResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal risk score: %w", err)
	}
	if err := s.client.Set(ctx, riskCachePrefix+result.SessionID, string(payload), riskCacheTTL); err != nil {
		return fmt.Errorf("failed to cache risk score: %w", err)
	}
	return nil
}

// GetCachedRiskScore returns the cached result for a session, or nil on a
// cache miss.
func (s *ProfileStore) GetCachedRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error) {
	key := riskCachePrefix + sessionID

	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if err.Error() == fmt.Sprintf("key not found: %s", key) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read risk cache: %w", err)
	}

	var result model.RiskScoreResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached risk score: %w", err)
	}
	return &result, nil
}
