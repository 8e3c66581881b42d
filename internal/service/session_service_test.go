package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"behavior-risk-service/internal/model"
	redisrepo "behavior-risk-service/internal/repository/redis"
)

type stubProfileStore struct {
	profile      *model.UserBehavioralProfile
	profileErr   error
	lastLocation *model.LastKnownLocation
	applyErr     error
	applied      []redisrepo.SessionUpdate
	appliedUsers []string
	cache        map[string]*model.RiskScoreResult
}

func newStubProfileStore() *stubProfileStore {
	return &stubProfileStore{cache: make(map[string]*model.RiskScoreResult)}
}

func (s *stubProfileStore) GetOrCreate(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	if s.profile != nil {
		return s.profile, nil
	}
	return model.NewDefaultProfile(userID), nil
}

func (s *stubProfileStore) GetProfile(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	if s.profile == nil {
		return nil, fmt.Errorf("profile not found for user %s", userID)
	}
	return s.profile, nil
}

func (s *stubProfileStore) GetLastKnownLocation(ctx context.Context, userID string) (*model.LastKnownLocation, error) {
	return s.lastLocation, nil
}

func (s *stubProfileStore) ApplySession(ctx context.Context, userID string, update redisrepo.SessionUpdate) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, update)
	s.appliedUsers = append(s.appliedUsers, userID)
	return nil
}

func (s *stubProfileStore) CacheRiskScore(ctx context.Context, result *model.RiskScoreResult) error {
	s.cache[result.SessionID] = result
	return nil
}

func (s *stubProfileStore) GetCachedRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error) {
	return s.cache[sessionID], nil
}

type stubRecordStore struct {
	scores        []*model.RiskScoreResult
	sessions      []*model.CalculatedSession
	snapshots     []*model.UserBehavioralProfile
	failSessionID string
	saveErr       error
	stored        *model.RiskScoreResult
	storedErr     error
}

func (s *stubRecordStore) SaveSessionRecord(ctx context.Context, session *model.CalculatedSession) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.failSessionID != "" && session.SessionID == s.failSessionID {
		return errors.New("write timeout")
	}
	s.scores = append(s.scores, &session.Risk)
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *stubRecordStore) GetRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error) {
	if s.storedErr != nil {
		return nil, s.storedErr
	}
	return s.stored, nil
}

func (s *stubRecordStore) SaveProfileSnapshot(ctx context.Context, profile *model.UserBehavioralProfile) error {
	s.snapshots = append(s.snapshots, profile)
	return nil
}

func (s *stubRecordStore) GetProfileSnapshot(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	for _, snapshot := range s.snapshots {
		if snapshot.UserID == userID {
			return snapshot, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubRecordStore) GetCalculatedSession(ctx context.Context, sessionID string) (*model.CalculatedSession, error) {
	for _, session := range s.sessions {
		if session.SessionID == sessionID {
			return session, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubRecordStore) ListRiskScoresByUser(ctx context.Context, userID string, limit int, pageState []byte) ([]*model.RiskScoreResult, []byte, error) {
	return s.scores, nil, nil
}

type stubLocationEnricher struct {
	behavior model.LocationBehavior
}

func (s stubLocationEnricher) Enrich(ctx context.Context, signal model.LocationSignal, previous *model.LastKnownLocation, profile *model.UserBehavioralProfile) model.LocationBehavior {
	return s.behavior
}

type stubNetworkEnricher struct {
	behavior model.NetworkBehavior
}

func (s stubNetworkEnricher) Enrich(signal model.NetworkSignal, profile *model.UserBehavioralProfile) model.NetworkBehavior {
	return s.behavior
}

func newTestService(profiles *stubProfileStore, records *stubRecordStore, location model.LocationBehavior, network model.NetworkBehavior) *SessionService {
	return NewSessionService(profiles, records,
		stubLocationEnricher{behavior: location},
		stubNetworkEnricher{behavior: network},
		nil)
}

func sampleTelemetry() *model.SessionTelemetry {
	return &model.SessionTelemetry{
		SessionID: "sess-1",
		UserID:    "user-1",
		Timestamp: 1700000000000,
		Location: model.LocationSignal{
			Latitude:  48.8566,
			Longitude: 2.3522,
			Accuracy:  25,
			Timestamp: 1700000000000,
		},
		Network: model.NetworkSignal{
			NetworkName: "HomeWifi",
			NetworkType: "wifi",
		},
		Login: model.LoginContext{
			Method:        "biometric",
			AttemptCount:  1,
			TimeOfDayHour: 10,
			DayOfWeek:     2,
		},
	}
}

func TestProcessSession_PersistsAndUpdatesProfile(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.LocationBehavior{City: "Paris", Country: "France", IsKnownLocation: true},
		model.NetworkBehavior{NetworkKey: "fp-homewifi", NetworkType: "wifi", IsKnownNetwork: true})

	result, err := svc.ProcessSession(context.Background(), sampleTelemetry())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.True(t, result.Flags.IsKnownLocation)
	assert.True(t, result.Flags.IsKnownNetwork)

	require.Len(t, records.scores, 1)
	require.Len(t, records.sessions, 1)
	assert.Equal(t, "Paris", records.sessions[0].Location.City)

	require.Len(t, profiles.applied, 1)
	update := profiles.applied[0]
	assert.Equal(t, "user-1", profiles.appliedUsers[0])
	assert.Equal(t, "Paris", update.LocationKey)
	assert.Equal(t, "fp-homewifi", update.NetworkKey)
	require.NotNil(t, update.NewLocation)
	assert.InDelta(t, 48.8566, update.NewLocation.Latitude, 1e-9)
	assert.Equal(t, result.TotalScore, update.RiskScore)

	cached := profiles.cache["sess-1"]
	require.NotNil(t, cached)
	assert.Equal(t, result.TotalScore, cached.TotalScore)
}

func TestProcessSession_SnapshotsUpdatedProfile(t *testing.T) {
	profiles := newStubProfileStore()
	profiles.profile = model.NewDefaultProfile("user-1")
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.LocationBehavior{City: "Paris", Country: "France"},
		model.UnknownNetworkBehavior())

	_, err := svc.ProcessSession(context.Background(), sampleTelemetry())
	require.NoError(t, err)

	require.Len(t, records.snapshots, 1)
	assert.Equal(t, "user-1", records.snapshots[0].UserID)
}

func TestGetProfile_FallsBackToSnapshot(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{
		snapshots: []*model.UserBehavioralProfile{model.NewDefaultProfile("user-1")},
	}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	profile, err := svc.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", profile.UserID)
}

func TestProcessSession_PersistenceFailureIsFatal(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{saveErr: errors.New("all hosts down")}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	result, err := svc.ProcessSession(context.Background(), sampleTelemetry())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailed)
	assert.Nil(t, result)
	assert.Empty(t, records.scores, "fatal error must leave no partial record behind")
	assert.Empty(t, records.sessions, "fatal error must leave no partial record behind")
	assert.Empty(t, profiles.applied, "profile must not change when the record was not written")
	assert.Empty(t, profiles.cache)
}

func TestProcessSession_ProfileReadFailureDegrades(t *testing.T) {
	profiles := newStubProfileStore()
	profiles.profileErr = errors.New("redis down")
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	result, err := svc.ProcessSession(context.Background(), sampleTelemetry())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, records.scores, 1, "scoring proceeds without history")
}

func TestProcessSession_ProfileConflictDoesNotFailSession(t *testing.T) {
	profiles := newStubProfileStore()
	profiles.applyErr = redisrepo.ErrConflictRetriesExhausted
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.LocationBehavior{City: "Paris", Country: "France"},
		model.UnknownNetworkBehavior())

	result, err := svc.ProcessSession(context.Background(), sampleTelemetry())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, records.scores, 1, "the session score stands even when the profile update is dropped")
}

func TestProcessSession_AnonymousSkipsProfile(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	telemetry := sampleTelemetry()
	telemetry.UserID = ""

	result, err := svc.ProcessSession(context.Background(), telemetry)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, profiles.applied)
	require.Len(t, records.scores, 1)
}

func TestProcessSession_GeneratesSessionID(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	telemetry := sampleTelemetry()
	telemetry.SessionID = ""

	result, err := svc.ProcessSession(context.Background(), telemetry)
	require.NoError(t, err)
	assert.Len(t, result.SessionID, 36)
}

func TestProcessSession_NoFixSkipsLocationUpdate(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	telemetry := sampleTelemetry()
	telemetry.Location = model.LocationSignal{}
	telemetry.Network = model.NetworkSignal{}

	_, err := svc.ProcessSession(context.Background(), telemetry)
	require.NoError(t, err)

	require.Len(t, profiles.applied, 1)
	update := profiles.applied[0]
	assert.Empty(t, update.LocationKey)
	assert.Nil(t, update.NewLocation)
	assert.Empty(t, update.NetworkKey, "degraded network key must not pollute the frequency table")
}

func TestGetRiskScore_CacheHit(t *testing.T) {
	profiles := newStubProfileStore()
	cached := &model.RiskScoreResult{SessionID: "sess-9", TotalScore: 0.5}
	profiles.cache["sess-9"] = cached
	records := &stubRecordStore{storedErr: errors.New("must not be reached")}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	result, err := svc.GetRiskScore(context.Background(), "sess-9")
	require.NoError(t, err)
	assert.Equal(t, cached, result)
}

func TestGetRiskScore_CacheMissFallsThrough(t *testing.T) {
	profiles := newStubProfileStore()
	stored := &model.RiskScoreResult{SessionID: "sess-9", TotalScore: 0.2}
	records := &stubRecordStore{stored: stored}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	result, err := svc.GetRiskScore(context.Background(), "sess-9")
	require.NoError(t, err)
	assert.Equal(t, stored, result)
	assert.Equal(t, stored, profiles.cache["sess-9"], "cache is refilled after a miss")
}

func TestProcessBatch_EntriesFailIndependently(t *testing.T) {
	profiles := newStubProfileStore()
	records := &stubRecordStore{failSessionID: "sess-bad"}
	svc := newTestService(profiles, records,
		model.UnknownLocationBehavior(), model.UnknownNetworkBehavior())

	bad := sampleTelemetry()
	bad.SessionID = "sess-bad"
	good := sampleTelemetry()
	good.SessionID = "sess-good"

	results := svc.ProcessBatch(context.Background(), []model.SessionTelemetry{*bad, *good})
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].Error)
	assert.Nil(t, results[0].Result)
	assert.Empty(t, results[1].Error)
	require.NotNil(t, results[1].Result)
	assert.Equal(t, "sess-good", results[1].Result.SessionID)
}
