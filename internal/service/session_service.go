package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"behavior-risk-service/internal/enrich"
	"behavior-risk-service/internal/features"
	"behavior-risk-service/internal/metrics"
	"behavior-risk-service/internal/model"
	redisrepo "behavior-risk-service/internal/repository/redis"
	"behavior-risk-service/internal/scoring"
	"behavior-risk-service/internal/util"
)

// ErrPersistenceFailed marks the one fatal failure mode: the final record
// could not be appended. The caller retries the whole submission; nothing
// partial was written.
var ErrPersistenceFailed = errors.New("failed to persist session record")

// ErrNotFound is returned by the read paths for unknown sessions or users.
var ErrNotFound = errors.New("not found")

// ProfileStore is the per-user profile collaborator.
type ProfileStore interface {
	GetOrCreate(ctx context.Context, userID string) (*model.UserBehavioralProfile, error)
	GetProfile(ctx context.Context, userID string) (*model.UserBehavioralProfile, error)
	GetLastKnownLocation(ctx context.Context, userID string) (*model.LastKnownLocation, error)
	ApplySession(ctx context.Context, userID string, update redisrepo.SessionUpdate) error
	CacheRiskScore(ctx context.Context, result *model.RiskScoreResult) error
	GetCachedRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error)
}

// RiskRecordStore is the authoritative append-only record collaborator.
type RiskRecordStore interface {
	SaveSessionRecord(ctx context.Context, session *model.CalculatedSession) error
	GetRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error)
	GetCalculatedSession(ctx context.Context, sessionID string) (*model.CalculatedSession, error)
	ListRiskScoresByUser(ctx context.Context, userID string, limit int, pageState []byte) ([]*model.RiskScoreResult, []byte, error)
	SaveProfileSnapshot(ctx context.Context, profile *model.UserBehavioralProfile) error
	GetProfileSnapshot(ctx context.Context, userID string) (*model.UserBehavioralProfile, error)
}

type locationEnricher interface {
	Enrich(ctx context.Context, signal model.LocationSignal, previous *model.LastKnownLocation, profile *model.UserBehavioralProfile) model.LocationBehavior
}

type networkEnricher interface {
	Enrich(signal model.NetworkSignal, profile *model.UserBehavioralProfile) model.NetworkBehavior
}

// SessionService drives one session through the pipeline:
// extract -> enrich -> score -> persist. Enrichment failures degrade to
// documented defaults and the pipeline continues; only persistence of the
// final record is fatal. Collaborators are injected, never reached through
// globals, so every stage is testable in isolation.
type SessionService struct {
	profiles ProfileStore
	records  RiskRecordStore
	location locationEnricher
	network  networkEnricher
	scorer   *scoring.Scorer
	sink     *AnalyticsSink // nil disables analytics fan-out
}

func NewSessionService(
	profiles ProfileStore,
	records RiskRecordStore,
	location locationEnricher,
	network networkEnricher,
	sink *AnalyticsSink,
) *SessionService {
	return &SessionService{
		profiles: profiles,
		records:  records,
		location: location,
		network:  network,
		scorer:   scoring.NewScorer(),
		sink:     sink,
	}
}

// ProcessSession runs the full pipeline for one telemetry record and
// returns the computed risk score. A risk assessment is always produced,
// even if every enrichment collaborator is down; an error return means the
// final record was not persisted and the caller must retry.
func (s *SessionService) ProcessSession(ctx context.Context, telemetry *model.SessionTelemetry) (*model.RiskScoreResult, error) {
	sessionID := telemetry.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	timestamp := telemetry.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	// Feature extraction and profile reads are independent; run them
	// concurrently. The extractors are total functions, and a failed
	// profile read degrades to nil (taxonomy: non-fatal, logged).
	var (
		touch        model.TouchGestureSummary
		typing       model.TypingSummary
		profile      *model.UserBehavioralProfile
		lastLocation *model.LastKnownLocation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		touch = features.SummarizeTouch(telemetry.Touches, sessionID)
		return nil
	})
	g.Go(func() error {
		typing = features.SummarizeTyping(telemetry.Keystrokes, telemetry.Login.Method)
		return nil
	})
	if telemetry.UserID != "" {
		g.Go(func() error {
			loaded, err := s.profiles.GetOrCreate(gctx, telemetry.UserID)
			if err != nil {
				util.Warn("Profile read failed, enriching without history",
					zap.String("user_id", telemetry.UserID),
					zap.Error(err))
				return nil
			}
			profile = loaded
			return nil
		})
		g.Go(func() error {
			loaded, err := s.profiles.GetLastKnownLocation(gctx, telemetry.UserID)
			if err != nil {
				util.Warn("Last-location read failed, skipping travel check",
					zap.String("user_id", telemetry.UserID),
					zap.Error(err))
				return nil
			}
			lastLocation = loaded
			return nil
		})
	}
	_ = g.Wait()

	locationBehavior := s.location.Enrich(ctx, telemetry.Location, lastLocation, profile)
	networkBehavior := s.network.Enrich(telemetry.Network, profile)
	loginBehavior := enrich.EnrichLogin(telemetry.Login, profile)

	result := s.scorer.Score(touch, typing, locationBehavior, networkBehavior, loginBehavior,
		sessionID, telemetry.UserID, timestamp)

	session := &model.CalculatedSession{
		SessionID: sessionID,
		UserID:    telemetry.UserID,
		Touch:     touch,
		Typing:    typing,
		Location:  locationBehavior,
		Network:   networkBehavior,
		Login:     loginBehavior,
		Device:    telemetry.Device,
		Risk:      result,
		CreatedAt: timestamp,
	}

	// Persistence of the final record is the only fatal step. The store
	// appends the risk score and the calculated session as one atomic
	// write, so a failure here leaves nothing behind.
	if err := s.records.SaveSessionRecord(ctx, session); err != nil {
		metrics.SessionsScoredTotal.WithLabelValues("persist_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	metrics.SessionsScoredTotal.WithLabelValues("scored").Inc()
	metrics.RiskScoreDistribution.Observe(result.TotalScore)

	s.updateProfile(ctx, telemetry, &result, locationBehavior, networkBehavior, touch, typing, timestamp)

	if err := s.profiles.CacheRiskScore(ctx, &result); err != nil {
		util.Debug("Risk score cache write failed", zap.Error(err))
	}

	if s.sink != nil {
		s.sink.Publish(ctx, session, telemetry.Location)
	}

	util.Info("Session scored",
		zap.String("session_id", sessionID),
		zap.String("user_id", telemetry.UserID),
		zap.Float64("total_score", result.TotalScore),
		zap.Bool("vpn_detected", result.Flags.IsVpnDetected))

	return &result, nil
}

// updateProfile folds the session into the user's profile. Best-effort: a
// conflict that survives all retries drops this session's contribution but
// never fails the session itself.
func (s *SessionService) updateProfile(
	ctx context.Context,
	telemetry *model.SessionTelemetry,
	result *model.RiskScoreResult,
	location model.LocationBehavior,
	network model.NetworkBehavior,
	touch model.TouchGestureSummary,
	typing model.TypingSummary,
	timestamp int64,
) {
	if telemetry.UserID == "" {
		return
	}

	update := redisrepo.SessionUpdate{
		Touch:     touch,
		Typing:    typing,
		Login:     telemetry.Login,
		RiskScore: result.TotalScore,
		Timestamp: timestamp,
	}

	// The frequency increment and the last-location overwrite are tied to
	// having an actual coordinate fix; they land atomically in the store.
	if telemetry.Location.HasFix() {
		update.LocationKey = location.City
		update.NewLocation = &model.LastKnownLocation{
			Latitude:  telemetry.Location.Latitude,
			Longitude: telemetry.Location.Longitude,
			City:      location.City,
			Country:   location.Country,
			Timestamp: timestamp,
		}
	}
	if network.NetworkKey != "" && network.NetworkKey != "Unknown" {
		update.NetworkKey = network.NetworkKey
	}

	if err := s.profiles.ApplySession(ctx, telemetry.UserID, update); err != nil {
		util.Warn("Profile update dropped for session",
			zap.String("session_id", result.SessionID),
			zap.String("user_id", telemetry.UserID),
			zap.Error(err))
		return
	}

	s.snapshotProfile(ctx, telemetry.UserID)
}

// snapshotProfile copies the live profile into the durable store so a
// cache loss does not erase learned behavior. Best-effort.
func (s *SessionService) snapshotProfile(ctx context.Context, userID string) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		util.Debug("Profile snapshot read failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := s.records.SaveProfileSnapshot(ctx, profile); err != nil {
		util.Warn("Profile snapshot write failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// BatchResult pairs one batch entry with its outcome.
type BatchResult struct {
	SessionID string                 `json:"session_id"`
	Result    *model.RiskScoreResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ProcessBatch scores a batch of sessions in submission order. Entries fail
// independently; one bad session never poisons the rest.
func (s *SessionService) ProcessBatch(ctx context.Context, batch []model.SessionTelemetry) []BatchResult {
	results := make([]BatchResult, 0, len(batch))
	for i := range batch {
		telemetry := &batch[i]
		result, err := s.ProcessSession(ctx, telemetry)
		if err != nil {
			results = append(results, BatchResult{SessionID: telemetry.SessionID, Error: err.Error()})
			continue
		}
		results = append(results, BatchResult{SessionID: result.SessionID, Result: result})
	}
	return results
}

// GetRiskScore serves one session's result, read-through: Redis cache
// first, then the authoritative store, refilling the cache on a miss.
func (s *SessionService) GetRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error) {
	cached, err := s.profiles.GetCachedRiskScore(ctx, sessionID)
	if err != nil {
		util.Debug("Risk cache read failed, falling through", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	result, err := s.records.GetRiskScore(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.CacheRiskScore(ctx, result); err != nil {
		util.Debug("Risk cache refill failed", zap.Error(err))
	}
	return result, nil
}

// GetSessionDetail returns the full calculated record for one session,
// summaries and behaviors included. Always reads the authoritative store;
// the cache only holds the compact score.
func (s *SessionService) GetSessionDetail(ctx context.Context, sessionID string) (*model.CalculatedSession, error) {
	return s.records.GetCalculatedSession(ctx, sessionID)
}

// GetProfile returns the stored behavioral profile for a user. When the
// live store is unavailable the durable snapshot answers instead.
func (s *SessionService) GetProfile(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}

	util.Warn("Live profile read failed, trying snapshot",
		zap.String("user_id", userID),
		zap.Error(err))
	return s.records.GetProfileSnapshot(ctx, userID)
}

// ListUserScores returns one page of a user's results, newest first.
func (s *SessionService) ListUserScores(ctx context.Context, userID string, limit int, pageState []byte) ([]*model.RiskScoreResult, []byte, error) {
	return s.records.ListRiskScoresByUser(ctx, userID, limit, pageState)
}
