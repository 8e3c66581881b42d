package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"behavior-risk-service/internal/bucketing"
	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/util"
)

// ErrRecordNotFound is returned when no record exists for the requested key.
var ErrRecordNotFound = errors.New("record not found")

// RiskRecordRepository owns the authoritative append-only risk tables.
// Records are immutable once written; a write failure here is fatal for the
// session and surfaced to the caller for retry.
type RiskRecordRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewRiskRecordRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) *RiskRecordRepository {
	return &RiskRecordRepository{
		client:  client,
		buckets: buckets,
	}
}

// SaveSessionRecord appends the risk score (both views) and the full
// calculated record in one logged batch. All three inserts land together
// or not at all, so a failed session never leaves a partial record.
func (r *RiskRecordRepository) SaveSessionRecord(ctx context.Context, session *model.CalculatedSession) error {
	result := &session.Risk
	scoredAt := time.UnixMilli(result.Timestamp).UTC()
	userBucket := r.buckets.GetUserBucket(result.UserID)

	touchJSON, err := json.Marshal(session.Touch)
	if err != nil {
		return fmt.Errorf("failed to marshal touch summary: %w", err)
	}
	typingJSON, err := json.Marshal(session.Typing)
	if err != nil {
		return fmt.Errorf("failed to marshal typing summary: %w", err)
	}
	locationJSON, err := json.Marshal(session.Location)
	if err != nil {
		return fmt.Errorf("failed to marshal location behavior: %w", err)
	}
	networkJSON, err := json.Marshal(session.Network)
	if err != nil {
		return fmt.Errorf("failed to marshal network behavior: %w", err)
	}
	loginJSON, err := json.Marshal(session.Login)
	if err != nil {
		return fmt.Errorf("failed to marshal login behavior: %w", err)
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.InsertRiskScore.Statement(),
		result.SessionID, result.UserID, result.TotalScore, result.Breakdown,
		result.Flags.IsVpnDetected, result.Flags.IsHighRiskCountry,
		result.Flags.IsKnownLocation, result.Flags.IsKnownNetwork,
		scoredAt)

	batch.Query(r.client.Prepared.InsertRiskScoreByUser.Statement(),
		userBucket, result.UserID, scoredAt, result.SessionID, result.TotalScore, result.Breakdown,
		result.Flags.IsVpnDetected, result.Flags.IsHighRiskCountry,
		result.Flags.IsKnownLocation, result.Flags.IsKnownNetwork)

	batch.Query(r.client.Prepared.InsertCalculatedSession.Statement(),
		session.SessionID, session.UserID,
		r.buckets.GetDateBucket(session.CreatedAt),
		string(touchJSON), string(typingJSON),
		string(locationJSON), string(networkJSON), string(loginJSON),
		session.Device.Fingerprint,
		session.Risk.TotalScore,
		time.UnixMilli(session.CreatedAt).UTC())

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to persist session record",
			zap.String("session_id", result.SessionID),
			zap.String("user_id", result.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to persist session record: %w", err)
	}

	util.Debug("Session record persisted",
		zap.String("session_id", result.SessionID),
		zap.Float64("total_score", result.TotalScore))
	return nil
}

// GetRiskScore loads one session's result.
func (r *RiskRecordRepository) GetRiskScore(ctx context.Context, sessionID string) (*model.RiskScoreResult, error) {
	result := &model.RiskScoreResult{}
	var scoredAt time.Time

	query := r.client.Prepared.GetRiskScoreBySession.WithContext(ctx).Bind(sessionID)
	err := r.client.ScanWithRetry(query,
		&result.SessionID, &result.UserID, &result.TotalScore, &result.Breakdown,
		&result.Flags.IsVpnDetected, &result.Flags.IsHighRiskCountry,
		&result.Flags.IsKnownLocation, &result.Flags.IsKnownNetwork,
		&scoredAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("risk score for session %s: %w", sessionID, ErrRecordNotFound)
		}
		util.Error("Failed to load risk score",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load risk score: %w", err)
	}

	result.Timestamp = scoredAt.UnixMilli()
	return result, nil
}

// ListRiskScoresByUser returns one page of a user's results, newest first.
// pageState continues a previous page; nil starts from the top.
func (r *RiskRecordRepository) ListRiskScoresByUser(ctx context.Context, userID string, limit int, pageState []byte) ([]*model.RiskScoreResult, []byte, error) {
	userBucket := r.buckets.GetUserBucket(userID)

	query := r.client.Prepared.ListRiskScoresByUser.
		WithContext(ctx).
		Bind(userBucket, userID).
		PageSize(limit).
		PageState(pageState)

	iter := query.Iter()

	var results []*model.RiskScoreResult
	for {
		result := &model.RiskScoreResult{}
		var scoredAt time.Time
		if !iter.Scan(
			&result.SessionID, &result.UserID, &result.TotalScore, &result.Breakdown,
			&result.Flags.IsVpnDetected, &result.Flags.IsHighRiskCountry,
			&result.Flags.IsKnownLocation, &result.Flags.IsKnownNetwork,
			&scoredAt) {
			break
		}
		result.Timestamp = scoredAt.UnixMilli()
		results = append(results, result)
	}

	nextPage := iter.PageState()
	if err := iter.Close(); err != nil {
		util.Error("Failed to list risk scores",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to list risk scores: %w", err)
	}

	return results, nextPage, nil
}

// SaveProfileSnapshot upserts a durable copy of the behavioral profile.
// The live profile stays in Redis; this copy exists so a cache loss does
// not erase learned behavior.
func (r *RiskRecordRepository) SaveProfileSnapshot(ctx context.Context, profile *model.UserBehavioralProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile snapshot: %w", err)
	}

	query := r.client.Prepared.UpsertProfileSnapshot.WithContext(ctx).Bind(
		profile.UserID, string(profileJSON), time.UnixMilli(profile.LastUpdated).UTC())

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to persist profile snapshot: %w", err)
	}

	util.Debug("Profile snapshot persisted", zap.String("user_id", profile.UserID))
	return nil
}

// GetProfileSnapshot loads the durable profile copy for a user.
func (r *RiskRecordRepository) GetProfileSnapshot(ctx context.Context, userID string) (*model.UserBehavioralProfile, error) {
	var storedUserID, profileJSON string
	var updatedAt time.Time

	query := r.client.Prepared.GetProfileSnapshot.WithContext(ctx).Bind(userID)
	err := r.client.ScanWithRetry(query, &storedUserID, &profileJSON, &updatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("profile snapshot for user %s: %w", userID, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to load profile snapshot: %w", err)
	}

	profile := &model.UserBehavioralProfile{}
	if err := json.Unmarshal([]byte(profileJSON), profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile snapshot: %w", err)
	}
	return profile, nil
}

// GetCalculatedSession loads the full record for one session.
func (r *RiskRecordRepository) GetCalculatedSession(ctx context.Context, sessionID string) (*model.CalculatedSession, error) {
	session := &model.CalculatedSession{}
	var sessionDate, deviceFingerprint string
	var touchJSON, typingJSON, locationJSON, networkJSON, loginJSON string
	var totalScore float64
	var createdAt time.Time

	query := r.client.Prepared.GetCalculatedSession.WithContext(ctx).Bind(sessionID)
	err := r.client.ScanWithRetry(query,
		&session.SessionID, &session.UserID, &sessionDate,
		&touchJSON, &typingJSON, &locationJSON, &networkJSON, &loginJSON,
		&deviceFingerprint, &totalScore, &createdAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("calculated session %s: %w", sessionID, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to load calculated session: %w", err)
	}

	if err := json.Unmarshal([]byte(touchJSON), &session.Touch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal touch summary: %w", err)
	}
	if err := json.Unmarshal([]byte(typingJSON), &session.Typing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal typing summary: %w", err)
	}
	if err := json.Unmarshal([]byte(locationJSON), &session.Location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location behavior: %w", err)
	}
	if err := json.Unmarshal([]byte(networkJSON), &session.Network); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network behavior: %w", err)
	}
	if err := json.Unmarshal([]byte(loginJSON), &session.Login); err != nil {
		return nil, fmt.Errorf("failed to unmarshal login behavior: %w", err)
	}

	session.Device.Fingerprint = deviceFingerprint
	session.Risk.TotalScore = totalScore
	session.Risk.SessionID = session.SessionID
	session.Risk.UserID = session.UserID
	session.CreatedAt = createdAt.UnixMilli()
	return session, nil
}
