package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"behavior-risk-service/internal/client"
	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/encryption"
	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/util"
)

const insertAnalyticsRowQuery = `
	INSERT INTO session_risk_events (
		session_id, user_id, total_score, spoofing_risk, velocity_kmh,
		city, country, is_vpn_detected, is_high_risk_country, is_known_location,
		gesture_count, keystroke_count, hesitation_count, rapid_touch_count,
		encrypted_coordinates, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// AnalyticsSink fans a scored session out to the analytics consumers:
// a ClickHouse event row, an Elasticsearch dashboard document and a Kafka
// event for downstream decision systems. Every write here is best-effort;
// the authoritative record already lives in Scylla by the time the sink
// runs, so a sink failure is logged and swallowed.
type AnalyticsSink struct {
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	kafka      *client.KafkaProducer
	encryption *encryption.EncryptionManager

	riskTopic string
	riskIndex string
}

func NewAnalyticsSink(
	clickhouse *client.ClickHouseClient,
	es *client.ESClient,
	kafka *client.KafkaProducer,
	encryptionMgr *encryption.EncryptionManager,
	cfg *config.Config,
) *AnalyticsSink {
	return &AnalyticsSink{
		clickhouse: clickhouse,
		es:         es,
		kafka:      kafka,
		encryption: encryptionMgr,
		riskTopic:  cfg.Kafka.RiskScoreTopic,
		riskIndex:  cfg.Elasticsearch.RiskScoreIndex,
	}
}

// Publish pushes one calculated session to all sinks. Never returns an
// error; each sink fails independently.
func (s *AnalyticsSink) Publish(ctx context.Context, session *model.CalculatedSession, signal model.LocationSignal) {
	s.publishClickhouse(ctx, session, signal)
	s.publishElasticsearch(ctx, session)
	s.publishKafka(ctx, session)
}

func (s *AnalyticsSink) publishClickhouse(ctx context.Context, session *model.CalculatedSession, signal model.LocationSignal) {
	if s.clickhouse == nil {
		return
	}

	// Raw coordinates never reach the analytics store in plaintext.
	encryptedCoords := ""
	if signal.HasFix() && s.encryption != nil {
		sealed, err := s.encryption.EncryptCoordinates(ctx, signal.Latitude, signal.Longitude)
		if err != nil {
			util.Warn("Failed to encrypt coordinates for analytics, dropping them",
				zap.String("session_id", session.SessionID),
				zap.Error(err))
		} else {
			encryptedCoords = sealed
		}
	}

	err := s.clickhouse.Exec(ctx, insertAnalyticsRowQuery,
		session.SessionID, session.UserID,
		session.Risk.TotalScore, session.Location.SpoofingRisk, session.Location.VelocityKmh,
		session.Location.City, session.Location.Country,
		session.Risk.Flags.IsVpnDetected, session.Risk.Flags.IsHighRiskCountry, session.Risk.Flags.IsKnownLocation,
		uint32(session.Touch.GestureCount), uint32(session.Typing.KeystrokeCount),
		uint32(session.Touch.HesitationCount), uint32(session.Touch.RapidTouchCount),
		encryptedCoords, time.UnixMilli(session.CreatedAt).UTC())
	if err != nil {
		util.Warn("ClickHouse analytics insert failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return
	}

	util.Debug("Analytics row written", zap.String("session_id", session.SessionID))
}

func (s *AnalyticsSink) publishElasticsearch(ctx context.Context, session *model.CalculatedSession) {
	if s.es == nil {
		return
	}

	doc := map[string]interface{}{
		"session_id":           session.SessionID,
		"user_id":              session.UserID,
		"total_score":          session.Risk.TotalScore,
		"breakdown":            session.Risk.Breakdown,
		"city":                 session.Location.City,
		"country":              session.Location.Country,
		"is_vpn_detected":      session.Risk.Flags.IsVpnDetected,
		"is_high_risk_country": session.Risk.Flags.IsHighRiskCountry,
		"is_known_location":    session.Risk.Flags.IsKnownLocation,
		"is_known_network":     session.Risk.Flags.IsKnownNetwork,
		"scored_at":            time.UnixMilli(session.CreatedAt).UTC().Format(time.RFC3339),
	}

	res, err := s.es.IndexDocument(ctx, s.riskIndex, session.SessionID, doc)
	if err != nil {
		util.Warn("Elasticsearch dashboard index failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Elasticsearch rejected dashboard document",
			zap.String("session_id", session.SessionID),
			zap.String("status", res.Status()))
	}
}

func (s *AnalyticsSink) publishKafka(ctx context.Context, session *model.CalculatedSession) {
	if s.kafka == nil {
		return
	}

	event, err := json.Marshal(session.Risk)
	if err != nil {
		util.Warn("Failed to marshal risk event",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return
	}

	err = s.kafka.ProduceMessage(ctx, s.riskTopic, []byte(session.UserID), event, map[string]string{
		"session_id": session.SessionID,
	})
	if err != nil {
		util.Warn("Kafka risk event publish failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}
}

// esSearchResponse is the subset of the search reply the dashboard needs.
type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchUserScores serves the dashboard's paginated read from the search
// index. Callers fall back to the authoritative store when this fails.
func (s *AnalyticsSink) SearchUserScores(ctx context.Context, userID string, from, size int) ([]map[string]interface{}, int, error) {
	if s.es == nil {
		return nil, 0, fmt.Errorf("search index unavailable")
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"user_id": userID,
			},
		},
		"sort": []map[string]interface{}{
			{"scored_at": map[string]interface{}{"order": "desc"}},
		},
		"from": from,
		"size": size,
	}

	res, err := s.es.Search(ctx, s.riskIndex, query)
	if err != nil {
		return nil, 0, fmt.Errorf("dashboard search failed: %w", err)
	}

	var parsed esSearchResponse
	if err := s.es.ParseResponse(res, &parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to parse dashboard search response: %w", err)
	}

	docs := make([]map[string]interface{}, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, parsed.Hits.Total.Value, nil
}
