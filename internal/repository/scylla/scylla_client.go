package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/util"
)

// PreparedStatements holds the statements the risk record repository uses.
// Both risk tables are append-only: inserts and reads only, no updates.
type PreparedStatements struct {
	InsertRiskScore         *gocql.Query
	InsertRiskScoreByUser   *gocql.Query
	GetRiskScoreBySession   *gocql.Query
	ListRiskScoresByUser    *gocql.Query
	InsertCalculatedSession *gocql.Query
	GetCalculatedSession    *gocql.Query
	UpsertProfileSnapshot   *gocql.Query
	GetProfileSnapshot      *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.InsertRiskScore = s.Session.Query(`
        INSERT INTO risk_scores_by_session (
            session_id, user_id, total_score, breakdown,
            is_vpn_detected, is_high_risk_country, is_known_location, is_known_network,
            scored_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertRiskScoreByUser = s.Session.Query(`
        INSERT INTO risk_scores_by_user (
            user_bucket, user_id, scored_at, session_id, total_score, breakdown,
            is_vpn_detected, is_high_risk_country, is_known_location, is_known_network
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetRiskScoreBySession = s.Session.Query(`
        SELECT session_id, user_id, total_score, breakdown,
            is_vpn_detected, is_high_risk_country, is_known_location, is_known_network,
            scored_at
        FROM risk_scores_by_session WHERE session_id = ?`)

	prepared.ListRiskScoresByUser = s.Session.Query(`
        SELECT session_id, user_id, total_score, breakdown,
            is_vpn_detected, is_high_risk_country, is_known_location, is_known_network,
            scored_at
        FROM risk_scores_by_user WHERE user_bucket = ? AND user_id = ?`)

	prepared.InsertCalculatedSession = s.Session.Query(`
        INSERT INTO calculated_sessions (
            session_id, user_id, session_date, touch_summary, typing_summary,
            location_behavior, network_behavior, login_behavior, device_fingerprint,
            total_score, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetCalculatedSession = s.Session.Query(`
        SELECT session_id, user_id, session_date, touch_summary, typing_summary,
            location_behavior, network_behavior, login_behavior, device_fingerprint,
            total_score, created_at
        FROM calculated_sessions WHERE session_id = ?`)

	prepared.UpsertProfileSnapshot = s.Session.Query(`
        INSERT INTO profile_snapshots (
            user_id, profile, updated_at
        ) VALUES (?, ?, ?)`)

	prepared.GetProfileSnapshot = s.Session.Query(`
        SELECT user_id, profile, updated_at
        FROM profile_snapshots WHERE user_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
