package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"otc-service/internal/config"
	"otc-service/internal/util"
)

// Statements holds the CQL used by the repositories. Queries are built per call from these
// strings; a *gocql.Query is not safe to Bind from concurrent requests.
type Statements struct {
	PutCredential       string
	GetCredential       string
	CASAttempts         string
	DeleteCredential    string
	CreateAccount       string
	GetAccountByEmail   string
	UpdateAccountPasswd string
}

func defaultStatements() *Statements {
	return &Statements{
		PutCredential: `
        INSERT INTO credentials (
            kind, identifier, code_hash, expires_at, attempts, payload, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?, ?) USING TTL ?`,

		GetCredential: `
        SELECT code_hash, expires_at, attempts, payload, created_at, updated_at
        FROM credentials WHERE kind = ? AND identifier = ?`,

		CASAttempts: `
        UPDATE credentials USING TTL ? SET attempts = ?, updated_at = ?
        WHERE kind = ? AND identifier = ? IF attempts = ?`,

		DeleteCredential: `
        DELETE FROM credentials WHERE kind = ? AND identifier = ?`,

		CreateAccount: `
        INSERT INTO accounts (
            email, account_id, name, role, password_hash, is_verified, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,

		GetAccountByEmail: `
        SELECT account_id, name, role, password_hash, is_verified, created_at, updated_at
        FROM accounts WHERE email = ?`,

		UpdateAccountPasswd: `
        UPDATE accounts SET password_hash = ?, updated_at = ?
        WHERE email = ? IF EXISTS`,
	}
}

type ScyllaClient struct {
	Session    *gocql.Session
	Statements *Statements
	config     *config.ScyllaConfig
}

func newCluster(cfg *config.Config) *gocql.ClusterConfig {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.CAPath != "" {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 scyllaConfig.CAPath,
			CertPath:               scyllaConfig.CertPath,
			KeyPath:                scyllaConfig.KeyPath,
			EnableHostVerification: cfg.IsProduction(),
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}
	return cluster
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	cluster := newCluster(cfg)
	cluster.Keyspace = cfg.Scylla.Keyspace

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		util.Strings("nodes", cfg.Scylla.Nodes),
		util.String("keyspace", cfg.Scylla.Keyspace))

	return &ScyllaClient{
		Session:    session,
		Statements: defaultStatements(),
		config:     &cfg.Scylla,
	}, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", util.String("cluster_name", clusterName))
	return nil
}

// ExecuteWithRetry retries idempotent writes; LWT statements must not go through here.
func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = query.WithContext(ctx).Exec(); lastErr == nil {
			return nil
		}
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(ctx context.Context, query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		lastErr = query.WithContext(ctx).Scan(dest...)
		if lastErr == nil || lastErr == gocql.ErrNotFound {
			return lastErr
		}
		if i < 2 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}
