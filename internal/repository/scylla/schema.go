package scylla

import (
	"context"
	"fmt"

	"otc-service/internal/config"
	"otc-service/internal/util"
)

// Migrate creates the keyspace and tables. It connects without a keyspace so it can run
// against an empty cluster.
func Migrate(ctx context.Context, cfg *config.Config) error {
	session, err := newCluster(cfg).CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create scylla session: %w", err)
	}
	defer session.Close()

	ks := cfg.Scylla.Keyspace
	statements := []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
			ks, cfg.Scylla.ReplicationFactor),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.credentials (
            kind text,
            identifier text,
            code_hash text,
            expires_at timestamp,
            attempts int,
            payload blob,
            created_at timestamp,
            updated_at timestamp,
            PRIMARY KEY ((kind, identifier))
        ) WITH default_time_to_live = %d AND gc_grace_seconds = 3600`,
			ks, int(cfg.OTP.TTL.Seconds())),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.accounts (
            email text PRIMARY KEY,
            account_id uuid,
            name text,
            role text,
            password_hash text,
            is_verified boolean,
            created_at timestamp,
            updated_at timestamp
        )`, ks),
	}

	for _, stmt := range statements {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("scylla migration failed: %w", err)
		}
	}

	util.Info("ScyllaDB schema ensured", util.String("keyspace", ks))
	return nil
}
