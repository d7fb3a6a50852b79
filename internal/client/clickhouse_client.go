package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"otc-service/internal/config"
	"otc-service/internal/util"
)

const (
	clickhouseNativePort       = "9000"
	clickhouseNativeSecurePort = "9440"
)

// ClickHouseClient holds a native-protocol connection used by the audit sink and the
// migrate command.
type ClickHouseClient struct {
	conn driver.Conn
}

func NewClickHouseClient(ctx context.Context, cfg *config.Config) (*ClickHouseClient, error) {
	chCfg := cfg.Clickhouse
	secure := cfg.IsProduction() || strings.HasPrefix(chCfg.URL, "https://")
	addr := clickhouseAddr(chCfg.URL, secure)

	opts := &ch.Options{
		Addr: []string{addr},
		Auth: ch.Auth{
			Database: chCfg.Database,
			Username: chCfg.Username,
			Password: chCfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		Compression:     &ch.Compression{Method: ch.CompressionLZ4},
	}
	if secure {
		tlsCfg, err := clickhouseTLS(addr, chCfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts.TLS = tlsCfg
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s: %w", addr, err)
	}

	util.Info("ClickHouse client initialized",
		util.String("addr", addr),
		util.String("database", chCfg.Database),
		util.Bool("tls", secure))
	return &ClickHouseClient{conn: conn}, nil
}

func clickhouseTLS(addr, caFile string) (*tls.Config, error) {
	host, _, _ := net.SplitHostPort(addr)
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	if caFile == "" {
		return tlsCfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ClickHouse CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// clickhouseAddr turns a configured URL or bare host into host:port, defaulting to the
// native (or native TLS) port.
func clickhouseAddr(raw string, secure bool) string {
	hostport := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	hostport = strings.TrimSuffix(hostport, "/")
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	port := clickhouseNativePort
	if secure {
		port = clickhouseNativeSecurePort
	}
	return net.JoinHostPort(hostport, port)
}

func (c *ClickHouseClient) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

// BatchInsert sends rows in one batch; a failed append aborts the whole batch.
func (c *ClickHouseClient) BatchInsert(ctx context.Context, query string, rows [][]any) error {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}
	util.Info("ClickHouse connection closed")
	return nil
}
