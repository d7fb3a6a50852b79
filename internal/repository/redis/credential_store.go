package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"otc-service/internal/client"
	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

const (
	fieldCodeHash  = "code_hash"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
	fieldPayload   = "payload"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// incrementScript bumps the attempt counter only while the record is still present, so a
// concurrently expired or deleted key is never resurrected as a bare counter.
var incrementScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// CredentialStore keeps one hash per (kind, identifier); Redis key expiry (PEXPIREAT on
// ExpiresAt) is the passive TTL eviction.
type CredentialStore struct {
	client *client.RedisClient
	prefix string
	now    func() time.Time
}

func NewCredentialStore(c *client.RedisClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = "otc"
	}
	return &CredentialStore{client: c, prefix: prefix, now: time.Now}
}

func (s *CredentialStore) key(kind models.CredentialKind, identifier string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, identifier)
}

func (s *CredentialStore) Put(ctx context.Context, rec *models.CredentialRecord) error {
	key := s.key(rec.Kind, rec.Identifier)

	// MULTI/EXEC: the replacement lands whole or not at all.
	_, err := s.client.Client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldCodeHash, rec.CodeHash,
			fieldExpiresAt, millis(rec.ExpiresAt),
			fieldAttempts, 0,
			fieldPayload, rec.Payload,
			fieldCreatedAt, millis(rec.CreatedAt),
			fieldUpdatedAt, millis(rec.UpdatedAt),
		)
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	if err != nil {
		util.Error("Failed to store credential",
			util.String("kind", string(rec.Kind)),
			util.String("identifier", rec.Identifier),
			util.ErrorField(err))
		return fmt.Errorf("failed to store credential: %w", err)
	}

	util.Debug("Credential stored",
		util.String("kind", string(rec.Kind)),
		util.String("identifier", rec.Identifier),
		util.Time("expires_at", rec.ExpiresAt))
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, kind models.CredentialKind, identifier string) (*models.CredentialRecord, error) {
	values, err := s.client.Client.HGetAll(ctx, s.key(kind, identifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrRecordNotFound
	}

	rec := &models.CredentialRecord{
		Identifier: identifier,
		Kind:       kind,
		CodeHash:   values[fieldCodeHash],
	}
	if v := values[fieldPayload]; v != "" {
		rec.Payload = []byte(v)
	}
	if rec.Attempts, err = strconv.Atoi(values[fieldAttempts]); err != nil {
		return nil, fmt.Errorf("invalid attempts for %s: %w", identifier, err)
	}
	if rec.ExpiresAt, err = parseMillis(values[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseMillis(values[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseMillis(values[fieldUpdatedAt]); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *CredentialStore) IncrementAttempts(ctx context.Context, kind models.CredentialKind, identifier string) (int, error) {
	count, err := incrementScript.Run(ctx, s.client.Client,
		[]string{s.key(kind, identifier)}, millis(s.now())).Int()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, repository.ErrRecordNotFound
		}
		util.Error("Failed to increment credential attempts",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	if count < 0 {
		return 0, repository.ErrRecordNotFound
	}
	return count, nil
}

func (s *CredentialStore) Delete(ctx context.Context, kind models.CredentialKind, identifier string) error {
	if err := s.client.Client.Del(ctx, s.key(kind, identifier)).Err(); err != nil {
		util.Error("Failed to delete credential",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// RemainingTTL reports how long Redis will keep the record before evicting it.
func (s *CredentialStore) RemainingTTL(ctx context.Context, kind models.CredentialKind, identifier string) (time.Duration, error) {
	return s.client.Client.PTTL(ctx, s.key(kind, identifier)).Result()
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
