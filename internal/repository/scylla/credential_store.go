package scylla

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gocql/gocql"

	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

const maxCASRounds = 8

type CredentialStore struct {
	client *ScyllaClient
	now    func() time.Time
}

func NewCredentialStore(client *ScyllaClient) *CredentialStore {
	return &CredentialStore{client: client, now: time.Now}
}

// ttlSeconds is the row TTL handed to Scylla. It rounds up so a row never disappears before
// ExpiresAt, and never drops below one second (zero would mean "no TTL").
func ttlSeconds(expiresAt, now time.Time) int {
	secs := int(math.Ceil(expiresAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (s *CredentialStore) Put(ctx context.Context, rec *models.CredentialRecord) error {
	query := s.client.Query(ctx, s.client.Statements.PutCredential,
		string(rec.Kind), rec.Identifier, rec.CodeHash, rec.ExpiresAt,
		rec.Payload, rec.CreatedAt, rec.UpdatedAt, ttlSeconds(rec.ExpiresAt, s.now()))

	if err := s.client.ExecuteWithRetry(ctx, query, 2); err != nil {
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
	rec := &models.CredentialRecord{Identifier: identifier, Kind: kind}

	query := s.client.Query(ctx, s.client.Statements.GetCredential, string(kind), identifier)
	err := s.client.ScanWithRetry(ctx, query,
		&rec.CodeHash, &rec.ExpiresAt, &rec.Attempts, &rec.Payload, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrRecordNotFound
		}
		util.Error("Failed to load credential",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if rec.CodeHash == "" {
		return nil, repository.ErrRecordNotFound
	}
	return rec, nil
}

// IncrementAttempts is a compare-and-set loop over a lightweight transaction. The update
// carries the remaining TTL so the counter expires together with the rest of the row.
func (s *CredentialStore) IncrementAttempts(ctx context.Context, kind models.CredentialKind, identifier string) (int, error) {
	rec, err := s.Get(ctx, kind, identifier)
	if err != nil {
		return 0, err
	}

	current := rec.Attempts
	for round := 0; round < maxCASRounds; round++ {
		now := s.now()
		existing := map[string]interface{}{}
		applied, err := s.client.Query(ctx, s.client.Statements.CASAttempts,
			ttlSeconds(rec.ExpiresAt, now), current+1, now, string(kind), identifier, current).
			MapScanCAS(existing)
		if err != nil {
			return 0, fmt.Errorf("failed to increment attempts: %w", err)
		}
		if applied {
			return current + 1, nil
		}

		seen, ok := existing["attempts"].(int)
		if !ok {
			// The row expired or was deleted between reads.
			return 0, repository.ErrRecordNotFound
		}
		util.Debug("Attempt counter contended, retrying",
			util.String("identifier", identifier),
			util.Int("seen", seen))
		current = seen
	}
	return 0, fmt.Errorf("failed to increment attempts for %s: too much contention", identifier)
}

func (s *CredentialStore) Delete(ctx context.Context, kind models.CredentialKind, identifier string) error {
	query := s.client.Query(ctx, s.client.Statements.DeleteCredential, string(kind), identifier)
	if err := s.client.ExecuteWithRetry(ctx, query, 2); err != nil {
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
