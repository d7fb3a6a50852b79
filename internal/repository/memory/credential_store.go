package memory

import (
	"context"
	"sync"
	"time"

	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

type credentialKey struct {
	kind       models.CredentialKind
	identifier string
}

// CredentialStore keeps records in process memory. A janitor goroutine plays the part of
// the database TTL index.
type CredentialStore struct {
	mu      sync.Mutex
	records map[credentialKey]models.CredentialRecord
	now     func() time.Time
}

func NewCredentialStore(now func() time.Time) *CredentialStore {
	if now == nil {
		now = time.Now
	}
	return &CredentialStore{
		records: make(map[credentialKey]models.CredentialRecord),
		now:     now,
	}
}

func (s *CredentialStore) Put(ctx context.Context, rec *models.CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := *rec
	stored.Attempts = 0
	stored.Payload = append([]byte(nil), rec.Payload...)

	s.mu.Lock()
	s.records[credentialKey{rec.Kind, rec.Identifier}] = stored
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, kind models.CredentialKind, identifier string) (*models.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rec, ok := s.records[credentialKey{kind, identifier}]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return &rec, nil
}

func (s *CredentialStore) IncrementAttempts(ctx context.Context, kind models.CredentialKind, identifier string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey{kind, identifier}
	rec, ok := s.records[key]
	if !ok {
		return 0, repository.ErrRecordNotFound
	}
	rec.Attempts++
	rec.UpdatedAt = s.now().UTC()
	s.records[key] = rec
	return rec.Attempts, nil
}

func (s *CredentialStore) Delete(ctx context.Context, kind models.CredentialKind, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, credentialKey{kind, identifier})
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Sweep removes every record whose expiry has passed and returns how many were removed.
func (s *CredentialStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.IsExpired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (s *CredentialStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					util.Debug("Expired credentials swept", util.Int("removed", n))
				}
			}
		}
	}()
}

func (s *CredentialStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
