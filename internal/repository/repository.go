package repository

import (
	"context"
	"errors"
	"time"

	"otc-service/internal/models"
)

var (
	ErrRecordNotFound = errors.New("credential record not found")
	ErrAccountExists  = errors.New("account already exists")
	ErrAccountMissing = errors.New("account not found")
)

// CredentialStore is the only path to CredentialRecord state. Implementations make each
// operation atomic per (kind, identifier) and rely on a native expiry mechanism to purge
// records whose ExpiresAt has passed; callers must still check expiry themselves.
type CredentialStore interface {
	// Put replaces any record for (rec.Kind, rec.Identifier) and resets Attempts to zero.
	Put(ctx context.Context, rec *models.CredentialRecord) error
	Get(ctx context.Context, kind models.CredentialKind, identifier string) (*models.CredentialRecord, error)
	// IncrementAttempts returns the post-increment count, or ErrRecordNotFound.
	IncrementAttempts(ctx context.Context, kind models.CredentialKind, identifier string) (int, error)
	Delete(ctx context.Context, kind models.CredentialKind, identifier string) error
	HealthCheck(ctx context.Context) error
}

type AccountRepository interface {
	// Create fails with ErrAccountExists when the email is already registered.
	Create(ctx context.Context, account *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// UpdatePassword fails with ErrAccountMissing when no account has the email.
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	HealthCheck(ctx context.Context) error
}

// RateLimiter admits or rejects one event for key within a sliding window. A rejection
// carries how long until the next event would be admitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}
