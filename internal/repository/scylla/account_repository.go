package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

// AccountRepository partitions accounts by email; uniqueness comes from INSERT ... IF NOT EXISTS.
type AccountRepository struct {
	client *ScyllaClient
}

func NewAccountRepository(client *ScyllaClient) *AccountRepository {
	return &AccountRepository{client: client}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	accountID, err := gocql.ParseUUID(account.ID)
	if err != nil {
		return fmt.Errorf("invalid account id %q: %w", account.ID, err)
	}

	existing := map[string]interface{}{}
	applied, err := r.client.Query(ctx, r.client.Statements.CreateAccount,
		account.Email, accountID, account.Name, string(account.Role), account.PasswordHash,
		account.IsVerified, account.CreatedAt, account.UpdatedAt).
		MapScanCAS(existing)
	if err != nil {
		util.Error("Failed to create account",
			util.String("email", account.Email),
			util.ErrorField(err))
		return fmt.Errorf("failed to create account: %w", err)
	}
	if !applied {
		return repository.ErrAccountExists
	}

	util.Info("Account created",
		util.String("account_id", account.ID),
		util.String("role", string(account.Role)))
	return nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var (
		accountID gocql.UUID
		role      string
	)
	account := &models.Account{Email: email}

	query := r.client.Query(ctx, r.client.Statements.GetAccountByEmail, email)
	err := r.client.ScanWithRetry(ctx, query,
		&accountID, &account.Name, &role, &account.PasswordHash,
		&account.IsVerified, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrAccountMissing
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.ID = accountID.String()
	account.Role = models.Role(role)
	return account, nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	existing := map[string]interface{}{}
	applied, err := r.client.Query(ctx, r.client.Statements.UpdateAccountPasswd,
		passwordHash, time.Now().UTC(), email).
		MapScanCAS(existing)
	if err != nil {
		util.Error("Failed to update account password",
			util.String("email", email),
			util.ErrorField(err))
		return fmt.Errorf("failed to update password: %w", err)
	}
	if !applied {
		return repository.ErrAccountMissing
	}
	return nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
