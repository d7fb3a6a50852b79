package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"otc-service/internal/models"
	"otc-service/internal/repository"
)

type AccountRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*models.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{byEmail: make(map[string]*models.Account)}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[account.Email]; ok {
		return repository.ErrAccountExists
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	stored := *account
	r.byEmail[account.Email] = &stored
	return nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrAccountMissing
	}
	out := *a
	return &out, nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byEmail[email]
	if !ok {
		return repository.ErrAccountMissing
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}
