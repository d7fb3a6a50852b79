package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"otc-service/internal/client"
	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

const usersCollection = "users"

type AccountRepository struct {
	client *client.MongoClient
}

func NewAccountRepository(c *client.MongoClient) *AccountRepository {
	return &AccountRepository{client: c}
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

	if _, err := r.client.Collection(usersCollection).InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAccountExists
		}
		util.Error("Failed to create account",
			util.String("email", account.Email),
			util.ErrorField(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	util.Info("Account created",
		util.String("account_id", account.ID),
		util.String("role", string(account.Role)))
	return nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.client.Collection(usersCollection).FindOne(ctx, bson.M{"email": email}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrAccountMissing
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	res, err := r.client.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"password": passwordHash, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrAccountMissing
	}
	return nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
