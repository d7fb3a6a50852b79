package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"otc-service/internal/client"
	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

var collectionByKind = map[models.CredentialKind]string{
	models.KindSignup:        "signup_otps",
	models.KindPasswordReset: "password_otps",
}

// CredentialStore keeps one collection per kind, each with a unique identifier index and a
// TTL index on expiresAt.
type CredentialStore struct {
	client *client.MongoClient
	now    func() time.Time
}

func NewCredentialStore(c *client.MongoClient) *CredentialStore {
	return &CredentialStore{client: c, now: time.Now}
}

func (s *CredentialStore) collection(kind models.CredentialKind) (*mongo.Collection, error) {
	name, ok := collectionByKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown credential kind %q", kind)
	}
	return s.client.Collection(name), nil
}

func (s *CredentialStore) Put(ctx context.Context, rec *models.CredentialRecord) error {
	coll, err := s.collection(rec.Kind)
	if err != nil {
		return err
	}

	doc := *rec
	doc.Attempts = 0

	_, err = coll.ReplaceOne(ctx,
		bson.M{"identifier": rec.Identifier},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		util.Error("Failed to store credential",
			util.String("kind", string(rec.Kind)),
			util.String("identifier", rec.Identifier),
			util.ErrorField(err))
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, kind models.CredentialKind, identifier string) (*models.CredentialRecord, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return nil, err
	}

	var rec models.CredentialRecord
	if err := coll.FindOne(ctx, bson.M{"identifier": identifier}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &rec, nil
}

func (s *CredentialStore) IncrementAttempts(ctx context.Context, kind models.CredentialKind, identifier string) (int, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return 0, err
	}

	var rec models.CredentialRecord
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"identifier": identifier},
		bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"updatedAt": s.now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, repository.ErrRecordNotFound
		}
		util.Error("Failed to increment credential attempts",
			util.String("identifier", identifier),
			util.ErrorField(err))
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return rec.Attempts, nil
}

func (s *CredentialStore) Delete(ctx context.Context, kind models.CredentialKind, identifier string) error {
	coll, err := s.collection(kind)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.M{"identifier": identifier}); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
