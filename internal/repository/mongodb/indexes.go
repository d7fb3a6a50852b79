package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"otc-service/internal/client"
	"otc-service/internal/util"
)

// EnsureIndexes creates the unique and TTL indexes the stores depend on. It is idempotent.
func EnsureIndexes(ctx context.Context, c *client.MongoClient) error {
	for _, name := range collectionByKind {
		_, err := c.Collection(name).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "identifier", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("identifier_unique"),
			},
			{
				// The TTL monitor runs about once a minute; expiresAt is still checked on read.
				Keys:    bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}

	_, err := c.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", usersCollection, err)
	}

	util.Info("MongoDB indexes ensured")
	return nil
}
