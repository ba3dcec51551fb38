package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	DefaultURI        = "mongodb://localhost:27017"
	DefaultDatabase   = "blog"
	DefaultCollection = "blogs"

	connectTimeout = 10 * time.Second
	pingTimeout    = 2 * time.Second
)

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// Connect opens a client against cfg.URI and verifies the primary is reachable.
func Connect(ctx context.Context, cfg *MongoConfig) (*mongo.Client, error) {
	uri := DefaultURI
	if cfg != nil && cfg.URI != "" {
		uri = cfg.URI
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetWriteConcern(writeconcern.New(writeconcern.W(1), writeconcern.J(true)))

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, pingTimeout)
	defer cancelPing()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// Collection returns the posts collection named by cfg, applying defaults.
func Collection(client *mongo.Client, cfg *MongoConfig) *mongo.Collection {
	database, collection := DefaultDatabase, DefaultCollection
	if cfg != nil {
		if cfg.Database != "" {
			database = cfg.Database
		}
		if cfg.Collection != "" {
			collection = cfg.Collection
		}
	}
	return client.Database(database).Collection(collection)
}

// EnsureIndexes creates the indexes the posts collection relies on.
// Creating an index that already exists is a no-op on the server.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("idx_posts_created_at_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to create index on %s: %w", coll.Name(), err)
	}
	return nil
}
