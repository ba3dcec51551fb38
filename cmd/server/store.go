package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/dfryer1193/blogcms/blog/persistence"
	"github.com/dfryer1193/blogcms/internal/config"
	"github.com/dfryer1193/blogcms/shared/db/mongodb"
	"github.com/dfryer1193/blogcms/shared/db/sqlite"
	"github.com/rs/zerolog/log"
)

const disconnectTimeout = 5 * time.Second

// openStore connects the configured backend and prepares its schema. The
// returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config) (domain.PostRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: cfg.Store.SQLitePath})
		if err := database.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		log.Info().Str("path", database.Path()).Msg("Connected to SQLite")

		closeFn := func() {
			if err := database.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
		return persistence.NewPostRepository(database.DB()), closeFn, nil

	case config.DriverMongo:
		mongoCfg := &mongodb.MongoConfig{
			URI:        cfg.Store.Mongo.URI,
			Database:   cfg.Store.Mongo.Database,
			Collection: cfg.Store.Mongo.Collection,
		}
		client, err := mongodb.Connect(ctx, mongoCfg)
		if err != nil {
			return nil, nil, err
		}

		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}

		coll := mongodb.Collection(client, mongoCfg)
		if err := mongodb.EnsureIndexes(ctx, coll); err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Info().
			Str("database", coll.Database().Name()).
			Str("collection", coll.Name()).
			Msg("Connected to MongoDB")

		return persistence.NewMongoPostRepository(coll), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// withCache wraps repo in the Redis cache when one is configured
func withCache(ctx context.Context, cfg *config.Config, repo domain.PostRepository) (domain.PostRepository, func(), error) {
	if !cfg.CacheEnabled() {
		return repo, func() {}, nil
	}

	client, err := persistence.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Cache.RedisAddr).Dur("ttl", cfg.Cache.TTL).Msg("Post cache enabled")

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}
	return persistence.NewCachedPostRepository(repo, client, cfg.Cache.TTL), closeFn, nil
}
