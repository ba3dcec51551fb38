package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

var _ domain.PostRepository = (*CachedPostRepository)(nil)

// DefaultCacheTTL is used when a non-positive TTL is configured
const DefaultCacheTTL = 5 * time.Minute

// CachedPostRepository wraps a PostRepository with a Redis read-through cache
// for single-post lookups. Lists always go to the wrapped repository.
type CachedPostRepository struct {
	next   domain.PostRepository
	client *redis.Client
	ttl    time.Duration
}

// NewCachedPostRepository decorates next with a cache held in client
func NewCachedPostRepository(next domain.PostRepository, client *redis.Client, ttl time.Duration) *CachedPostRepository {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedPostRepository{
		next:   next,
		client: client,
		ttl:    ttl,
	}
}

// NewRedisClient connects to addr and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          0,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func postCacheKey(id string) string {
	return fmt.Sprintf("post:%s", id)
}

func (r *CachedPostRepository) CreatePost(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	created, err := r.next.CreatePost(ctx, p)
	if err != nil {
		return nil, err
	}

	r.store(ctx, created)
	return created, nil
}

func (r *CachedPostRepository) ListPosts(ctx context.Context) ([]*domain.Post, error) {
	return r.next.ListPosts(ctx)
}

func (r *CachedPostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidID
	}

	if cached, ok := r.load(ctx, id); ok {
		return cached, nil
	}

	post, err := r.next.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	r.store(ctx, post)
	return post, nil
}

func (r *CachedPostRepository) UpdatePost(ctx context.Context, id string, u *domain.PostUpdate) (*domain.Post, error) {
	updated, err := r.next.UpdatePost(ctx, id, u)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.evict(ctx, id)
		}
		return nil, err
	}

	r.store(ctx, updated)
	return updated, nil
}

func (r *CachedPostRepository) DeletePost(ctx context.Context, id string) (*domain.Post, error) {
	deleted, err := r.next.DeletePost(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	r.evict(ctx, id)
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// load reports a miss on any cache failure so the caller falls through to the store
func (r *CachedPostRepository) load(ctx context.Context, id string) (*domain.Post, bool) {
	data, err := r.client.Get(ctx, postCacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Post cache read failed")
		return nil, false
	}

	var post domain.Post
	if err := json.Unmarshal(data, &post); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Discarding undecodable cached post")
		r.evict(ctx, id)
		return nil, false
	}

	return &post, true
}

func (r *CachedPostRepository) store(ctx context.Context, p *domain.Post) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Warn().Err(err).Str("id", p.ID).Msg("Failed to encode post for cache")
		return
	}

	if err := r.client.Set(ctx, postCacheKey(p.ID), data, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("id", p.ID).Msg("Post cache write failed")
	}
}

func (r *CachedPostRepository) evict(ctx context.Context, id string) {
	if err := r.client.Del(ctx, postCacheKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Post cache eviction failed")
	}
}
