package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/blogcms/blog/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ domain.PostRepository = (*MongoPostRepository)(nil)

// MongoPostRepository implements domain.PostRepository over a MongoDB collection
type MongoPostRepository struct {
	coll *mongo.Collection
}

// NewMongoPostRepository creates a repository backed by coll
func NewMongoPostRepository(coll *mongo.Collection) *MongoPostRepository {
	return &MongoPostRepository{
		coll: coll,
	}
}

// postDocument is the stored shape of a post
type postDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	BlogImage string             `bson:"blog_image"`
	Revision  int                `bson:"revision"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at,omitempty"`
}

func (d *postDocument) toDomain() *domain.Post {
	return &domain.Post{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Content:   d.Content,
		BlogImage: d.BlogImage,
		Revision:  d.Revision,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// CreatePost inserts p under a newly generated ObjectID
func (r *MongoPostRepository) CreatePost(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := postDocument{
		ID:        primitive.NewObjectID(),
		Title:     p.Title,
		Content:   p.Content,
		BlogImage: p.BlogImage,
		Revision:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}

	return doc.toDomain(), nil
}

// ListPosts returns every post in insertion order
func (r *MongoPostRepository) ListPosts(ctx context.Context) ([]*domain.Post, error) {
	// _id breaks ties between posts created in the same millisecond
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []postDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}

	posts := make([]*domain.Post, 0, len(docs))
	for i := range docs {
		posts = append(posts, docs[i].toDomain())
	}

	return posts, nil
}

// GetPost retrieves a single post by ID
func (r *MongoPostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var doc postDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return doc.toDomain(), nil
}

// UpdatePost merges the set fields of u into the stored post and returns the result
func (r *MongoPostRepository) UpdatePost(ctx context.Context, id string, u *domain.PostUpdate) (*domain.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	if u != nil {
		if u.Title != nil {
			set["title"] = *u.Title
		}
		if u.Content != nil {
			set["content"] = *u.Content
		}
		if u.BlogImage != nil {
			set["blog_image"] = *u.BlogImage
		}
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"revision": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc postDocument
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	return doc.toDomain(), nil
}

// DeletePost removes a post and returns the deleted snapshot
func (r *MongoPostRepository) DeletePost(ctx context.Context, id string) (*domain.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var doc postDocument
	err = r.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete post: %w", err)
	}

	return doc.toDomain(), nil
}
