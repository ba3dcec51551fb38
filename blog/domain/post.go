package domain

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post represents a blog post.
// Revision is bookkeeping owned by the store and is never exposed to callers.
type Post struct {
	ID        string
	Title     string
	Content   string
	BlogImage string
	Revision  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields a post must carry before it can be persisted.
func (p *Post) Validate() error {
	if p == nil {
		return &ValidationError{Reason: "post cannot be nil"}
	}
	if isBlank(p.Title) || isBlank(p.Content) {
		return ErrMissingFields
	}
	if isBlank(p.BlogImage) {
		return ErrImageRequired
	}
	return nil
}

// PostUpdate is a partial update. Nil fields are left untouched.
type PostUpdate struct {
	Title     *string
	Content   *string
	BlogImage *string
}

// Validate re-checks the required-field rules against the fields being set.
func (u *PostUpdate) Validate() error {
	if u == nil {
		return nil
	}
	if u.Title != nil && isBlank(*u.Title) {
		return &ValidationError{Reason: "title cannot be empty"}
	}
	if u.Content != nil && isBlank(*u.Content) {
		return &ValidationError{Reason: "content cannot be empty"}
	}
	if u.BlogImage != nil && isBlank(*u.BlogImage) {
		return &ValidationError{Reason: "blog image cannot be empty"}
	}
	return nil
}

// IsEmpty reports whether the update sets no fields at all.
func (u *PostUpdate) IsEmpty() bool {
	return u == nil || (u.Title == nil && u.Content == nil && u.BlogImage == nil)
}

// Apply merges the set fields into p.
func (u *PostUpdate) Apply(p *Post) {
	if u == nil || p == nil {
		return
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.BlogImage != nil {
		p.BlogImage = *u.BlogImage
	}
}

// IsValidID reports whether id has the structure of a post identifier
// (a 24 character hex ObjectID), regardless of the backing store.
func IsValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// NewID generates a new post identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

type PostRepository interface {
	CreatePost(ctx context.Context, p *Post) (*Post, error)
	ListPosts(ctx context.Context) ([]*Post, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	UpdatePost(ctx context.Context, id string, u *PostUpdate) (*Post, error)
	DeletePost(ctx context.Context, id string) (*Post, error)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
