package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/dfryer1193/blogcms/shared/db"
)

var _ domain.PostRepository = (*SQLitePostRepository)(nil)

// SQLitePostRepository implements domain.PostRepository using SQL database (SQLite)
type SQLitePostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new SQLitePostRepository from a standard sql.DB
func NewPostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{
		db: db,
	}
}

const insertPostQuery = `
	INSERT INTO posts (id, title, content, blog_image, revision, created_at, updated_at)
	VALUES (?, ?, ?, ?, 0, ?, ?)
`

// CreatePost inserts a post under a newly generated ID
func (r *SQLitePostRepository) CreatePost(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := &domain.Post{
		ID:        domain.NewID(),
		Title:     p.Title,
		Content:   p.Content,
		BlogImage: p.BlogImage,
		Revision:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	executor := db.GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, insertPostQuery,
		created.ID,
		created.Title,
		created.Content,
		created.BlogImage,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}

	return created, nil
}

const listPostsQuery = `
	SELECT id, title, content, blog_image, revision, created_at, updated_at
	FROM posts
	ORDER BY rowid ASC
`

// ListPosts retrieves all posts in insertion order
func (r *SQLitePostRepository) ListPosts(ctx context.Context) ([]*domain.Post, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listPostsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*domain.Post, 0)
	for rows.Next() {
		var row postRow
		if err := row.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, row.toDomain())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, nil
}

const getPostQuery = `
	SELECT id, title, content, blog_image, revision, created_at, updated_at
	FROM posts
	WHERE id = ?
`

// GetPost retrieves a single post by ID
func (r *SQLitePostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidID
	}

	return r.getPost(ctx, db.GetExecutor(ctx, r.db), id)
}

func (r *SQLitePostRepository) getPost(ctx context.Context, executor db.Executor, id string) (*domain.Post, error) {
	var row postRow
	err := row.scan(executor.QueryRowContext(ctx, getPostQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return row.toDomain(), nil
}

const updatePostQuery = `
	UPDATE posts
	SET title = ?, content = ?, blog_image = ?, revision = revision + 1, updated_at = ?
	WHERE id = ?
`

// UpdatePost merges the set fields of u into the stored post within a transaction
func (r *SQLitePostRepository) UpdatePost(ctx context.Context, id string, u *domain.PostUpdate) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidID
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.Post
	err := db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		current, err := r.getPost(txCtx, executor, id)
		if err != nil {
			return err
		}

		u.Apply(current)
		current.UpdatedAt = time.Now().UTC()

		_, err = executor.ExecContext(txCtx, updatePostQuery,
			current.Title,
			current.Content,
			current.BlogImage,
			current.UpdatedAt,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to update post: %w", err)
		}

		updated, err = r.getPost(txCtx, executor, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

const deletePostQuery = `
	DELETE FROM posts WHERE id = ?
`

// DeletePost removes a post and returns the deleted snapshot
func (r *SQLitePostRepository) DeletePost(ctx context.Context, id string) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidID
	}

	var deleted *domain.Post
	err := db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		current, err := r.getPost(txCtx, executor, id)
		if err != nil {
			return err
		}

		if _, err := executor.ExecContext(txCtx, deletePostQuery, id); err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}

		deleted = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// postRow is a private struct used to scan database rows
// updated_at is nullable for rows written before it was tracked
type postRow struct {
	ID        string       `db:"id"`
	Title     string       `db:"title"`
	Content   string       `db:"content"`
	BlogImage string       `db:"blog_image"`
	Revision  int          `db:"revision"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

func (pr *postRow) scan(s rowScanner) error {
	return s.Scan(
		&pr.ID,
		&pr.Title,
		&pr.Content,
		&pr.BlogImage,
		&pr.Revision,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	)
}

// toDomain converts a postRow to a domain.Post, handling nullable times
func (pr *postRow) toDomain() *domain.Post {
	post := &domain.Post{
		ID:        pr.ID,
		Title:     pr.Title,
		Content:   pr.Content,
		BlogImage: pr.BlogImage,
		Revision:  pr.Revision,
	}

	if pr.CreatedAt.Valid {
		post.CreatedAt = pr.CreatedAt.Time
	}
	if pr.UpdatedAt.Valid {
		post.UpdatedAt = pr.UpdatedAt.Time
	}

	return post
}
