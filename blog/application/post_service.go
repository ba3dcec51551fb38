package application

import (
	"context"
	"strings"

	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/rs/zerolog/log"
)

// CreatePostInput is a bound create request. Upload is nil when no file
// was attached.
type CreatePostInput struct {
	Title    string
	Content  string
	ImageURL string
	Upload   *domain.UploadedFile
}

// UpdatePostInput is a bound update request. Nil text fields are left as they are.
type UpdatePostInput struct {
	Title    *string
	Content  *string
	ImageURL string
	Upload   *domain.UploadedFile
}

type PostService struct {
	repo   domain.PostRepository
	files  domain.FileStore
	images *ImageResolver
}

func NewPostService(repo domain.PostRepository, files domain.FileStore, images *ImageResolver) *PostService {
	return &PostService{
		repo:   repo,
		files:  files,
		images: images,
	}
}

// CreatePost validates the submission, resolves its image and persists it.
// A stored upload is removed again if the post cannot be created.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*domain.Post, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		s.DiscardUpload(ctx, in.Upload)
		return nil, domain.ErrMissingFields
	}

	image, ok := s.images.Resolve(in.Upload, in.ImageURL)
	if !ok {
		return nil, domain.ErrImageRequired
	}

	created, err := s.repo.CreatePost(ctx, &domain.Post{
		Title:     in.Title,
		Content:   in.Content,
		BlogImage: image,
	})
	if err != nil {
		s.DiscardUpload(ctx, in.Upload)
		return nil, err
	}

	log.Info().Str("id", created.ID).Str("image", created.BlogImage).Msg("Created post")
	return created, nil
}

func (s *PostService) ListPosts(ctx context.Context) ([]*domain.Post, error) {
	return s.repo.ListPosts(ctx)
}

func (s *PostService) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidID
	}

	return s.repo.GetPost(ctx, id)
}

// UpdatePost merges the supplied fields into an existing post. Without an
// upload or image URL the stored image reference is kept.
func (s *PostService) UpdatePost(ctx context.Context, id string, in UpdatePostInput) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		s.DiscardUpload(ctx, in.Upload)
		return nil, domain.ErrInvalidID
	}

	update := &domain.PostUpdate{
		Title:   in.Title,
		Content: in.Content,
	}
	if image, ok := s.images.Resolve(in.Upload, in.ImageURL); ok {
		update.BlogImage = &image
	}

	if update.IsEmpty() {
		return s.repo.GetPost(ctx, id)
	}

	updated, err := s.repo.UpdatePost(ctx, id, update)
	if err != nil {
		s.DiscardUpload(ctx, in.Upload)
		return nil, err
	}

	log.Info().Str("id", updated.ID).Int("revision", updated.Revision).Msg("Updated post")
	return updated, nil
}

func (s *PostService) DeletePost(ctx context.Context, id string) (*domain.Post, error) {
	if !domain.IsValidID(id) {
		return nil, domain.ErrInvalidID
	}

	deleted, err := s.repo.DeletePost(ctx, id)
	if err != nil {
		return nil, err
	}

	log.Info().Str("id", deleted.ID).Msg("Deleted post")
	return deleted, nil
}

// PublicImageURL returns the externally addressable form of a stored image reference
func (s *PostService) PublicImageURL(ref string) string {
	return s.images.PublicURL(ref)
}

// DiscardUpload removes a stored upload that no post will reference
func (s *PostService) DiscardUpload(ctx context.Context, upload *domain.UploadedFile) {
	if upload == nil || upload.Filename == "" || s.files == nil {
		return
	}

	if err := s.files.Delete(ctx, upload.Filename); err != nil {
		log.Warn().Err(err).Str("filename", upload.Filename).Msg("Failed to remove orphaned upload")
	}
}
