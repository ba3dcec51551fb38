package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dfryer1193/blogcms/api"
	"github.com/dfryer1193/blogcms/blog/application"
	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/dfryer1193/blogcms/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// PostService is the application surface the handlers depend on
type PostService interface {
	CreatePost(ctx context.Context, in application.CreatePostInput) (*domain.Post, error)
	ListPosts(ctx context.Context) ([]*domain.Post, error)
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	UpdatePost(ctx context.Context, id string, in application.UpdatePostInput) (*domain.Post, error)
	DeletePost(ctx context.Context, id string) (*domain.Post, error)
	PublicImageURL(ref string) string
	DiscardUpload(ctx context.Context, upload *domain.UploadedFile)
}

var _ PostService = (*application.PostService)(nil)

const (
	fieldTitle        = "title"
	fieldContent      = "content"
	fieldBlogImageURL = "blogImageUrl"
	fieldBlogImage    = "blogImage"

	formMemory = 32 << 20
)

var recognizedFields = map[string]struct{}{
	fieldTitle:        {},
	fieldContent:      {},
	fieldBlogImageURL: {},
	fieldBlogImage:    {},
}

type PostsHandler struct {
	service PostService
}

func NewPostsHandler(service PostService) *PostsHandler {
	return &PostsHandler{
		service: service,
	}
}

func (h *PostsHandler) CreatePost(c *gin.Context) {
	ctx := c.Request.Context()
	upload := middleware.UploadedFile(c)

	req, err := bindPostRequest(c)
	if err != nil {
		h.service.DiscardUpload(ctx, upload)
		h.respondError(c, err)
		return
	}

	post, err := h.service.CreatePost(ctx, application.CreatePostInput{
		Title:    deref(req.Title),
		Content:  deref(req.Content),
		ImageURL: imageURL(req),
		Upload:   upload,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Blog created", h.toAPI(post))
}

func (h *PostsHandler) ListPosts(c *gin.Context) {
	posts, err := h.service.ListPosts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	if len(posts) == 0 {
		respond(c, http.StatusNotFound, "No blogs found", nil)
		return
	}

	data := make([]api.Post, 0, len(posts))
	for _, p := range posts {
		data = append(data, h.toAPI(p))
	}

	respond(c, http.StatusOK, "Blogs retrieved", data)
}

func (h *PostsHandler) GetPost(c *gin.Context) {
	post, err := h.service.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Blog retrieved", h.toAPI(post))
}

func (h *PostsHandler) UpdatePost(c *gin.Context) {
	ctx := c.Request.Context()
	upload := middleware.UploadedFile(c)

	req, err := bindPostRequest(c)
	if err != nil {
		h.service.DiscardUpload(ctx, upload)
		h.respondError(c, err)
		return
	}

	post, err := h.service.UpdatePost(ctx, c.Param("id"), application.UpdatePostInput{
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: imageURL(req),
		Upload:   upload,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Blog updated", h.toAPI(post))
}

func (h *PostsHandler) DeletePost(c *gin.Context) {
	post, err := h.service.DeletePost(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Blog deleted", h.toAPI(post))
}

// toAPI shapes a post for output: no revision, absolute image URL
func (h *PostsHandler) toAPI(p *domain.Post) api.Post {
	return api.Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		BlogImage: h.service.PublicImageURL(p.BlogImage),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *PostsHandler) respondError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		respond(c, http.StatusBadRequest, "Invalid blog ID", nil)
	case errors.Is(err, domain.ErrMissingFields):
		respond(c, http.StatusBadRequest, "Fill required fields", nil)
	case errors.Is(err, domain.ErrImageRequired):
		respond(c, http.StatusBadRequest, "Blog image is required", nil)
	case errors.As(err, &ve):
		respond(c, http.StatusBadRequest, ve.Reason, nil)
	case errors.Is(err, domain.ErrNotFound):
		respond(c, http.StatusNotFound, "Blog not found", nil)
	default:
		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
		c.JSON(http.StatusInternalServerError, api.Response{
			Status:  http.StatusInternalServerError,
			Message: "Server error",
			Error:   err.Error(),
		})
	}
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, api.Response{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// bindPostRequest reads the recognized fields from a JSON, urlencoded or
// multipart body. Any other key is a validation error.
func bindPostRequest(c *gin.Context) (*api.PostRequest, error) {
	req := &api.PostRequest{}

	switch c.ContentType() {
	case gin.MIMEJSON:
		return bindJSON(c.Request.Body, req)

	case gin.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(formMemory); err != nil {
			return nil, &domain.ValidationError{Reason: "Invalid form body"}
		}
		for key := range c.Request.MultipartForm.File {
			if key != fieldBlogImage {
				return nil, unknownField(key)
			}
		}

	case gin.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, readBodyError(err)
			}
			return nil, &domain.ValidationError{Reason: "Invalid form body"}
		}

	default:
		return req, nil
	}

	for key, values := range c.Request.PostForm {
		if _, ok := recognizedFields[key]; !ok {
			return nil, unknownField(key)
		}
		if len(values) == 0 {
			continue
		}

		value := values[0]
		switch key {
		case fieldTitle:
			req.Title = &value
		case fieldContent:
			req.Content = &value
		case fieldBlogImageURL:
			req.BlogImageURL = &value
		case fieldBlogImage:
			req.BlogImage = &value
		}
	}

	return req, nil
}

// bindJSON checks every top-level key against recognizedFields before
// decoding the body into req
func bindJSON(body io.Reader, req *api.PostRequest) (*api.PostRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, readBodyError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &domain.ValidationError{Reason: "Invalid JSON body"}
	}
	for key := range fields {
		if _, ok := recognizedFields[key]; !ok {
			return nil, unknownField(key)
		}
	}

	if err := json.Unmarshal(data, req); err != nil {
		return nil, &domain.ValidationError{Reason: "Invalid JSON body"}
	}
	return req, nil
}

func readBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &domain.ValidationError{Reason: "Request body too large"}
	}
	return &domain.ValidationError{Reason: "Invalid request body"}
}

func unknownField(name string) error {
	return &domain.ValidationError{Reason: "Unknown field: " + name}
}

// imageURL prefers blogImageUrl and falls back to a text blogImage field
func imageURL(req *api.PostRequest) string {
	if req.BlogImageURL != nil && strings.TrimSpace(*req.BlogImageURL) != "" {
		return *req.BlogImageURL
	}
	return deref(req.BlogImage)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
