package api

import "time"

// Post is the outward shape of a blog post. The store's revision counter
// is deliberately absent.
type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	BlogImage string    `json:"blogImage"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostRequest carries the recognized create/update fields. Nil means the
// field was not sent.
type PostRequest struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	BlogImageURL *string `json:"blogImageUrl"`
	BlogImage    *string `json:"blogImage"`
}

// Response is the envelope every endpoint answers with
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
