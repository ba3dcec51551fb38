package rest

import (
	"github.com/dfryer1193/blogcms/internal/middleware"
	"github.com/gin-gonic/gin"
)

// NewApi registers the post routes. Text bodies are capped at
// middleware.DefaultBodyBytes; upload runs ahead of the handlers that accept
// a file.
func NewApi(router gin.IRouter, posts *PostsHandler, upload gin.HandlerFunc) {
	postsGroup := router.Group("/posts", middleware.BodyLimit(middleware.DefaultBodyBytes))
	{
		postsGroup.POST("", upload, posts.CreatePost)
		postsGroup.GET("", posts.ListPosts)
		postsGroup.GET("/:id", posts.GetPost)
		postsGroup.PUT("/:id", upload, posts.UpdatePost)
		postsGroup.DELETE("/:id", posts.DeletePost)
	}
}
