package rest

import (
	"net/http"
	"path"
	"time"

	"github.com/dfryer1193/blogcms/api"
	"github.com/dfryer1193/blogcms/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type EngineOptions struct {
	CORSAllowedOrigins []string
	UploadDir          string
	StoragePrefix      string
}

// NewEngine builds the gin engine with logging, recovery, optional CORS and
// static serving of stored uploads
func NewEngine(opts EngineOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LoggingMiddleware(), gin.CustomRecovery(middleware.HandlePanics()))

	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(corsConfig(opts.CORSAllowedOrigins)))
	}

	if opts.UploadDir != "" {
		r.Static(UploadsRoute(opts.StoragePrefix), opts.UploadDir)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, api.Response{
			Status:  http.StatusNotFound,
			Message: "Route not found",
		})
	})

	return r
}

// UploadsRoute is the URL path stored uploads are served under
func UploadsRoute(storagePrefix string) string {
	return path.Join("/", storagePrefix, "uploads")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}

	cfg.AllowOrigins = origins
	return cfg
}
