package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfryer1193/blogcms/blog/application"
	"github.com/dfryer1193/blogcms/blog/domain"
	"github.com/dfryer1193/blogcms/blog/persistence"
	"github.com/dfryer1193/blogcms/internal/config"
	"github.com/dfryer1193/blogcms/internal/middleware"
	"github.com/dfryer1193/blogcms/internal/rest"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

// newRouter wires the post service and HTTP surface over repo
func newRouter(cfg *config.Config, repo domain.PostRepository) *gin.Engine {
	files := persistence.NewLocalFileStore(cfg.Uploads.Dir)
	service := application.NewPostService(
		repo,
		files,
		application.NewImageResolver(cfg.PublicBaseURL, cfg.Uploads.StoragePrefix),
	)

	engine := rest.NewEngine(rest.EngineOptions{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		UploadDir:          cfg.Uploads.Dir,
		StoragePrefix:      cfg.Uploads.StoragePrefix,
	})
	rest.NewApi(engine, rest.NewPostsHandler(service), middleware.Upload(files, middleware.UploadOptions{
		FieldName:         middleware.DefaultUploadField,
		MaxBytes:          cfg.Uploads.MaxBytes,
		AllowedMIMETypes:  cfg.Uploads.AllowedMIMETypes,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
	}))

	return engine
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := os.MkdirAll(cfg.Uploads.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	repo, closeCache, err := withCache(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeCache()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, repo),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("driver", cfg.Store.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
