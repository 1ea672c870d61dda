package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/document-archive-api/api/swagger"
	"github.com/noah-isme/document-archive-api/internal/handler"
	"github.com/noah-isme/document-archive-api/internal/middleware"
	"github.com/noah-isme/document-archive-api/internal/service"
	"github.com/noah-isme/document-archive-api/migrations"
	"github.com/noah-isme/document-archive-api/pkg/config"
	"github.com/noah-isme/document-archive-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/document-archive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/document-archive-api/pkg/middleware/requestid"
	"github.com/noah-isme/document-archive-api/pkg/storage"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool
	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and conversion workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	command.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return command
}

func serve(ctx context.Context, migrate bool) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	if migrate {
		if _, err := migrations.Apply(ctx, a.db, log); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	worker := service.NewDocumentWorker(a.pipeline(), log)
	queue := a.dispatcher(worker.Handle)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := queue.Start(workerCtx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	defer queue.Stop()

	janitor := service.NewScratchJanitor(a.store.scratch, a.cfg.Pipeline.ScratchCleanup, a.cfg.Pipeline.ScratchTTL, log)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start scratch janitor: %w", err)
	}
	defer janitor.Stop()

	documents := service.NewDocumentService(
		a.docs,
		a.notes,
		service.NewDedupGate(a.docs),
		service.DocumentFiles{Originals: a.store.originals, Archives: a.store.archives, Thumbnails: a.store.thumbnails},
		queue,
		storage.NewSignedURLSigner(a.cfg.Storage.ShareLinkSecret, a.cfg.Storage.ShareLinkTTL),
		a.valid,
		a.metric,
		log,
		service.DocumentServiceConfig{
			MaxFileSize:  a.cfg.Storage.MaxFileSizeBytes,
			AllowedMIMEs: a.cfg.Storage.AllowedMIMEs,
			APIPrefix:    a.cfg.APIPrefix,
		},
	)
	notes := service.NewNoteService(a.notes, a.docs, a.valid, log)

	router := newRouter(a, routeHandlers{
		documents: handler.NewDocumentHandler(documents),
		notes:     handler.NewNoteHandler(notes),
		metrics:   handler.NewMetricsHandler(a.metric, a.readinessChecks()),
		tokens:    service.NewTokenService(a.cfg.JWT.Secret),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.cfg.Env), zap.String("queue", a.cfg.Pipeline.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if a.cfg.Pipeline.RecoverOnStartup && a.cfg.Pipeline.QueueBackend == config.QueueBackendMemory {
		go func() {
			if _, err := service.RecoverPending(ctx, a.docs, queue, log); err != nil {
				log.Warn("failed to recover unfinished documents", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

type routeHandlers struct {
	documents *handler.DocumentHandler
	notes     *handler.NoteHandler
	metrics   *handler.MetricsHandler
	tokens    middleware.TokenValidator
}

func newRouter(a *app, h routeHandlers) *gin.Engine {
	if a.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.log))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metric))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)
	api.Use(middleware.OptionalJWT(h.tokens))
	api.GET("/shared/:token", h.documents.Shared)

	docs := api.Group("/documents")
	docs.POST("", h.documents.Upload)
	docs.GET("/:id", h.documents.Get)
	docs.PATCH("/:id", h.documents.Update)
	docs.DELETE("/:id", h.documents.Delete)
	docs.GET("/:id/download-original", h.documents.DownloadOriginal)
	docs.GET("/:id/download-archive", h.documents.DownloadArchive)
	docs.GET("/:id/thumbnail", h.documents.Thumbnail)
	docs.GET("/:id/share", h.documents.Share)
	docs.GET("/:id/notes", h.notes.List)
	docs.POST("/:id/notes", h.notes.Create)
	docs.DELETE("/:id/notes/:noteId", h.notes.Delete)

	operator := docs.Group("")
	operator.Use(middleware.JWT(h.tokens))
	operator.POST("/:id/reprocess", h.documents.Reprocess)

	return r
}

func (a *app) readinessChecks() map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return a.db.PingContext(ctx) },
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}
