package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/repository"
	"github.com/noah-isme/document-archive-api/internal/service"
	"github.com/noah-isme/document-archive-api/pkg/cache"
	"github.com/noah-isme/document-archive-api/pkg/config"
	"github.com/noah-isme/document-archive-api/pkg/convert"
	"github.com/noah-isme/document-archive-api/pkg/database"
	"github.com/noah-isme/document-archive-api/pkg/jobs"
	"github.com/noah-isme/document-archive-api/pkg/logger"
	"github.com/noah-isme/document-archive-api/pkg/storage"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client
	docs   *repository.DocumentRepository
	notes  *repository.NoteRepository
	store  storageRoots
	metric *service.MetricsService
	valid  *validator.Validate
}

type storageRoots struct {
	originals  *storage.ContentStore
	archives   *storage.LocalStorage
	thumbnails *storage.LocalStorage
	scratch    *storage.LocalStorage
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		docs:   repository.NewDocumentRepository(db),
		notes:  repository.NewNoteRepository(db),
		metric: service.NewMetricsService(),
		valid:  validator.New(),
	}

	if cfg.Pipeline.QueueBackend == config.QueueBackendRedis {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
	}

	if a.store, err = openStorage(cfg.Storage); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func openStorage(cfg config.StorageConfig) (storageRoots, error) {
	var roots storageRoots
	dirs := []struct {
		path string
		dst  **storage.LocalStorage
	}{
		{cfg.ArchiveDir, &roots.archives},
		{cfg.ThumbnailDir, &roots.thumbnails},
		{cfg.ScratchDir, &roots.scratch},
	}
	for _, d := range dirs {
		ls, err := storage.NewLocalStorage(d.path)
		if err != nil {
			return roots, err
		}
		*d.dst = ls
	}
	originals, err := storage.NewLocalStorage(cfg.OriginalsDir)
	if err != nil {
		return roots, err
	}
	roots.originals = storage.NewContentStore(originals)
	return roots, nil
}

func (a *app) pipeline() *service.ConversionPipeline {
	tools := a.cfg.Tools
	runner := convert.NewExecRunner(tools.Timeout)
	gs := convert.NewGhostscript(tools.GhostscriptBin, tools.RasterDPI, runner)
	return service.NewConversionPipeline(a.docs, service.PipelineTools{
		Converter:  convert.NewRouter(convert.NewLibreOffice(tools.LibreOfficeBin, runner)),
		Normalizer: gs,
		Rasterizer: gs,
		Thumbnails: convert.NewThumbnailRenderer(tools.ThumbnailMaxEdge, tools.ThumbnailQuality),
	}, service.PipelineStorage{
		Originals:  a.store.originals,
		Archives:   a.store.archives,
		Thumbnails: a.store.thumbnails,
		Scratch:    a.store.scratch,
	}, a.metric, a.log)
}

// dispatcher builds the configured queue backend around handler.
func (a *app) dispatcher(handler jobs.Handler) jobs.Dispatcher {
	p := a.cfg.Pipeline
	qcfg := jobs.QueueConfig{
		Workers:    p.Workers,
		BufferSize: p.BufferSize,
		MaxRetries: p.MaxRetries,
		RetryDelay: p.RetryDelay,
		Logger:     a.log,
	}
	if a.redis != nil {
		return jobs.NewRedisQueue(a.redis, p.RedisKey, handler, qcfg)
	}
	return jobs.NewQueue("documents", handler, qcfg)
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
