package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/cache"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/config"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/repository"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/repository/postgres"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/service"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
	"github.com/eynsfordcq/aws-s3-file-segregation/pkg/logger"
)

// app holds everything a command needs, built from the config file and flags.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	svc     *service.SegregationService
	closers []io.Closer
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	var processDate time.Time
	if c.IsSet("datetime") {
		processDate, err = config.ParseDatetime(c.String("datetime"))
		if err != nil {
			return nil, err
		}
	}

	logNow := processDate
	if logNow.IsZero() {
		logNow = time.Now()
	}
	l, logCloser, err := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Verbose: c.Bool("verbose"),
		Now:     logNow,
	})
	if err != nil {
		return nil, err
	}
	logger.Log = l
	log.Logger = l

	a := &app{cfg: cfg, log: l, closers: []io.Closer{logCloser}}

	store, err := storage.New(c.Context, cfg.StoreConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	lock, err := cache.NewRunLock(cfg.Lock)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init run lock: %w", err)
	}
	a.closers = append(a.closers, lock)

	runs, err := a.newRunRepository(c.Context)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = service.NewSegregationService(service.Options{
		Store:  store,
		Engine: cfg.EngineConfig(processDate),
		Lock:   lock,
		Runs:   runs,
		Logger: l,
		DryRun: c.Bool("dry-run"),
	})
	return a, nil
}

func (a *app) newRunRepository(ctx context.Context) (repository.RunRepository, error) {
	if !a.cfg.History.Enabled {
		return repository.NewMemoryRunRepository(a.cfg.History.Keep), nil
	}

	db, err := postgres.NewDB(a.cfg.History)
	if err != nil {
		return nil, fmt.Errorf("init run history: %w", err)
	}
	a.closers = append(a.closers, db)

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return postgres.NewRunRepository(db), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func setGinMode(mode string) {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}
