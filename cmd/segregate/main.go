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

	"github.com/urfave/cli/v2"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/api"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/config"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/segregation"
	"github.com/eynsfordcq/aws-s3-file-segregation/pkg/logger"
)

func newConfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the segregation config file (yaml, json or toml)",
		Required: true,
		EnvVars:  []string{"SEGREGATION_CONFIG"},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		newConfigFlag(),
		&cli.StringFlag{
			Name:    "datetime",
			Usage:   "Process date for undated objects, \"YYYY-MM-DD HH:MM:SS\"",
			EnvVars: []string{"SEGREGATION_DATETIME"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
			EnvVars: []string{"SEGREGATION_VERBOSE"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "List and route objects without copying or deleting",
			EnvVars: []string{"SEGREGATION_DRY_RUN"},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		logger.Log.Error().Stack().Err(err).Msg("segregate failed")
		stop()
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "segregate",
		Usage: "Move landed objects into date-partitioned prefixes",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one segregation pass",
				Flags:  runFlags(),
				Action: runOnce,
			},
			{
				Name:  "watch",
				Usage: "Run segregation on an interval and serve the status API",
				Flags: append(runFlags(),
					&cli.DurationFlag{
						Name:    "interval",
						Usage:   "Time between runs; defaults to schedule.interval",
						EnvVars: []string{"SEGREGATION_INTERVAL"},
					},
				),
				Action: watch,
			},
			{
				Name:   "validate",
				Usage:  "Validate the config file and print the resolved settings",
				Flags:  []cli.Flag{newConfigFlag()},
				Action: validate,
			},
		},
	}
}

func runOnce(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.svc.RunOnce(c.Context)
	if err != nil {
		return err
	}
	if summary.Status == segregation.RunSkipped {
		a.log.Warn().Msg("run skipped")
	}
	return nil
}

func watch(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.cfg.Schedule.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}

	setGinMode(a.cfg.Server.Mode)
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      api.NewRouter(c.Context, a.svc, a.cfg.Server.AllowedOrigins),
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("port", a.cfg.Server.Port).Msg("starting status server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go func() {
		select {
		case err := <-serverErr:
			a.log.Error().Err(err).Msg("status server failed")
			cancel()
		case <-ctx.Done():
		}
	}()

	a.log.Info().Dur("interval", interval).Msg("watching source prefix")
	watchErr := a.svc.Watch(ctx, interval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("status server shutdown failed")
	}
	// runs started over the API must be recorded before the stores close
	a.svc.Wait()

	return watchErr
}

func validate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s := cfg.Segregation
	w := c.App.Writer
	fmt.Fprintf(w, "source prefix:       %s\n", s.SourcePrefix)
	fmt.Fprintf(w, "segregated template: %s\n", s.SegregatedTemplate)
	fmt.Fprintf(w, "error prefix:        %s\n", s.ErrorPrefix)
	fmt.Fprintf(w, "match pattern:       %s\n", s.MatchPattern)
	fmt.Fprintf(w, "datetime format:     %s\n", s.DatetimeFormat)
	fmt.Fprintf(w, "time delay:          %s\n", time.Duration(s.TimeDelaySeconds)*time.Second)
	fmt.Fprintf(w, "page size:           %d\n", s.PageSize)
	fmt.Fprintf(w, "max pages:           %d\n", s.MaxPages)
	fmt.Fprintf(w, "workers:             %d\n", s.Workers)
	fmt.Fprintf(w, "storage driver:      %s\n", cfg.Storage.Driver)
	fmt.Fprintf(w, "run lock:            %t\n", cfg.Lock.Enabled)
	fmt.Fprintf(w, "run history:         %t\n", cfg.History.Enabled)
	fmt.Fprintf(w, "datetime layout:     %s\n", config.DatetimeFormat)
	return nil
}
