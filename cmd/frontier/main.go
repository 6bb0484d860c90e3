// Package main is the entry point for the efficient frontier tool.
//
// By default it performs a single run (fetch prices, build the risk model,
// sweep the risk aversions) and prints the report to stdout. With SERVE=true
// it instead exposes the HTTP API and refreshes the frontier on a schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/modules/sweep"
	"github.com/aristath/frontier/internal/report"
	"github.com/aristath/frontier/internal/server"
	"github.com/aristath/frontier/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if cfg.Serve {
		serve(cfg, container, log)
		return
	}

	if err := runOnce(cfg, container, log); err != nil {
		log.Error().Err(err).Msg("Run failed")
		container.Close()
		os.Exit(1)
	}
}

// runOnce computes a single frontier and prints it.
func runOnce(cfg *config.Config, container *di.Container, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frontier, err := container.Runner.Run(ctx, fetchProgress())
	if err != nil {
		return err
	}

	if err := report.WriteText(os.Stdout, frontier); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.ChartPath != "" {
		if err := report.WriteChart(cfg.ChartPath, frontier); err != nil {
			if errors.Is(err, report.ErrNothingToPlot) {
				log.Warn().Msg("Not enough solved points for a chart")
				return nil
			}
			return err
		}
		log.Info().Str("path", cfg.ChartPath).Msg("Chart written")
	}
	return nil
}

// fetchProgress draws a progress bar on stderr. The bar is created on the
// first report, once the total is known.
func fetchProgress() sweep.Progress {
	var (
		once sync.Once
		bar  *progressbar.ProgressBar
	)
	return func(done, total int) {
		once.Do(func() {
			bar = progressbar.NewOptions(
				total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("fetching prices"),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(20),
			)
		})
		_ = bar.Set(done)
	}
}

// serve runs the HTTP API and the scheduler until SIGINT or SIGTERM.
func serve(cfg *config.Config, container *di.Container, log zerolog.Logger) {
	jobs, err := di.RegisterJobs(container, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Runner:  container.Runner,
		CacheDB: container.ClientDataDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	jobs.Scheduler.Start()

	// First frontier without waiting for the schedule
	go func() {
		if err := jobs.Scheduler.RunNow(jobs.Sweep); err != nil {
			log.Error().Err(err).Msg("Initial sweep failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	jobs.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
