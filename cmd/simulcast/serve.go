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

	"github.com/stwalsh4118/simulcast/internal/channel"
	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/db"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/server"
	"github.com/stwalsh4118/simulcast/internal/timeline"
	"github.com/urfave/cli"
)

const shutdownTimeout = 10 * time.Second

// openDatabase connects to SQLite and applies pending migrations
func openDatabase(cfg *config.Config) (*db.DB, error) {
	database, err := db.New(cfg.Database.Path,
		db.WithWAL(cfg.Database.EnableWAL),
		db.WithConnectionTimeout(cfg.Database.ConnectionTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := database.GetSQLDB()
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	if err := db.RunMigrations(sqlDB, cfg.Database.MigrationsPath); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// bootstrapSchedule stores the configured lineup on first start and returns the active schedule
func bootstrapSchedule(ctx context.Context, cfg *config.Config, database *db.DB) (*timeline.Schedule, error) {
	service := channel.NewChannelService(db.NewRepositories(database))
	schedule, err := service.Bootstrap(ctx, cfg.Channel)
	switch {
	case channel.IsEpochChanged(err):
		return nil, fmt.Errorf("%w (set channel.allowepochchange to move every viewer)", err)
	case channel.IsNoPrograms(err):
		return nil, fmt.Errorf("%w (add channel.programs to the config)", err)
	case err != nil:
		return nil, err
	}
	return schedule, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Component("serve")

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectionTimeout)
	schedule, err := bootstrapSchedule(ctx, cfg, database)
	cancel()
	if err != nil {
		return err
	}

	srv := server.New(cfg, database, schedule)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
