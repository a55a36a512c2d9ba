//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/simulcast/internal/channel"
	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/db"
	"github.com/stwalsh4118/simulcast/internal/server"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

// migrationsPath resolves the migrations directory relative to this file so
// tests work regardless of working directory
func migrationsPath(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	rootDir := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return "file://" + filepath.Join(rootDir, "migrations")
}

// setupTestDB creates a file-backed test database with migrations applied
func setupTestDB(t *testing.T, path string) (*db.DB, *db.Repositories) {
	t.Helper()

	database, err := db.New(path)
	require.NoError(t, err, "Failed to create database")
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err, "Failed to get SQL DB")
	require.NoError(t, db.RunMigrations(sqlDB, migrationsPath(t)), "Failed to run migrations")

	return database, db.NewRepositories(database)
}

// testConfig returns a complete configuration for a one-hour-program lineup
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, Host: "127.0.0.1", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "simulcast.db"), ConnectionTimeout: 5 * time.Second},
		Logging:  config.LoggingConfig{Level: "error"},
		Channel: config.ChannelConfig{
			Name:  "Integration",
			Epoch: "2023-01-01T00:00:00Z",
			Programs: []config.ProgramConfig{
				{ID: "one", MediaRef: "one.mp4", Title: "One", Duration: 3600},
				{ID: "two", MediaRef: "two.mp4", Title: "Two", Duration: 1800},
				{ID: "three", MediaRef: "three.mp4", Title: "Three", Duration: 2400},
			},
		},
		Sync: config.SyncConfig{
			TickInterval:        50 * time.Millisecond,
			DriftThreshold:      0.2,
			ReadyCheckDelay:     50 * time.Millisecond,
			ReadyDriftThreshold: 0.2,
			EndCooldown:         100 * time.Millisecond,
			StalenessWindow:     2 * time.Second,
			PlayerRetryBackoff:  200 * time.Millisecond,
			InitRetryBackoff:    100 * time.Millisecond,
			AnnounceDelay:       50 * time.Millisecond,
			CrossCheckTTL:       time.Second,
			CrossCheckInterval:  200 * time.Millisecond,
			UpcomingCount:       3,
			BroadcastName:       "integration-sync",
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// startTestServer bootstraps the channel and serves it from an httptest server
func startTestServer(t *testing.T, cfg *config.Config) (*server.Server, *httptest.Server, *timeline.Schedule) {
	t.Helper()

	database, repos := setupTestDB(t, cfg.Database.Path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	schedule, err := channel.NewChannelService(repos).Bootstrap(ctx, cfg.Channel)
	require.NoError(t, err)

	srv := server.New(cfg, database, schedule)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		ts.Close()
	})

	return srv, ts, schedule
}

// wsURL returns the relay address for the configured broadcast name
func wsURL(ts *httptest.Server, name string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sync/ws?channel=" + name
}
