package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stwalsh4118/simulcast/internal/api"
	"github.com/stwalsh4118/simulcast/internal/broadcast"
	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/player"
	"github.com/stwalsh4118/simulcast/internal/reconcile"
	"github.com/stwalsh4118/simulcast/internal/timeline"
	"github.com/urfave/cli"
)

const relayDialTimeout = 10 * time.Second

var watchFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "server, s",
		Usage: "base URL of a simulcast server (default: sync.serverurl)",
	},
	cli.Float64Flag{
		Name:  "rate",
		Value: 1,
		Usage: "playback rate of the simulated player; values other than 1 drift",
	},
	cli.DurationFlag{
		Name:  "startup-delay",
		Value: 500 * time.Millisecond,
		Usage: "how long the simulated player takes to become ready",
	},
	cli.DurationFlag{
		Name:  "interval, i",
		Value: 5 * time.Second,
		Usage: "how often to print the context status",
	},
	cli.BoolFlag{
		Name:  "no-relay",
		Usage: "do not join the server's sync relay",
	},
}

// syncURL converts a server base URL into its websocket relay address
func syncURL(base, channelName string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += api.SyncPath
	u.RawQuery = url.Values{"channel": {channelName}}.Encode()
	return u.String(), nil
}

func watch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Component("watch")

	base := c.String("server")
	if base == "" {
		base = cfg.Sync.ServerURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := reconcile.NewCrossChecker(base, cfg.Sync.CrossCheckTTL, &http.Client{Timeout: 10 * time.Second})
	schedule, err := watchSchedule(ctx, checker, cfg)
	if err != nil {
		return err
	}

	factory := player.Factory(player.Options{
		Rate:         c.Float64("rate"),
		StartupDelay: c.Duration("startup-delay"),
		Durations:    player.DurationsFromSchedule(schedule),
	})
	syncer := reconcile.NewSyncer(schedule, factory, reconcile.OptionsFromConfig(cfg.Sync)).
		WithCrossChecker(checker)

	if !c.Bool("no-relay") {
		if relay := joinRelay(ctx, base, cfg.Sync.BroadcastName); relay != nil {
			syncer.WithBroadcast(relay)
		}
	}

	if err := syncer.Start(ctx); err != nil {
		syncer.Stop()
		return err
	}
	defer syncer.Stop()

	log.Info().
		Str("server", base).
		Str("origin", syncer.Origin()).
		Int("programs", schedule.Len()).
		Msg("Watching channel")

	ticker := time.NewTicker(c.Duration("interval"))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-syncer.Done():
			return nil
		case <-ticker.C:
			printStatus(syncer.Status())
		}
	}
}

// watchSchedule prefers the server's lineup so the context matches what the server
// reports, and falls back to the local lineup when the server cannot be reached
func watchSchedule(ctx context.Context, checker *reconcile.CrossChecker, cfg *config.Config) (*timeline.Schedule, error) {
	log := logger.Component("watch")

	epoch, programs, err := checker.Lineup(ctx)
	if err == nil {
		return timeline.NewSchedule(epoch, programs)
	}

	log.Warn().
		Err(err).
		Msg("Server lineup unavailable, using the local lineup")

	schedule, localErr := localSchedule(cfg)
	if localErr != nil {
		return nil, fmt.Errorf("no lineup available (server: %v): %w", err, localErr)
	}
	return schedule, nil
}

// joinRelay dials the server's sync relay. The relay is best-effort, so a failure
// is logged and the context runs on its own.
func joinRelay(ctx context.Context, base, channelName string) broadcast.Channel {
	log := logger.Component("watch")

	wsURL, err := syncURL(base, channelName)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid sync relay address, running without relay")
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, relayDialTimeout)
	defer cancel()

	relay, err := broadcast.DialWS(dialCtx, wsURL, nil)
	if err != nil {
		log.Warn().
			Err(err).
			Str("url", wsURL).
			Msg("Failed to join sync relay, running without relay")
		return nil
	}
	return relay
}

func printStatus(st reconcile.Status) {
	line := fmt.Sprintf("[%s] %s %s", strings.ToUpper(st.Label), st.ProgramTitle, timeline.FormatClock(int64(st.OffsetSeconds)))
	if len(st.Upcoming) > 0 {
		line += fmt.Sprintf("  next: %s in %s", st.Upcoming[0].Program.Title, timeline.FormatClock(st.Upcoming[0].StartsInSeconds))
	}
	if st.ClockSkew.Abs() > time.Second {
		line += fmt.Sprintf("  skew %s", st.ClockSkew.Round(time.Millisecond))
	}
	if st.LastError != "" {
		line += "  error: " + st.LastError
	}
	fmt.Println(line)
}
