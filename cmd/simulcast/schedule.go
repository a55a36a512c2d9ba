package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/stwalsh4118/simulcast/internal/channel"
	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/db"
	"github.com/stwalsh4118/simulcast/internal/export"
	"github.com/stwalsh4118/simulcast/internal/timeline"
	"github.com/urfave/cli"
)

var upcomingFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "count, n",
		Value: 10,
		Usage: "number of upcoming programs to list",
	},
	cli.StringFlag{
		Name:  "m3u8",
		Usage: "also write the lineup as an HLS playlist to this path",
	},
}

// localSchedule builds the schedule from the configured lineup, falling back to the stored one
func localSchedule(cfg *config.Config) (*timeline.Schedule, error) {
	if len(cfg.Channel.Programs) > 0 {
		return channel.ScheduleFromConfig(cfg.Channel)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = database.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectionTimeout)
	defer cancel()
	return channel.NewChannelService(db.NewRepositories(database)).LoadSchedule(ctx)
}

func now(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	schedule, err := localSchedule(cfg)
	if err != nil {
		return err
	}

	pos := schedule.PositionAt(time.Now())
	fmt.Printf("%s  [%d/%d] %s\n", cfg.Channel.Name, pos.ProgramIndex+1, schedule.Len(), pos.Program.Title)
	fmt.Printf("  %s / %s  (%s left)\n",
		timeline.FormatClock(pos.OffsetSeconds),
		timeline.FormatClock(pos.Program.Duration),
		timeline.FormatDuration(pos.TimeRemainingSeconds),
	)
	fmt.Printf("  next: %s at %s\n", pos.NextProgram.Title, pos.EndsAt.Local().Format(time.Kitchen))
	return nil
}

func upcoming(c *cli.Context) error {
	count := c.Int("count")
	if count < 0 {
		return cli.NewExitError("count must not be negative", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	schedule, err := localSchedule(cfg)
	if err != nil {
		return err
	}

	service := timeline.NewTimelineService(schedule, nil)
	pos, next := service.Upcoming(count)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "NOW\t%s\t%s left\n", pos.Program.Title, timeline.FormatClock(pos.TimeRemainingSeconds))
	for _, u := range next {
		marker := ""
		if u.IsFirstInNextCycle {
			marker = "(new cycle)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			u.StartsAt.Local().Format(time.Kitchen),
			u.Program.Title,
			timeline.FormatDuration(u.Program.Duration),
			marker,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if path := c.String("m3u8"); path != "" {
		content, err := export.Lineup(schedule, pos, next)
		if err != nil {
			return err
		}
		if err := export.WriteFile(path, content); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
