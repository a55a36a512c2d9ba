package main

import (
	"fmt"
	"os"

	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/urfave/cli"
)

var version = "dev"

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to a config file (default: ./config.yaml, ./config/, /etc/simulcast/)",
		EnvVar: "SIMULCAST_CONFIG",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "override the configured log level (debug, info, warn, error)",
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "simulcast"
	app.HelpName = "simulcast"
	app.Usage = "a virtual broadcast channel every viewer watches in lockstep"
	app.UsageText = "simulcast [global options] <command> [arguments...]"
	app.Version = version
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the schedule API and sync relay",
			Action: serve,
		},
		{
			Name:   "now",
			Usage:  "print what is on air right now",
			Action: now,
		},
		{
			Name:    "upcoming",
			Aliases: []string{"u"},
			Usage:   "print the next programs",
			Action:  upcoming,
			Flags:   upcomingFlags,
		},
		{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "run a headless viewing context against a server",
			Action:  watch,
			Flags:   watchFlags,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "simulcast: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and initializes the global logger
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFrom(ctx.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if level := ctx.GlobalString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Pretty)
	return cfg, nil
}
