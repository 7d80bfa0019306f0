package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/stagelink/os2obs/internal/api"
	"github.com/stagelink/os2obs/internal/bridge"
	"github.com/stagelink/os2obs/internal/config"
	xlog "github.com/stagelink/os2obs/internal/log"
	"github.com/stagelink/os2obs/internal/opensong"
	"github.com/stagelink/os2obs/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Leave the level empty so the LOG_LEVEL fallback applies until the
	// config file has been loaded.
	xlog.Configure(xlog.Config{
		Service: "os2obs",
	})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	xlog.SetLevel(cfg.LogLevel)

	logger.Info().
		Str("event", "config.loaded").
		Str("address", cfg.Address).
		Str("title_file", cfg.TitleFile).
		Str("verse_file", cfg.VerseFile).
		Msg("configuration loaded")

	client := opensong.New(cfg.BaseURL(), cfg.HTTPTimeout)
	writer := output.New(cfg.TitleFile, cfg.VerseFile, cfg.AtomicWrites)

	// Start clean: the display tool must not show content from a previous
	// run before the first slide change arrives.
	if err := writer.Blank(); err != nil {
		logger.Error().
			Err(err).
			Str("event", "output.blank_failed").
			Msg("could not blank output files")
	}

	// Carry the base logger in the context so per-notification logs pick it
	// up wherever they run.
	base := xlog.Base()
	ctx = base.WithContext(ctx)

	b := bridge.New(bridge.Config{
		WSURL:         cfg.WSURL(),
		SubscribePath: cfg.SubscribePath,
		RetryDelay:    cfg.RetryDelay,
	}, client, writer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx)
	})
	if cfg.Listen != "" {
		g.Go(func() error {
			return api.Serve(gctx, cfg.Listen, api.Router(b.Ready))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon terminated")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("exiting")
}
