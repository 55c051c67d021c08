// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipworks/clipd/internal/api"
	"github.com/clipworks/clipd/internal/clip"
	"github.com/clipworks/clipd/internal/config"
	cliplog "github.com/clipworks/clipd/internal/log"
	"github.com/clipworks/clipd/internal/media/engine"
	"github.com/clipworks/clipd/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clipd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	cliplog.Configure(cliplog.Config{
		Level:   cfg.LogLevel,
		Service: "clipd",
	})
	logger := cliplog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Str("event", "config.invalid").Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.StoreDir, cliplog.WithComponent("store"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.init_failed").Str("dir", cfg.StoreDir).Msg("cannot open clip store")
	}

	eng := engine.NewFFmpeg(cfg.FFmpegBin, cfg.FFprobeBin, cfg.EngineTimeout, cliplog.WithComponent("engine"))
	extractor := clip.NewExtractor(eng, st, cliplog.WithComponent("extractor"))
	merger := clip.NewMerger(eng, st, cliplog.WithComponent("merger"))

	srv := api.New(cfg, st, extractor, merger, cliplog.WithComponent("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info().
		Str("event", "daemon.started").
		Str("version", version).
		Str("addr", cfg.ListenAddr).
		Str("store", st.Dir()).
		Str("ffmpeg", cfg.FFmpegBin).
		Msg("clipd is ready")

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "daemon.signal").Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Str("event", "daemon.listen_failed").Msg("http server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.shutdown_failed").Msg("graceful shutdown failed")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.stopped").Msg("clipd stopped cleanly")
}
