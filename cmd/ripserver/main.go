package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alxayo/ripserver/internal/blobsync"
	"github.com/alxayo/ripserver/internal/broadcast"
	"github.com/alxayo/ripserver/internal/logger"
	"github.com/alxayo/ripserver/internal/oslayer"
	"github.com/alxayo/ripserver/internal/playlist"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	if cfg.blobContainer != "" {
		syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := blobsync.Sync(syncCtx, cfg.blobContainer, cfg.playlistDir)
		cancel()
		if err != nil {
			log.Error("blob sync failed", "error", err)
			os.Exit(1)
		}
	}

	pl, err := playlist.Load(cfg.playlistDir)
	if err != nil {
		log.Error("failed to load playlist", "error", err)
		os.Exit(1)
	}

	engine, err := broadcast.New(broadcast.Config{
		ListenAddr:     cfg.listenAddr,
		MaxClients:     int(cfg.maxClients),
		TickInterval:   cfg.tickInterval,
		WriteSliceSize: int(cfg.chunkWriteSize),
	}, pl)
	if err != nil {
		log.Error("failed to initialize broadcast engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := oslayer.InstallShutdownSignal()
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx) }()

	log.Info("ripserver started", "listen", cfg.listenAddr, "playlist_dir", cfg.playlistDir, "tracks", pl.Len(), "version", version)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		if err := <-runErr; err != nil {
			log.Error("engine exited with error during shutdown", "error", err)
			os.Exit(1)
		}
		log.Info("ripserver stopped cleanly")
	case err := <-runErr:
		if err != nil {
			log.Error("engine exited unexpectedly", "error", err)
			os.Exit(1)
		}
	}
}
