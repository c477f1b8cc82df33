package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// broadcast.Config and blobsync.Sync's arguments.
type cliConfig struct {
	listenAddr     string
	playlistDir    string
	blobContainer  string
	logLevel       string
	chunkWriteSize uint
	tickInterval   time.Duration
	maxClients     uint
	showVersion    bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("ripserver", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.listenAddr, "listen", ":9000", "TCP listen address (e.g. :9000 or 0.0.0.0:9000)")
	fs.StringVar(&cfg.playlistDir, "playlist-dir", "playlist", "Directory of .rip tracks to broadcast, in load order")
	fs.StringVar(&cfg.blobContainer, "blob-container", "", "Optional Azure Blob Storage container URL to mirror into -playlist-dir before startup")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.UintVar(&cfg.chunkWriteSize, "chunk-write-size", 4096, "Bounded per-Write slice size for the client writer goroutines")
	fs.DurationVar(&cfg.tickInterval, "tick-interval", time.Second, "Interval between broadcast ticks")
	fs.UintVar(&cfg.maxClients, "max-clients", 64, "Maximum number of simultaneously connected clients")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.chunkWriteSize == 0 || cfg.chunkWriteSize > 65536 {
		return nil, fmt.Errorf("chunk-write-size must be between 1 and 65536")
	}
	if cfg.maxClients == 0 {
		return nil, fmt.Errorf("max-clients must be at least 1")
	}
	if cfg.tickInterval <= 0 {
		return nil, fmt.Errorf("tick-interval must be positive")
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	return cfg, nil
}
