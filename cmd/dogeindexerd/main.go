// Package main provides dogeindexerd - the Dogecoin meta-protocol
// indexing daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dogeindex/dogeindexer/internal/config"
	"github.com/dogeindex/dogeindexer/internal/events"
	"github.com/dogeindex/dogeindexer/internal/indexer"
	"github.com/dogeindex/dogeindexer/pkg/helpers"
	"github.com/dogeindex/dogeindexer/pkg/logging"
)

// koinuDecimals is Dogecoin's display precision: 1 DOGE = 1e8 koinu.
const koinuDecimals = 8

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.dogeindexer", "Data directory for the indexer's own store")
		configFile  = flag.String("config", "", "Config file path; only its directory is used, and config.yaml is read from there (default: <data-dir>/config.yaml)")
		rpcURL      = flag.String("rpc-url", "", "Dogecoin Core JSON-RPC URL, overrides config")
		rpcUser     = flag.String("rpc-user", "", "Dogecoin Core JSON-RPC username, overrides config")
		rpcPass     = flag.String("rpc-pass", "", "Dogecoin Core JSON-RPC password, overrides config")
		nodeDataDir = flag.String("node-data-dir", "", "Dogecoin Core data directory, for disk-first block reading, overrides config")
		testnet     = flag.Bool("testnet", false, "Run on testnet (separate network and data)")
		heightLimit = flag.Uint("height-limit", 0, "Stop indexing once this height is reached (0 = no limit), overrides config")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("dogeindexerd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	configDir := effectiveDataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	cfg.Storage.DataDir = effectiveDataDir
	cfg.Logging.Level = *logLevel
	if *testnet {
		cfg.NetworkType = config.NetworkTestnet
	} else {
		cfg.NetworkType = config.NetworkMainnet
	}
	if *rpcURL != "" {
		cfg.Node.RPCURL = *rpcURL
	}
	if *rpcUser != "" {
		cfg.Node.RPCUser = *rpcUser
	}
	if *rpcPass != "" {
		cfg.Node.RPCPass = *rpcPass
	}
	if *nodeDataDir != "" {
		cfg.Node.DataDir = *nodeDataDir
	}
	if *heightLimit > 0 {
		cfg.Indexing.HeightLimit = uint32(*heightLimit)
	}

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(configDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx, err := indexer.New(cfg, log.Component("indexer"))
	if err != nil {
		log.Fatal("Failed to initialize indexer", "error", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.Error("Error closing store", "error", err)
		}
	}()
	log.Info("Indexer initialized", "data_dir", cfg.Storage.DataDir, "rpc_url", cfg.Node.RPCURL)

	eventLog := log.Component("events")
	go logEvents(ctx, eventLog, idx.Events())
	go statusTicker(ctx, log.Component("status"), idx)

	printBanner(log, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- idx.Run(ctx)
	}()

	select {
	case <-sigCh:
		log.Info("Shutting down...")
		cancel()
		if err := <-runErrCh; err != nil {
			log.Error("Indexer stopped with error", "error", err)
		}
	case err := <-runErrCh:
		if err != nil {
			log.Error("Indexer stopped with error", "error", err)
		}
	}

	log.Info("Goodbye!")
}

// logEvents subscribes to the indexer's event bus and logs inscription
// lifecycle events at debug level until ctx is cancelled.
func logEvents(ctx context.Context, log *logging.Logger, bus *events.Bus) {
	ch := bus.Subscribe(256)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			switch ev.Kind {
			case events.InscriptionCreated:
				if p, ok := ev.Payload.(events.InscriptionPayload); ok {
					log.Debug("Inscription created", "height", ev.Height, "number", p.SequenceNumber, "id", p.InscriptionID)
				}
			case events.InscriptionTransferred:
				if p, ok := ev.Payload.(events.InscriptionPayload); ok {
					log.Debug("Inscription transferred", "height", ev.Height, "number", p.SequenceNumber, "id", p.InscriptionID)
				}
			}
		}
	}
}

// statusTicker logs a periodic progress summary, mirroring the
// teacher's peer-count status ticker but reporting index height and
// the lost-coin sink's running total in human-readable DOGE.
func statusTicker(ctx context.Context, log *logging.Logger, idx *indexer.Indexer) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := idx.Stats()
			if err != nil {
				log.Warn("Failed to read stats", "error", err)
				continue
			}
			log.Info("Status",
				"height", stats.CommitHeight,
				"commits", stats.IndexCommits,
				"lost_coins", helpers.FormatAmount(stats.LostCoins, koinuDecimals)+" DOGE",
				"cursed_inscriptions", stats.CursedInscriptions,
				"blessed_inscriptions", stats.BlessedInscriptions,
			)
		}
	}
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  Dogecoin Meta-Protocol Indexer (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Node RPC: %s", cfg.Node.RPCURL)
	if cfg.Node.DataDir != "" {
		log.Infof("  Node data dir (disk-first reads): %s", cfg.Node.DataDir)
	}
	log.Info("")
	log.Infof("  Commit interval: %d blocks | Savepoint interval: %d blocks | Max savepoints: %d",
		cfg.Indexing.CommitInterval, cfg.Indexing.SavepointInterval, cfg.Indexing.MaxSavepoints)
	log.Infof("  Indexing: coins=%v addresses=%v inscriptions=%v drc20=%v dns=%v",
		cfg.Indexing.IndexCoins, cfg.Indexing.IndexAddresses, cfg.Indexing.IndexInscriptions, cfg.Indexing.IndexDRC20, cfg.Indexing.IndexDNS)
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
