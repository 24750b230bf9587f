package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/advisory"
	"bybit-trading-bot/internal/api"
	"bybit-trading-bot/internal/bot"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/clock"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/database"
	"bybit-trading-bot/internal/ledger"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
	"bybit-trading-bot/internal/scanner"
	"bybit-trading-bot/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Vault overrides the configured API credentials when enabled.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to create vault client: %v", err)
	}
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		creds, err := vaultClient.FetchCredentials(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to fetch credentials from vault: %v", err)
		}
		cfg.BybitConfig.APIKey = creds.APIKey
		cfg.BybitConfig.SecretKey = creds.SecretKey
		logger.Info("Exchange credentials loaded from Vault")
	}

	client := bybit.NewHTTPClient(cfg.BybitConfig.APIKey, cfg.BybitConfig.SecretKey, cfg.BybitConfig.BaseURL)
	category := cfg.BybitConfig.Category

	capital, err := ledger.New(cfg.TradingConfig.TotalCapital, zlog)
	if err != nil {
		log.Fatalf("Failed to create capital ledger: %v", err)
	}

	// Optional PostgreSQL trade history.
	var (
		db         *database.DB
		tradeRepo  *database.TradeRepository
		tradeStore position.TradeStore
	)
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(migrateCtx); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		cancel()

		tradeRepo = database.NewTradeRepository(db, logger)
		tradeStore = tradeRepo
	}

	// Optional Redis position snapshots.
	var snapshots position.SnapshotStore
	if cfg.RedisConfig.Enabled {
		stateStore, err := database.NewPositionStateStore(cfg.RedisConfig, logger)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer stateStore.Close()
		snapshots = stateStore

		reportResidualPositions(stateStore, logger)
	}

	hub := api.NewWSHub(logger)
	go hub.Run()

	cooldowns := cooldown.New(cfg.CooldownWindow(), clock.Real{})
	positions := position.New(client, category, capital, cooldowns,
		tradeStore, snapshots, hub, cfg.TradingConfig, cfg.PositionConfig, clock.Real{}, zlog)

	var scorer advisory.Scorer
	if cfg.AdvisoryConfig.Enabled {
		scorer = advisory.NewHTTPScorer(cfg.AdvisoryConfig.BaseURL, cfg.AdvisoryConfig.APIKey,
			time.Duration(cfg.AdvisoryConfig.Timeout)*time.Second, logger)
		logger.Info("Advisory scorer enabled", "base_url", cfg.AdvisoryConfig.BaseURL)
	}

	instruments := catalog.New(client, category, logger)
	scan := scanner.New(client, category, instruments, cooldowns, positions, scorer, cfg.AdvisoryConfig.Weight, cfg.ScannerConfig, logger)

	engine := bot.New(cfg, instruments, scan, positions, capital, cooldowns, hub, logger)

	var server *api.Server
	if cfg.APIConfig.Enabled {
		server = api.NewServer(cfg.APIConfig, engine, positions, capital, scan, tradeRepo, hub, logger)
		go func() {
			if err := server.Start(); err != nil {
				log.Fatalf("Failed to start API server: %v", err)
			}
		}()
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Start(startCtx); err != nil {
		cancel()
		log.Fatalf("Failed to start bot: %v", err)
	}
	cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Positions close before the API goes away so manual intervention
	// stays possible until the end.
	engine.Stop(shutdownCtx)

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down API server", "error", err.Error())
		}
	}
	logger.Info("Shutdown complete")
}

// reportResidualPositions logs snapshots a previous run left behind so the
// operator can reconcile exposure on the exchange.
func reportResidualPositions(store *database.PositionStateStore, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	residual, err := store.LoadAll(ctx)
	if err != nil {
		logger.Warn("Failed to load residual position snapshots", "error", err.Error())
		return
	}
	for _, p := range residual {
		logger.Warn("Residual position from previous run",
			"id", p.ID, "symbol", p.Symbol, "side", string(p.Side), "entry", p.EntryPrice, "qty", p.Qty)
	}
}
