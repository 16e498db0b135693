package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/RippnerLabs/stervault/config"
	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/gateway/middleware"
	"github.com/RippnerLabs/stervault/gateway/routes"
	"github.com/RippnerLabs/stervault/native/bank"
	"github.com/RippnerLabs/stervault/native/lending"
	"github.com/RippnerLabs/stervault/native/oracle"
	"github.com/RippnerLabs/stervault/observability/logging"
	"github.com/RippnerLabs/stervault/storage"
)

const shutdownGrace = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to service configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info("starting stervault", "listen", cfg.ListenAddress, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "lending"))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	vaultKey, err := crypto.LoadFromKeystore(cfg.VaultKeystorePath, os.Getenv("STERVAULT_KEYSTORE_PASSPHRASE"))
	if err != nil {
		logger.Error("load vault keystore", "path", cfg.VaultKeystorePath, "error", err)
		os.Exit(1)
	}
	vault := vaultKey.PubKey().Address()
	logger.Info("vault custody account loaded", "address", vault.String())

	feeds := oracle.NewFeedRegistry()
	for _, feed := range cfg.Oracle.Feeds {
		if err := feeds.Store(feed.Symbol, feed.FeedID); err != nil {
			logger.Error("register price feed", "symbol", feed.Symbol, "error", err)
			os.Exit(1)
		}
	}
	source, err := buildPriceSource(cfg.Oracle, logger)
	if err != nil {
		logger.Error("configure oracle", "provider", cfg.Oracle.Provider, "error", err)
		os.Exit(1)
	}

	risk := lending.NewRiskEngine(source, feeds, cfg.Oracle.MaxPriceAge())
	store := storage.NewLendingStore(db)
	ledger := bank.NewLedger(db)

	engine := lending.NewEngine(vault, risk)
	engine.SetState(store)
	engine.SetTransfers(ledger)
	engine.SetPauses(cfg.Lending.PauseView())

	for _, def := range cfg.Lending.Banks {
		if _, err := engine.InitBank(vault, def.Params()); err != nil {
			if errors.Is(err, lending.ErrBankExists) {
				continue
			}
			logger.Error("initialise bank", "asset", def.Asset, "error", err)
			os.Exit(1)
		}
		logger.Info("bank initialised", "asset", def.Asset, "symbol", def.Symbol)
	}

	handler := routes.New(routes.Config{
		Engine:        engine,
		Banks:         store,
		Fees:          store,
		BorrowQuota:   cfg.Quota.BorrowQuota(),
		Authenticator: buildAuthenticator(cfg.Gateway, logger),
		RateLimiter:   buildRateLimiter(cfg.Gateway, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "stervault-gateway",
			LogRequests: cfg.Gateway.LogRequests,
			Enabled:     cfg.Gateway.MetricsEnabled,
		}, logger),
		CORS:        middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
		AdminScopes: cfg.Gateway.AdminScopes,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}
	logger.Info("stervault stopped")
}

// setupLogging wires structured JSON logging, adding a size-capped rotating
// file alongside stdout when one is configured.
func setupLogging(cfg *config.Config) *slog.Logger {
	out := io.Writer(os.Stdout)
	if file := strings.TrimSpace(cfg.Log.File); file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}
	return logging.SetupWithOutput(out, "stervault", cfg.Environment)
}

func buildPriceSource(cfg config.Oracle, logger *slog.Logger) (oracle.PriceSource, error) {
	switch cfg.Provider {
	case config.ProviderHermes:
		client := &http.Client{Timeout: 10 * time.Second}
		return oracle.NewHermesSource(client, cfg.Endpoint), nil
	case config.ProviderManual:
		source := oracle.NewManualSource()
		now := time.Now()
		for _, seed := range cfg.ManualPrices {
			source.Set(seed.FeedID, oracle.Price{Price: seed.Price, Expo: seed.Expo, PublishTime: now})
			logger.Info("seeded manual price", "feed", seed.FeedID, "price", seed.Price, "expo", seed.Expo)
		}
		return source, nil
	default:
		return nil, errors.New("unknown oracle provider " + cfg.Provider)
	}
}

func buildAuthenticator(cfg config.Gateway, logger *slog.Logger) *middleware.Authenticator {
	secret := strings.TrimSpace(cfg.AdminHMACSecret)
	if secret == "" {
		logger.Warn("admin authentication disabled: no HMAC secret configured")
		return nil
	}
	logger.Info("admin authentication enabled", logging.MaskField("secret", secret))
	return middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    true,
		HMACSecret: secret,
	}, logger)
}

func buildRateLimiter(cfg config.Gateway, logger *slog.Logger) *middleware.RateLimiter {
	limits := cfg.RateLimits()
	if len(limits) == 0 {
		return nil
	}
	return middleware.NewRateLimiter(limits, logger)
}
