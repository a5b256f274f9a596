// cmd/wishd/main.go
// Package main implements the entry point for the wish data service.
// It initializes all components and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/wishplanet/wishplanet-go/internal/chain"
	"github.com/wishplanet/wishplanet-go/internal/config"
	"github.com/wishplanet/wishplanet-go/internal/event"
	"github.com/wishplanet/wishplanet-go/internal/explorer"
	"github.com/wishplanet/wishplanet-go/internal/localwish"
	"github.com/wishplanet/wishplanet-go/internal/media"
	"github.com/wishplanet/wishplanet-go/internal/metrics"
	"github.com/wishplanet/wishplanet-go/internal/repository"
	"github.com/wishplanet/wishplanet-go/internal/schema"
	"github.com/wishplanet/wishplanet-go/internal/server"
	"github.com/wishplanet/wishplanet-go/internal/telemetry"
)

// main initializes all components, starts the HTTP server, and handles
// graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("wish-service")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize the media store (PostgreSQL or local LevelDB)
	var store media.Store
	if cfg.DatabaseDSN != "" {
		store, err = media.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres media store", "error", err)
			os.Exit(1)
		}
	} else {
		store, err = media.NewLevelDB(filepath.Join(cfg.MediaPath, "files"))
		if err != nil {
			logger.Error("failed to initialize leveldb media store", "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	// Open the legacy local wish store alongside the media store
	local, err := localwish.Open(filepath.Join(cfg.MediaPath, "local"))
	if err != nil {
		logger.Error("failed to open local wish store", "error", err)
		os.Exit(1)
	}
	defer local.Close()

	// Connect to the chain RPC endpoint
	backend, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("failed to dial chain RPC", "url", cfg.Chain.RPCURL, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	desc := chain.ChainDescriptor{
		ChainID:        cfg.Chain.ChainID,
		Name:           cfg.Chain.Name,
		RPCURL:         cfg.Chain.RPCURL,
		CurrencySymbol: cfg.Chain.CurrencySymbol,
		CurrencyName:   cfg.Chain.CurrencyName,
		Decimals:       cfg.Chain.Decimals,
		ExplorerURL:    cfg.Chain.ExplorerURL,
	}

	// The wallet is optional: without a keystore the service serves reads
	// but cannot submit transactions.
	var wallet chain.Wallet
	if cfg.KeystorePath != "" {
		wallet = chain.NewKeystoreWallet(cfg.KeystorePath, cfg.KeystoreSecret, desc)
	} else {
		logger.Warn("no keystore configured, running in read-only mode")
	}

	gateway := chain.NewGateway(wallet, backend, desc, common.HexToAddress(cfg.ContractAddress), cfg.ScanBatchBlocks, cfg.ScanMaxBlocks, logger)

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisherFromEnv()
	defer pub.Close()

	validator, err := schema.NewValidator()
	if err != nil {
		logger.Error("failed to initialize schema validator", "error", err)
		os.Exit(1)
	}

	repo := repository.New(gateway, store, validator, pub, metrics.NewMetrics(), cfg.MaxMediaSize, logger)

	var session server.Session
	if wallet != nil {
		session = gateway
	}
	var exp *explorer.Client
	if cfg.Chain.ExplorerURL != "" {
		exp = explorer.New(cfg.Chain.ExplorerURL)
	}
	mux := server.NewMux(repo, session, local, exp, cfg.MaxMediaSize, cfg.CORSAllowedOrigins)

	// Create HTTP server with timeout configuration
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env, "chain", cfg.Chain.Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	gateway.Disconnect()
	logger.Info("server exited")
}
