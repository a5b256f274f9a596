// Package config provides configuration loading and management for the wish data service.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// The loading order ensures that system environment variables take precedence over .env files.
func init() {
	// In dev, load .env files if they exist; in production, rely only on environment variables
	// godotenv.Load() does not override already-set environment variables,
	// preserving OS env > .env precedence

	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// ChainDescriptor is the full network descriptor handed to a wallet when the
// target chain is unknown to it (the add-network flow).
type ChainDescriptor struct {
	ChainID        uint64 // Numeric chain id
	Name           string // Human-readable network name
	RPCURL         string // Public JSON-RPC endpoint
	CurrencySymbol string // Native currency ticker
	CurrencyName   string // Native currency name
	Decimals       int    // Native currency decimals
	ExplorerURL    string // Block explorer base URL
}

// Config captures environment-driven settings for the wish data service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // Optional PostgreSQL DSN for the media store
	MediaPath   string // LevelDB directory for the media and local wish stores
	NATSURL     string // NATS server URL

	// Chain settings
	Chain           ChainDescriptor // Target network descriptor
	ContractAddress string          // Deployed wish log contract
	KeystorePath    string          // Directory holding the wallet keystore
	KeystoreSecret  string          // Passphrase for the keystore account

	// Upload limits
	MaxMediaSize int64 // Maximum media size in bytes (default 100MB)

	// Legacy event scan bounds
	ScanBatchBlocks uint64 // Blocks per log query batch
	ScanMaxBlocks   uint64 // Total blocks scanned back from head

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort      = "8080"
	defaultEnv       = "dev"
	defaultMediaPath = "./data/media"

	// Monad Testnet
	defaultChainID     = 10143
	defaultChainName   = "Monad Testnet"
	defaultRPCURL      = "https://testnet-rpc.monad.xyz"
	defaultExplorerURL = "https://testnet.monadexplorer.com/"
	defaultContract    = "0x37800c9ba3068304039F241967f99176584F1485"

	defaultMaxMediaSize    = 100 * 1024 * 1024
	defaultScanBatchBlocks = 10_000
	defaultScanMaxBlocks   = 50_000
)

// Load reads environment variables and produces a Config suitable for wiring the service.
// It handles both required and optional configuration parameters, providing defaults where appropriate.
// Returns an error if required parameters are missing or invalid.
func Load() (Config, error) {
	cfg := Config{}

	if env, exists := os.LookupEnv("WISH_ENV"); exists {
		cfg.Env = env
	} else {
		cfg.Env = defaultEnv
	}

	if port, exists := os.LookupEnv("WISH_PORT"); exists {
		cfg.Port = port
	} else {
		cfg.Port = defaultPort
	}

	if dsn, exists := os.LookupEnv("WISH_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}

	if mediaPath, exists := os.LookupEnv("WISH_MEDIA_PATH"); exists {
		cfg.MediaPath = mediaPath
	} else {
		cfg.MediaPath = defaultMediaPath
	}

	if natsURL, exists := os.LookupEnv("WISH_NATS_URL"); exists {
		cfg.NATSURL = natsURL
	}

	cfg.Chain = ChainDescriptor{
		ChainID:        getUint("WISH_CHAIN_ID", defaultChainID),
		Name:           getEnv("WISH_CHAIN_NAME", defaultChainName),
		RPCURL:         getEnv("WISH_RPC_URL", defaultRPCURL),
		CurrencySymbol: getEnv("WISH_CURRENCY_SYMBOL", "MON"),
		CurrencyName:   getEnv("WISH_CURRENCY_NAME", "MON"),
		Decimals:       18,
		ExplorerURL:    getEnv("WISH_EXPLORER_URL", defaultExplorerURL),
	}

	cfg.ContractAddress = getEnv("WISH_CONTRACT_ADDRESS", defaultContract)

	if keystorePath, exists := os.LookupEnv("WISH_KEYSTORE_PATH"); exists {
		cfg.KeystorePath = keystorePath
	}

	if keystoreSecret, exists := os.LookupEnv("WISH_KEYSTORE_SECRET"); exists {
		cfg.KeystoreSecret = keystoreSecret
	}

	if maxMediaSize, exists := os.LookupEnv("WISH_MAX_MEDIA_SIZE"); exists {
		if size, err := strconv.ParseInt(maxMediaSize, 10, 64); err == nil {
			cfg.MaxMediaSize = size
		}
	} else {
		cfg.MaxMediaSize = defaultMaxMediaSize
	}

	cfg.ScanBatchBlocks = getUint("WISH_SCAN_BATCH_BLOCKS", defaultScanBatchBlocks)
	cfg.ScanMaxBlocks = getUint("WISH_SCAN_MAX_BLOCKS", defaultScanMaxBlocks)

	if corsOrigins, exists := os.LookupEnv("WISH_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.CORSAllowedOrigins {
			cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	// Validate required parameters
	if cfg.Chain.RPCURL == "" {
		return cfg, fmt.Errorf("WISH_RPC_URL is required")
	}

	if cfg.ContractAddress == "" {
		return cfg, fmt.Errorf("WISH_CONTRACT_ADDRESS is required")
	}

	if cfg.ScanBatchBlocks == 0 || cfg.ScanMaxBlocks == 0 {
		return cfg, fmt.Errorf("scan bounds must be positive")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// getUint retrieves an unsigned integer environment variable, returning a fallback
// if not set or unparseable
func getUint(key string, fallback uint64) uint64 {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
