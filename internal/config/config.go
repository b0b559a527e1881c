package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SepoliaChainID is the default network the client expects.
const SepoliaChainID = 11155111

type Config struct {
	// HTTP Server (worker)
	Port string

	// Ledger backend selection
	LedgerBackend  string
	MemorySeedFile string

	// Ethereum
	EthRPCURL       string
	ContractAddress string
	EthPrivateKey   string
	ExpectedChainID int64

	// Reader and writes
	ReaderConcurrency int
	TxWaitTimeout     time.Duration

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Price oracle
	PriceAPIURL   string
	PriceFiat     string
	PriceCacheTTL time.Duration

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	SnapshotInterval time.Duration

	// Logging
	LogFormat string
	LogLevel  string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("HTTP_PORT", "8081"),

		LedgerBackend:  getEnv("LEDGER_BACKEND", "memory"),
		MemorySeedFile: getEnv("MEMORY_SEED_FILE", ""),

		EthRPCURL:       getEnv("ETH_RPC_URL", ""),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
		EthPrivateKey:   getEnv("ETH_PRIVATE_KEY", ""),
		ExpectedChainID: getEnvInt64("EXPECTED_CHAIN_ID", SepoliaChainID),

		ReaderConcurrency: getEnvInt("READER_CONCURRENCY", 8),
		TxWaitTimeout:     getEnvDuration("TX_WAIT_TIMEOUT", 0),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/splitledger.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "splitledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		PriceAPIURL:   getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
		PriceFiat:     getEnv("PRICE_FIAT", "inr"),
		PriceCacheTTL: getEnvDuration("PRICE_CACHE_TTL", time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 5*time.Minute),

		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// AMQPEnabled reports whether an event bus is configured.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// SheetsEnabled reports whether the Google Sheets mirror is configured.
func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate ledger backend
	validBackends := []string{"eth", "memory"}
	if !slices.Contains(validBackends, c.LedgerBackend) {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.LedgerBackend, validBackends))
	}

	if c.LedgerBackend == "eth" {
		if c.EthRPCURL == "" {
			errors = append(errors, "ETH_RPC_URL is required when using eth backend")
		} else if parsedURL, err := url.Parse(c.EthRPCURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid RPC URL '%s': %v", c.EthRPCURL, err))
		} else if !slices.Contains([]string{"http", "https", "ws", "wss"}, parsedURL.Scheme) {
			errors = append(errors, fmt.Sprintf("invalid RPC URL scheme '%s': must be http, https, ws or wss", parsedURL.Scheme))
		}
		if c.ContractAddress == "" {
			errors = append(errors, "CONTRACT_ADDRESS is required when using eth backend")
		} else if !common.IsHexAddress(c.ContractAddress) {
			errors = append(errors, fmt.Sprintf("invalid contract address '%s'", c.ContractAddress))
		}
	}

	if c.EthPrivateKey != "" {
		key := strings.TrimPrefix(c.EthPrivateKey, "0x")
		if len(key) != 64 {
			errors = append(errors, "invalid private key: must be 32 bytes of hex")
		}
	}

	if c.ExpectedChainID < 0 {
		errors = append(errors, fmt.Sprintf("invalid chain id %d: must not be negative", c.ExpectedChainID))
	}

	// Validate reader and write settings
	if c.ReaderConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid reader concurrency %d: must be at least 1", c.ReaderConcurrency))
	} else if c.ReaderConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid reader concurrency %d: must be at most 64", c.ReaderConcurrency))
	}
	if c.TxWaitTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid tx wait timeout %v: must not be negative", c.TxWaitTimeout))
	}

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate price oracle
	if c.PriceAPIURL != "" {
		if _, err := url.Parse(c.PriceAPIURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid price API URL '%s': %v", c.PriceAPIURL, err))
		}
		if c.PriceFiat == "" {
			errors = append(errors, "PRICE_FIAT cannot be empty when PRICE_API_URL is provided")
		}
	}
	if c.PriceCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid price cache TTL %v: must not be negative", c.PriceCacheTTL))
	}

	// Validate Google Sheets mirror if enabled
	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets mirror")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate worker configuration
	if c.SnapshotInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid snapshot interval %v: must be at least 1 second", c.SnapshotInterval))
	} else if c.SnapshotInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid snapshot interval %v: must be at most 24 hours", c.SnapshotInterval))
	}

	// Validate logging
	validFormats := []string{"text", "json", "tint"}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
