package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	SignalLoopback = "loopback"
	SignalAMQP     = "amqp"

	SurfaceBrowser = "browser"
	SurfaceCommand = "command"
)

type Config struct {
	// Ledger API
	LedgerAPIURL   string
	LedgerAPIToken string
	LedgerAppID    string
	HTTPTimeout    time.Duration

	// Linking
	SignalMode      string
	CallbackAddr    string
	Surface         string
	BrowserCommand  string
	PollInterval    time.Duration
	LinkDeadline    time.Duration
	RollbackOrphans bool
	SyncAfterLink   bool

	// Database
	SQLiteDBPath     string
	HistoryRetention time.Duration

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPSyncQueue   string
	AMQPSignalQueue string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
	MetricsAddr   string

	AccountCacheTTL time.Duration
	LogLevel        string
}

func Load() *Config {
	browserCommand := getEnv("LINK_BROWSER_COMMAND", "")
	surface := SurfaceBrowser
	if strings.TrimSpace(browserCommand) != "" {
		surface = SurfaceCommand
	}

	cfg := &Config{
		LedgerAPIURL:   getEnv("LEDGER_API_URL", "http://localhost:8100/api"),
		LedgerAPIToken: getEnv("LEDGER_API_TOKEN", ""),
		LedgerAppID:    getEnv("LEDGER_APP_ID", "ledger-api"),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		SignalMode:      getEnv("LINK_SIGNAL_MODE", SignalLoopback),
		CallbackAddr:    getEnv("LINK_CALLBACK_ADDR", "127.0.0.1:0"),
		Surface:         getEnv("LINK_SURFACE", surface),
		BrowserCommand:  browserCommand,
		PollInterval:    getEnvDuration("LINK_POLL_INTERVAL", time.Second),
		LinkDeadline:    getEnvDuration("LINK_DEADLINE", 5*time.Minute),
		RollbackOrphans: getEnvBool("LINK_ROLLBACK_ORPHANS", true),
		SyncAfterLink:   getEnvBool("LINK_SYNC_AFTER", true),

		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		HistoryRetention: getEnvDuration("HISTORY_RETENTION", 90*24*time.Hour),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPSyncQueue:   getEnv("AMQP_SYNC_QUEUE", "sync_requests"),
		AMQPSignalQueue: getEnv("AMQP_SIGNAL_QUEUE", "link_signals"),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", time.Hour),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9464"),

		AccountCacheTTL: getEnvDuration("ACCOUNT_CACHE_TTL", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Ledger API
	if parsedURL, err := url.Parse(c.LedgerAPIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid ledger API URL '%s': %v", c.LedgerAPIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid ledger API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid ledger API URL '%s': missing host", c.LedgerAPIURL))
	}

	if c.HTTPTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be positive", c.HTTPTimeout))
	}

	// Signal source
	switch c.SignalMode {
	case SignalLoopback:
		if c.CallbackAddr == "" {
			errors = append(errors, "callback address cannot be empty when using loopback signals")
		}
	case SignalAMQP:
		if c.AMQPURL == "" {
			errors = append(errors, "AMQP URL is required when using amqp signals")
		}
		if c.LedgerAppID == "" {
			errors = append(errors, "ledger app id is required when using amqp signals")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid signal mode '%s': must be one of %v", c.SignalMode, []string{SignalLoopback, SignalAMQP}))
	}

	// Surface
	switch c.Surface {
	case SurfaceBrowser:
	case SurfaceCommand:
		if strings.TrimSpace(c.BrowserCommand) == "" {
			errors = append(errors, "browser command is required when using the command surface")
		} else if !strings.Contains(c.BrowserCommand, "{url}") {
			errors = append(errors, "browser command must contain the {url} placeholder")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid surface '%s': must be one of %v", c.Surface, []string{SurfaceBrowser, SurfaceCommand}))
	}

	if c.PollInterval < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 100ms", c.PollInterval))
	}
	if c.LinkDeadline < c.PollInterval {
		errors = append(errors, fmt.Sprintf("invalid link deadline %v: must be at least the poll interval", c.LinkDeadline))
	} else if c.LinkDeadline > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid link deadline %v: must be at most 1 hour", c.LinkDeadline))
	}

	// SQLite
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.HistoryRetention < 0 {
		errors = append(errors, fmt.Sprintf("invalid history retention %v: must not be negative", c.HistoryRetention))
	}

	// AMQP
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPSyncQueue == "" {
			errors = append(errors, "AMQP sync queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPSignalQueue == "" {
			errors = append(errors, "AMQP signal queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Worker
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 minute", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.AccountCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid account cache TTL %v: must not be negative", c.AccountCacheTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// APIOrigin returns scheme://host of the Ledger API, the only origin allowed
// to post completion signals.
func (c *Config) APIOrigin() string {
	u, err := url.Parse(c.LedgerAPIURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
