package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Redis (message bus)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Vault (secret blob: network alias, RPC project id, mnemonic,
	// trusted withdrawal address). When disabled, secrets come from env.
	VaultEnabled bool
	VaultAddr    string
	VaultToken   string
	VaultPath    string

	// Chain
	RPCURLTemplate string // network alias and project id are substituted in
	GasStationURL  string
	ChainID        int64

	// Ops API
	APIPort         int
	APIKey          string
	CORSAllowOrigin string

	// Notifications / metrics
	WebhookURL  string
	BotName     string
	MetricsAddr string

	// Timing (seconds)
	RefreshIntervalSeconds int
	SignalIntervalSeconds  int
	SettleIntervalSeconds  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "ethmatic"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Redis
		RedisAddr:     envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		// Vault
		VaultEnabled: envBool("VAULT_ENABLED", false),
		VaultAddr:    envStr("VAULT_ADDR", "http://localhost:8200"),
		VaultToken:   envStr("VAULT_TOKEN", ""),
		VaultPath:    envStr("VAULT_SECRET_PATH", "secret/data/ethmatic/config"),

		// Chain
		RPCURLTemplate: envStr("RPC_URL_TEMPLATE", "https://%s.infura.io/v3/%s"),
		GasStationURL:  envStr("GAS_STATION_URL", "https://gasstation-mainnet.matic.network/v2"),
		ChainID:        int64(envInt("CHAIN_ID", 137)),

		// Ops API
		APIPort:         envInt("API_PORT", 3001),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		// Notifications / metrics
		WebhookURL:  envStr("WEBHOOK_URL", ""),
		BotName:     envStr("BOT_NAME", "EthmaticFleet"),
		MetricsAddr: envStr("METRICS_ADDR", ":9091"),

		// Timing
		RefreshIntervalSeconds: envInt("REFRESH_INTERVAL_SECONDS", 60),
		SignalIntervalSeconds:  envInt("SIGNAL_INTERVAL_SECONDS", 60),
		SettleIntervalSeconds:  envInt("SETTLE_INTERVAL_SECONDS", 30),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.DBUser == "" {
		errs = append(errs, "DB_USER is required")
	}
	if c.VaultEnabled && c.VaultToken == "" {
		errs = append(errs, "VAULT_TOKEN is required when VAULT_ENABLED=true")
	}
	if !c.VaultEnabled && os.Getenv("MNEMONIC") == "" {
		errs = append(errs, "MNEMONIC is required when Vault is disabled")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set — operational alerts disabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Ethmatic Agent Fleet Configuration ===")
	fmt.Printf("Chain ID: %d\n", c.ChainID)
	fmt.Printf("Gas station: %s\n", c.GasStationURL)
	fmt.Printf("Database: %s:%d/%s\n", c.DBHost, c.DBPort, c.DBName)
	fmt.Printf("Redis: %s (db %d)\n", c.RedisAddr, c.RedisDB)
	fmt.Printf("Secrets: %s\n", boolLabel(c.VaultEnabled, "vault "+c.VaultAddr, "env fallback"))
	fmt.Println("--------------------------------------")
	fmt.Printf("Refresh interval: %ds\n", c.RefreshIntervalSeconds)
	fmt.Printf("Signal interval:  %ds\n", c.SignalIntervalSeconds)
	fmt.Printf("Settle interval:  %ds\n", c.SettleIntervalSeconds)
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
