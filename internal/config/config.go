package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Popup launcher kinds
const (
	LauncherHub  = "hub"
	LauncherExec = "exec"
	LauncherLog  = "log"
)

// Fee ledger kinds
const (
	LedgerGateway = "gateway"
	LedgerEVM     = "evm"
)

// Sealing providers
const (
	KMSLocal  = "local"
	KMSAWS    = "aws-kms"
	KMSVault  = "vault"
	maxScrypt = 22
)

// minTicketSecret is the shortest accepted HMAC secret for approval tickets
const minTicketSecret = 32

// Config holds process-level configuration
type Config struct {
	// Server
	Port int

	// Logging
	LogFormat string
	LogLevel  string

	// Database; empty keeps every repository in memory
	PostgresDSN string

	// Identity stamped on transactions and response envelopes
	AppName    string
	AppVersion string

	// Approval surface
	PopupURL           string
	PopupToken         string
	PopupTokenHash     string
	PopupLauncher      string
	PopupLaunchCommand string
	GateTimeout        time.Duration
	TicketSecret       string

	// Page relay credential
	RelayToken     string
	RelayTokenHash string

	// Vault session
	VaultIdleTimeout time.Duration

	// Keyfile sealing
	KMSProvider             string
	KMSLocalMasterKey       string
	KMSAWSKeyID             string
	KMSAWSRegion            string
	KMSVaultAddress         string
	KMSVaultToken           string
	KMSVaultTransitKey      string
	KeyfileScryptWorkFactor int

	// Fee ledger
	LedgerKind     string
	LedgerHost     string
	LedgerPort     int
	LedgerProtocol string
	LedgerRPCURL   string
	LedgerTimeout  time.Duration

	// AutoApproveCeiling is in whole units of the ledger's denomination
	AutoApproveCeiling string

	// Page-side rate limit; RateLimitRPS <= 0 disables it
	RateLimitRPS   float64
	RateLimitBurst int

	// BlocklistFile seeds the block list at start
	BlocklistFile string
}

// Load loads configuration from environment variables. A .env file (or
// the file named by ENV_FILE) is read first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	cfg := &Config{
		Port:                    getEnvInt("PORT", 8080),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		LogLevel:                getEnv("LOG_LEVEL", "INFO"),
		PostgresDSN:             getEnv("POSTGRES_DSN", ""),
		AppName:                 getEnv("APP_NAME", "Better Wallet"),
		AppVersion:              getEnv("APP_VERSION", "0.1.0"),
		PopupURL:                getEnv("POPUP_URL", "http://localhost:5173/popup"),
		PopupToken:              getEnv("POPUP_TOKEN", ""),
		PopupTokenHash:          getEnv("POPUP_TOKEN_HASH", ""),
		PopupLauncher:           getEnv("POPUP_LAUNCHER", LauncherHub),
		PopupLaunchCommand:      getEnv("POPUP_LAUNCH_COMMAND", ""),
		RelayToken:              getEnv("RELAY_TOKEN", ""),
		RelayTokenHash:          getEnv("RELAY_TOKEN_HASH", ""),
		GateTimeout:             getEnvDuration("GATE_TIMEOUT", 5*time.Minute),
		TicketSecret:            getEnv("TICKET_SECRET", ""),
		VaultIdleTimeout:        getEnvDuration("VAULT_IDLE_TIMEOUT", 15*time.Minute),
		KMSProvider:             getEnv("KMS_PROVIDER", KMSLocal),
		KMSLocalMasterKey:       getEnv("KMS_LOCAL_MASTER_KEY", ""),
		KMSAWSKeyID:             getEnv("KMS_AWS_KEY_ID", ""),
		KMSAWSRegion:            getEnv("KMS_AWS_REGION", ""),
		KMSVaultAddress:         getEnv("KMS_VAULT_ADDRESS", ""),
		KMSVaultToken:           getEnv("KMS_VAULT_TOKEN", ""),
		KMSVaultTransitKey:      getEnv("KMS_VAULT_TRANSIT_KEY", ""),
		KeyfileScryptWorkFactor: getEnvInt("KEYFILE_SCRYPT_WORK_FACTOR", 0),
		LedgerKind:              getEnv("LEDGER_KIND", LedgerGateway),
		LedgerHost:              getEnv("LEDGER_HOST", "arweave.net"),
		LedgerPort:              getEnvInt("LEDGER_PORT", 443),
		LedgerProtocol:          getEnv("LEDGER_PROTOCOL", "https"),
		LedgerRPCURL:            getEnv("LEDGER_RPC_URL", ""),
		LedgerTimeout:           getEnvDuration("LEDGER_TIMEOUT", 10*time.Second),
		AutoApproveCeiling:      getEnv("AUTO_APPROVE_CEILING", "1"),
		RateLimitRPS:            getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:          getEnvInt("RATE_LIMIT_BURST", 10),
		BlocklistFile:           getEnv("BLOCKLIST_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'text', got: %s", c.LogFormat)
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("LOG_LEVEL must be DEBUG, INFO, WARN or ERROR, got: %s", c.LogLevel)
	}

	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("APP_NAME is required")
	}

	if err := c.validatePopup(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	if err := c.validateKMS(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}

	if c.VaultIdleTimeout <= 0 {
		return fmt.Errorf("VAULT_IDLE_TIMEOUT must be positive")
	}

	ceiling, ok := new(big.Rat).SetString(strings.TrimSpace(c.AutoApproveCeiling))
	if !ok || ceiling.Sign() < 0 {
		return fmt.Errorf("AUTO_APPROVE_CEILING must be a non-negative decimal amount, got: %q", c.AutoApproveCeiling)
	}

	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when RATE_LIMIT_RPS is set")
	}

	return nil
}

func (c *Config) validatePopup() error {
	u, err := url.Parse(c.PopupURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("POPUP_URL must be an http(s) URL, got: %q", c.PopupURL)
	}

	if c.PopupToken == "" && c.PopupTokenHash == "" {
		return fmt.Errorf("POPUP_TOKEN or POPUP_TOKEN_HASH is required")
	}

	switch c.PopupLauncher {
	case LauncherHub, LauncherLog:
	case LauncherExec:
		if strings.TrimSpace(c.PopupLaunchCommand) == "" {
			return fmt.Errorf("POPUP_LAUNCH_COMMAND is required when POPUP_LAUNCHER is 'exec'")
		}
	default:
		return fmt.Errorf("POPUP_LAUNCHER must be 'hub', 'exec' or 'log', got: %s", c.PopupLauncher)
	}

	if c.GateTimeout <= 0 {
		return fmt.Errorf("GATE_TIMEOUT must be positive")
	}
	if len(c.TicketSecret) < minTicketSecret {
		return fmt.Errorf("TICKET_SECRET must be at least %d bytes", minTicketSecret)
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.RelayToken == "" && c.RelayTokenHash == "" {
		return fmt.Errorf("RELAY_TOKEN or RELAY_TOKEN_HASH is required")
	}
	if c.RelayToken != "" && c.RelayToken == c.PopupToken {
		return fmt.Errorf("RELAY_TOKEN must differ from POPUP_TOKEN")
	}
	return nil
}

func (c *Config) validateKMS() error {
	switch c.KMSProvider {
	case KMSLocal:
		if c.KMSLocalMasterKey == "" {
			return fmt.Errorf("KMS_LOCAL_MASTER_KEY is required when KMS_PROVIDER is 'local'")
		}
	case KMSAWS:
		if c.KMSAWSKeyID == "" {
			return fmt.Errorf("KMS_AWS_KEY_ID is required when KMS_PROVIDER is 'aws-kms'")
		}
	case KMSVault:
		if c.KMSVaultAddress == "" || c.KMSVaultToken == "" || c.KMSVaultTransitKey == "" {
			return fmt.Errorf("KMS_VAULT_ADDRESS, KMS_VAULT_TOKEN and KMS_VAULT_TRANSIT_KEY are required when KMS_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("KMS_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.KMSProvider)
	}

	if c.KeyfileScryptWorkFactor < 0 || c.KeyfileScryptWorkFactor > maxScrypt {
		return fmt.Errorf("KEYFILE_SCRYPT_WORK_FACTOR must be between 0 and %d, got: %d", maxScrypt, c.KeyfileScryptWorkFactor)
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.LedgerKind {
	case LedgerGateway:
		if c.LedgerHost == "" {
			return fmt.Errorf("LEDGER_HOST is required when LEDGER_KIND is 'gateway'")
		}
		if c.LedgerProtocol != "http" && c.LedgerProtocol != "https" {
			return fmt.Errorf("LEDGER_PROTOCOL must be 'http' or 'https', got: %s", c.LedgerProtocol)
		}
		if c.LedgerPort < 1 || c.LedgerPort > 65535 {
			return fmt.Errorf("LEDGER_PORT must be between 1 and 65535, got: %d", c.LedgerPort)
		}
	case LedgerEVM:
		if c.LedgerRPCURL == "" {
			return fmt.Errorf("LEDGER_RPC_URL is required when LEDGER_KIND is 'evm'")
		}
	default:
		return fmt.Errorf("LEDGER_KIND must be 'gateway' or 'evm', got: %s", c.LedgerKind)
	}

	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration gets a duration environment variable ("90s", "5m") with
// a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
