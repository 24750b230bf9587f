package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BybitConfig    BybitConfig    `json:"bybit"`
	TradingConfig  TradingConfig  `json:"trading"`
	ScannerConfig  ScannerConfig  `json:"scanner"`
	PositionConfig PositionConfig `json:"position"`
	AdvisoryConfig AdvisoryConfig `json:"advisory"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	APIConfig      APIConfig      `json:"api"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// BybitConfig holds Bybit V5 API connection settings
type BybitConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	TestNet   bool   `json:"testnet"`
	Category  string `json:"category"` // "linear" for USDT perpetuals
}

// TradingConfig is the single capital schema for the whole process.
// All amounts are in quote currency (USDT).
type TradingConfig struct {
	TotalCapital     float64 `json:"total_capital"`
	OrderValue       float64 `json:"order_value"` // margin reserved per trade
	Leverage         int     `json:"leverage"`
	MaxOpenPositions int     `json:"max_open_positions"`
	MinConfidence    float64 `json:"min_confidence"`
	TargetProfit     float64 `json:"target_profit"` // informational, per trade
	DryRun           bool    `json:"dry_run"`
}

type ScannerConfig struct {
	ScanInterval      int      `json:"scan_interval"`       // seconds between scans
	ScanTimeout       int      `json:"scan_timeout"`        // seconds a single scan may run; 0 falls back to the interval
	BatchSize         int      `json:"batch_size"`          // symbols analyzed concurrently
	KlineInterval     string   `json:"kline_interval"`      // e.g. "15m"
	KlineLimit        int      `json:"kline_limit"`         // candles fetched per symbol
	MinTurnover       float64  `json:"min_turnover"`        // minimum 24h turnover in USDT
	MinVolatility     float64  `json:"min_volatility"`      // minimum abs 24h change %
	MinLeverage       float64  `json:"min_leverage"`        // required max leverage on the instrument
	MaxMinOrderValue  float64  `json:"max_min_order_value"` // reject if the exchange minimum order exceeds this
	MinPrice          float64  `json:"min_price"`
	MaxPrice          float64  `json:"max_price"`
	ExcludeSymbols    []string `json:"exclude_symbols"`
	CatalogRefreshMin int      `json:"catalog_refresh_min"` // minutes between instrument-info refreshes
}

type PositionConfig struct {
	MonitorInterval   int     `json:"monitor_interval"` // seconds between price checks
	MaxHoldSeconds    int     `json:"max_hold_seconds"` // forced close after this
	TakeProfitPercent float64 `json:"take_profit_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	CooldownMinutes   int     `json:"cooldown_minutes"`
	CloseTimeout      int     `json:"close_timeout"` // seconds to wait per position on shutdown
}

type AdvisoryConfig struct {
	Enabled bool    `json:"enabled"`
	BaseURL string  `json:"base_url"`
	APIKey  string  `json:"api_key"`
	Timeout int     `json:"timeout"` // seconds
	Weight  float64 `json:"weight"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

type APIConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	JWTSecret    string `json:"jwt_secret"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"` // bcrypt hash of the operator password
	TokenMinutes int    `json:"token_minutes"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// Load reads the config file (if present), applies env overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fileCfg, err := loadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = fileCfg
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in default configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		BybitConfig: BybitConfig{
			BaseURL:  "https://api.bybit.com",
			TestNet:  false,
			Category: "linear",
		},
		TradingConfig: TradingConfig{
			TotalCapital:     12.0,
			OrderValue:       5.0,
			Leverage:         10,
			MaxOpenPositions: 2,
			MinConfidence:    0.85,
			TargetProfit:     1.5,
			DryRun:           false,
		},
		ScannerConfig: ScannerConfig{
			ScanInterval:      30,
			ScanTimeout:       120,
			BatchSize:         20,
			KlineInterval:     "15m",
			KlineLimit:        100,
			MinTurnover:       5_000_000,
			MinVolatility:     2.0,
			MinLeverage:       10,
			MaxMinOrderValue:  5.0,
			MinPrice:          0.0001,
			MaxPrice:          1000,
			ExcludeSymbols:    []string{"BTCUSDT", "ETHUSDT"},
			CatalogRefreshMin: 5,
		},
		PositionConfig: PositionConfig{
			MonitorInterval:   5,
			MaxHoldSeconds:    300,
			TakeProfitPercent: 3.0,
			StopLossPercent:   1.5,
			CooldownMinutes:   15,
			CloseTimeout:      30,
		},
		AdvisoryConfig: AdvisoryConfig{
			Enabled: false,
			Timeout: 5,
			Weight:  0.2,
		},
		DatabaseConfig: DatabaseConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "trading_bot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		VaultConfig: VaultConfig{
			Enabled:    false,
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "trading-bot/bybit",
		},
		APIConfig: APIConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8080,
			Username:     "operator",
			TokenMinutes: 60,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(cfg *Config) {
	// Bybit config
	cfg.BybitConfig.APIKey = getEnvOrDefault("BYBIT_API_KEY", cfg.BybitConfig.APIKey)
	cfg.BybitConfig.SecretKey = getEnvOrDefault("BYBIT_SECRET_KEY", cfg.BybitConfig.SecretKey)
	cfg.BybitConfig.BaseURL = getEnvOrDefault("BYBIT_BASE_URL", cfg.BybitConfig.BaseURL)
	cfg.BybitConfig.TestNet = getEnvBoolOrDefault("BYBIT_TESTNET", cfg.BybitConfig.TestNet)
	if cfg.BybitConfig.TestNet && cfg.BybitConfig.BaseURL == "https://api.bybit.com" {
		cfg.BybitConfig.BaseURL = "https://api-testnet.bybit.com"
	}

	// Trading config
	cfg.TradingConfig.TotalCapital = getEnvFloatOrDefault("TRADING_TOTAL_CAPITAL", cfg.TradingConfig.TotalCapital)
	cfg.TradingConfig.OrderValue = getEnvFloatOrDefault("TRADING_ORDER_VALUE", cfg.TradingConfig.OrderValue)
	cfg.TradingConfig.Leverage = getEnvIntOrDefault("TRADING_LEVERAGE", cfg.TradingConfig.Leverage)
	cfg.TradingConfig.MaxOpenPositions = getEnvIntOrDefault("TRADING_MAX_OPEN_POSITIONS", cfg.TradingConfig.MaxOpenPositions)
	cfg.TradingConfig.MinConfidence = getEnvFloatOrDefault("TRADING_MIN_CONFIDENCE", cfg.TradingConfig.MinConfidence)
	cfg.TradingConfig.DryRun = getEnvBoolOrDefault("TRADING_DRY_RUN", cfg.TradingConfig.DryRun)

	// Scanner config
	cfg.ScannerConfig.ScanInterval = getEnvIntOrDefault("SCANNER_SCAN_INTERVAL", cfg.ScannerConfig.ScanInterval)
	cfg.ScannerConfig.ScanTimeout = getEnvIntOrDefault("SCANNER_SCAN_TIMEOUT", cfg.ScannerConfig.ScanTimeout)
	cfg.ScannerConfig.BatchSize = getEnvIntOrDefault("SCANNER_BATCH_SIZE", cfg.ScannerConfig.BatchSize)
	cfg.ScannerConfig.MinTurnover = getEnvFloatOrDefault("SCANNER_MIN_TURNOVER", cfg.ScannerConfig.MinTurnover)
	cfg.ScannerConfig.MinVolatility = getEnvFloatOrDefault("SCANNER_MIN_VOLATILITY", cfg.ScannerConfig.MinVolatility)
	if v := os.Getenv("SCANNER_EXCLUDE_SYMBOLS"); v != "" {
		cfg.ScannerConfig.ExcludeSymbols = strings.Split(v, ",")
	}

	// Position config
	cfg.PositionConfig.MonitorInterval = getEnvIntOrDefault("POSITION_MONITOR_INTERVAL", cfg.PositionConfig.MonitorInterval)
	cfg.PositionConfig.MaxHoldSeconds = getEnvIntOrDefault("POSITION_MAX_HOLD_SECONDS", cfg.PositionConfig.MaxHoldSeconds)
	cfg.PositionConfig.TakeProfitPercent = getEnvFloatOrDefault("POSITION_TAKE_PROFIT_PERCENT", cfg.PositionConfig.TakeProfitPercent)
	cfg.PositionConfig.StopLossPercent = getEnvFloatOrDefault("POSITION_STOP_LOSS_PERCENT", cfg.PositionConfig.StopLossPercent)
	cfg.PositionConfig.CooldownMinutes = getEnvIntOrDefault("POSITION_COOLDOWN_MINUTES", cfg.PositionConfig.CooldownMinutes)

	// Advisory config
	cfg.AdvisoryConfig.Enabled = getEnvBoolOrDefault("ADVISORY_ENABLED", cfg.AdvisoryConfig.Enabled)
	cfg.AdvisoryConfig.BaseURL = getEnvOrDefault("ADVISORY_BASE_URL", cfg.AdvisoryConfig.BaseURL)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	// API config
	cfg.APIConfig.Enabled = getEnvBoolOrDefault("API_ENABLED", cfg.APIConfig.Enabled)
	cfg.APIConfig.Port = getEnvIntOrDefault("API_PORT", cfg.APIConfig.Port)
	cfg.APIConfig.JWTSecret = getEnvOrDefault("API_JWT_SECRET", cfg.APIConfig.JWTSecret)
	cfg.APIConfig.PasswordHash = getEnvOrDefault("API_PASSWORD_HASH", cfg.APIConfig.PasswordHash)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
}

// Validate rejects configurations the engine cannot run safely with. The
// capital schema is checked as a whole so two half-correct settings cannot
// pass individually.
func (c *Config) Validate() error {
	t := c.TradingConfig
	if t.TotalCapital <= 0 {
		return fmt.Errorf("trading.total_capital must be positive, got %v", t.TotalCapital)
	}
	if t.OrderValue <= 0 {
		return fmt.Errorf("trading.order_value must be positive, got %v", t.OrderValue)
	}
	if t.MaxOpenPositions < 1 {
		return fmt.Errorf("trading.max_open_positions must be at least 1, got %d", t.MaxOpenPositions)
	}
	if t.OrderValue*float64(t.MaxOpenPositions) > t.TotalCapital {
		return fmt.Errorf("capital schema inconsistent: order_value %v x max_open_positions %d exceeds total_capital %v",
			t.OrderValue, t.MaxOpenPositions, t.TotalCapital)
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("trading.min_confidence must be in [0,1], got %v", t.MinConfidence)
	}
	if t.Leverage < 1 {
		return fmt.Errorf("trading.leverage must be at least 1, got %d", t.Leverage)
	}

	if c.ScannerConfig.BatchSize < 1 {
		return fmt.Errorf("scanner.batch_size must be at least 1, got %d", c.ScannerConfig.BatchSize)
	}
	if c.PositionConfig.TakeProfitPercent <= 0 || c.PositionConfig.StopLossPercent <= 0 {
		return fmt.Errorf("position take_profit_percent and stop_loss_percent must be positive")
	}
	if c.PositionConfig.MonitorInterval < 1 {
		return fmt.Errorf("position.monitor_interval must be at least 1 second, got %d", c.PositionConfig.MonitorInterval)
	}

	return nil
}

// CooldownWindow returns the cooldown as a duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.PositionConfig.CooldownMinutes) * time.Minute
}

// MaxHold returns the maximum position hold time as a duration.
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.PositionConfig.MaxHoldSeconds) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	cfg := defaultConfig()
	cfg.BybitConfig.APIKey = "your_api_key_here"
	cfg.BybitConfig.SecretKey = "your_secret_key_here"
	cfg.BybitConfig.TestNet = true

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
