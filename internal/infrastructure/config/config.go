package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Chain       ChainConfig      `mapstructure:"chain"`
	Webhook     WebhookConfig    `mapstructure:"webhook"`
	Activation  ActivationConfig `mapstructure:"activation"`
	Withdrawal  WithdrawalConfig `mapstructure:"withdrawal"`
	Rank        RankConfig       `mapstructure:"rank"`
	Scheduler   SchedulerConfig  `mapstructure:"scheduler"`
	Security    SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TokenConfig describes one token the platform maps to USD values
type TokenConfig struct {
	Symbol          string `mapstructure:"symbol"`
	ContractAddress string `mapstructure:"contract_address"`
	Decimals        int    `mapstructure:"decimals"`
	Native          bool   `mapstructure:"native"`
	Stablecoin      bool   `mapstructure:"stablecoin"`
	Blockable       bool   `mapstructure:"blockable"`
}

type ChainConfig struct {
	ChainID      int    `mapstructure:"chain_id"`
	NativeSymbol string `mapstructure:"native_symbol"`
	// GatewayURL is the base URL of the chain gateway sidecar that signs
	// and broadcasts transactions
	GatewayURL      string `mapstructure:"gateway_url"`
	GatewayAPIKey   string `mapstructure:"gateway_api_key"`
	TreasuryAddress string `mapstructure:"treasury_address"`
	// TreasuryKey is the hex signing key of the treasury wallet, supplied
	// via environment in production
	TreasuryKey    string                 `mapstructure:"treasury_key"`
	Confirmations  int                    `mapstructure:"confirmations"`
	GasTopupAmount string                 `mapstructure:"gas_topup_amount"`
	MinGasBalance  string                 `mapstructure:"min_gas_balance"`
	Tokens         map[string]TokenConfig `mapstructure:"tokens"`
}

type WebhookConfig struct {
	StreamSecret        string `mapstructure:"stream_secret"`
	SkipSignatureVerify bool   `mapstructure:"skip_signature_verify"`
	ProbeLimitPerWindow int    `mapstructure:"probe_limit_per_window"`
	ProbeWindowSeconds  int    `mapstructure:"probe_window_seconds"`
}

type ActivationConfig struct {
	// Minimum USD-equivalent first confirmed deposit that flips an
	// account from PENDING_ACTIVATION to ACTIVE
	ThresholdUSD string `mapstructure:"threshold_usd"`
}

type WithdrawalConfig struct {
	MinAmount       string            `mapstructure:"min_amount"`
	DailyCapByRank  map[string]string `mapstructure:"daily_cap_by_rank"`
	BaseFeeByRank   map[string]string `mapstructure:"base_fee_by_rank"`
	ProgressiveFees []string          `mapstructure:"progressive_fees"`
	LoyalDays       int               `mapstructure:"loyal_days"`
	VeteranDays     int               `mapstructure:"veteran_days"`
	LoyalDiscount   string            `mapstructure:"loyal_discount"`
	VeteranDiscount string            `mapstructure:"veteran_discount"`
}

// RankTier holds maintenance/promotion thresholds for one rank
type RankTier struct {
	MinActiveDirects int    `mapstructure:"min_active_directs"`
	MinMonthlyVolume string `mapstructure:"min_monthly_volume"`
	MinBlocked       string `mapstructure:"min_blocked"`
}

type RankConfig struct {
	Tiers map[string]RankTier `mapstructure:"tiers"`
	// Minimum blocked balance a direct must hold to count as active
	ActiveDirectMinBlocked string `mapstructure:"active_direct_min_blocked"`
}

type SchedulerConfig struct {
	CommissionCron  string `mapstructure:"commission_cron"`
	MaintenanceCron string `mapstructure:"maintenance_cron"`
	GraceCron       string `mapstructure:"grace_cron"`
	ManualWaitSecs  int    `mapstructure:"manual_wait_secs"`
}

type SecurityConfig struct {
	KeyEncryptionSecret string `mapstructure:"key_encryption_secret"`
}

// Load reads configuration from ./configs/config.yaml with env overrides
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("chain.chain_id", 137)
	viper.SetDefault("chain.gateway_url", "http://localhost:8545")
	viper.SetDefault("chain.native_symbol", "POL")
	viper.SetDefault("chain.confirmations", 1)
	viper.SetDefault("chain.gas_topup_amount", "0.05")
	viper.SetDefault("chain.min_gas_balance", "0.01")

	viper.SetDefault("webhook.skip_signature_verify", false)
	viper.SetDefault("webhook.probe_limit_per_window", 30)
	viper.SetDefault("webhook.probe_window_seconds", 60)

	viper.SetDefault("activation.threshold_usd", "50")

	viper.SetDefault("withdrawal.min_amount", "10")
	viper.SetDefault("withdrawal.daily_cap_by_rank", map[string]string{
		"RECRUIT": "500", "BRONZE": "2000", "SILVER": "5000", "GOLD": "20000",
	})
	viper.SetDefault("withdrawal.base_fee_by_rank", map[string]string{
		"RECRUIT": "5", "BRONZE": "4", "SILVER": "3", "GOLD": "2",
	})
	viper.SetDefault("withdrawal.progressive_fees", []string{"0", "0.5", "1", "2"})
	viper.SetDefault("withdrawal.loyal_days", 30)
	viper.SetDefault("withdrawal.veteran_days", 90)
	viper.SetDefault("withdrawal.loyal_discount", "0.5")
	viper.SetDefault("withdrawal.veteran_discount", "1")

	viper.SetDefault("rank.active_direct_min_blocked", "100")
	viper.SetDefault("rank.tiers", map[string]interface{}{
		"RECRUIT": map[string]interface{}{"min_active_directs": 0, "min_monthly_volume": "0", "min_blocked": "0"},
		"BRONZE":  map[string]interface{}{"min_active_directs": 3, "min_monthly_volume": "1000", "min_blocked": "250"},
		"SILVER":  map[string]interface{}{"min_active_directs": 5, "min_monthly_volume": "5000", "min_blocked": "1000"},
		"GOLD":    map[string]interface{}{"min_active_directs": 10, "min_monthly_volume": "25000", "min_blocked": "5000"},
	})

	viper.SetDefault("scheduler.commission_cron", "5 0 * * *")
	viper.SetDefault("scheduler.maintenance_cron", "0 0 1 * *")
	viper.SetDefault("scheduler.grace_cron", "0 12 * * *")
	viper.SetDefault("scheduler.manual_wait_secs", 60)
}

func validate(cfg *Config) error {
	if cfg.Environment == "production" {
		if cfg.Webhook.StreamSecret == "" {
			return fmt.Errorf("webhook.stream_secret is required in production")
		}
		if cfg.Security.KeyEncryptionSecret == "" {
			return fmt.Errorf("security.key_encryption_secret is required in production")
		}
		if cfg.Chain.TreasuryAddress == "" {
			return fmt.Errorf("chain.treasury_address is required in production")
		}
		if cfg.Chain.TreasuryKey == "" {
			return fmt.Errorf("chain.treasury_key is required in production")
		}
	}
	if _, err := decimal.NewFromString(cfg.Activation.ThresholdUSD); err != nil {
		return fmt.Errorf("activation.threshold_usd is not a decimal: %w", err)
	}
	if _, err := decimal.NewFromString(cfg.Withdrawal.MinAmount); err != nil {
		return fmt.Errorf("withdrawal.min_amount is not a decimal: %w", err)
	}
	return nil
}

// MustDecimal parses a config decimal that was validated at load time
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid decimal in config: %q", s))
	}
	return d
}
