package config

import (
	"fmt"
	"strings"
	"time"

	"chainremit/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Recon    ReconConfig    `mapstructure:"recon"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"` // prefix for published events
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// RatesConfig configures the currency converter: settlement currency,
// supported display currencies, source endpoints, and cache TTL.
type RatesConfig struct {
	SettlementCurrency string        `mapstructure:"settlement_currency"`
	Currencies         []string      `mapstructure:"currencies"`
	PrimaryURL         string        `mapstructure:"primary_url"`
	FallbackURL        string        `mapstructure:"fallback_url"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
}

// VaultConfig configures the card vault key. Either a 64-char hex key, or a
// passphrase+salt from which the key is derived with Argon2id.
type VaultConfig struct {
	Key        string `mapstructure:"key"`
	Passphrase string `mapstructure:"passphrase"`
	Salt       string `mapstructure:"salt"`
}

// FeeEntryConfig is one network's settlement-fee parameters.
type FeeEntryConfig struct {
	RatePercent float64 `mapstructure:"rate_percent"`
	MinFee      int64   `mapstructure:"min_fee"`
	MaxFee      int64   `mapstructure:"max_fee"`
}

func (e FeeEntryConfig) entry() domain.FeeScheduleEntry {
	return domain.FeeScheduleEntry{
		RatePercent: decimal.NewFromFloat(e.RatePercent),
		MinFee:      e.MinFee,
		MaxFee:      e.MaxFee,
	}
}

// FeesConfig holds the per-network fee schedule and the fixed card-addition
// surcharge (minor units).
type FeesConfig struct {
	Stellar         FeeEntryConfig `mapstructure:"stellar"`
	Ethereum        FeeEntryConfig `mapstructure:"ethereum"`
	Polygon         FeeEntryConfig `mapstructure:"polygon"`
	CardAdditionFee int64          `mapstructure:"card_addition_fee"`
}

// Schedule builds and validates the domain fee schedule.
func (f FeesConfig) Schedule() (domain.FeeSchedule, error) {
	s := domain.FeeSchedule{
		Stellar:  f.Stellar.entry(),
		Ethereum: f.Ethereum.entry(),
		Polygon:  f.Polygon.entry(),
	}
	if err := s.Validate(); err != nil {
		return domain.FeeSchedule{}, fmt.Errorf("fee schedule: %w", err)
	}
	return s, nil
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// GatewayConfig bounds the external-call timeouts. A timeout is treated as
// an unknown outcome, never as success or failure.
type GatewayConfig struct {
	FundingTimeout    time.Duration `mapstructure:"funding_timeout"`
	SettlementTimeout time.Duration `mapstructure:"settlement_timeout"`
	PayoutTimeout     time.Duration `mapstructure:"payout_timeout"`
	StellarURL        string        `mapstructure:"stellar_url"`
	EthereumURL       string        `mapstructure:"ethereum_url"`
	PolygonURL        string        `mapstructure:"polygon_url"`
	PayoutURL         string        `mapstructure:"payout_url"`
	BankVerifyURL     string        `mapstructure:"bank_verify_url"`
}

// ReconConfig sets how often flagged transactions are re-examined.
type ReconConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CR_ (ChainRemit).
// Nested keys use underscore: CR_DATABASE_HOST, CR_VAULT_KEY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "chainremit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "chainremit.events")
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("rates.settlement_currency", "USDC")
	v.SetDefault("rates.currencies", []string{"USD", "EUR", "GBP", "NGN"})
	v.SetDefault("rates.primary_url", "")
	v.SetDefault("rates.fallback_url", "")
	v.SetDefault("rates.cache_ttl", "5m")
	v.SetDefault("vault.key", "")
	v.SetDefault("vault.passphrase", "")
	v.SetDefault("vault.salt", "")
	v.SetDefault("fees.stellar.rate_percent", 0.1)
	v.SetDefault("fees.stellar.min_fee", 10)
	v.SetDefault("fees.stellar.max_fee", 500)
	v.SetDefault("fees.ethereum.rate_percent", 1.5)
	v.SetDefault("fees.ethereum.min_fee", 300)
	v.SetDefault("fees.ethereum.max_fee", 10000)
	v.SetDefault("fees.polygon.rate_percent", 0.5)
	v.SetDefault("fees.polygon.min_fee", 50)
	v.SetDefault("fees.polygon.max_fee", 2000)
	v.SetDefault("fees.card_addition_fee", 100)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "chainremit")
	v.SetDefault("gateway.funding_timeout", "15s")
	v.SetDefault("gateway.settlement_timeout", "30s")
	v.SetDefault("gateway.payout_timeout", "20s")
	v.SetDefault("recon.interval", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CR_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// The first supported currency doubles as the card-surcharge currency,
	// so an empty list is a startup error, not a panic later.
	if len(cfg.Rates.Currencies) == 0 {
		return nil, fmt.Errorf("rates.currencies must list at least one currency")
	}

	return &cfg, nil
}
