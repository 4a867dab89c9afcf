// Package config loads service configuration from flags, environment and an optional file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentattest/attest-core/pkg/authority"
	"github.com/agentattest/attest-core/pkg/ledger"
)

// EnvPrefix prefixes every environment variable, e.g. AGENTATTEST_LEDGER_BASE_URL.
const EnvPrefix = "AGENTATTEST"

// LegacySeedEnv is honored for the authority seed.
const LegacySeedEnv = "AMADEUS_AUTHORITY_SEED"

// Configuration keys.
const (
	KeyServerAddress       = "server.address"
	KeyServerRPCAddress    = "server.rpc-address"
	KeyAuthoritySeed       = "authority.seed"
	KeyAuthorityName       = "authority.name"
	KeyAllowEphemeral      = "authority.allow-ephemeral"
	KeyLedgerBaseURL       = "ledger.base-url"
	KeyLedgerTimeout       = "ledger.timeout"
	KeyLedgerInsecureTLS   = "ledger.insecure-tls"
	KeyLedgerSymbol        = "ledger.symbol"
	KeyLedgerNetworkName   = "ledger.network-name"
	KeyAnchorTimeout       = "anchor.timeout"
	KeyAnchorPollInterval  = "anchor.poll-interval"
	KeyStoreDriver         = "store.driver"
	KeyStorePath           = "store.path"
	KeyStoreRedisAddrs     = "store.redis-addrs"
	KeyStoreRedisPassword  = "store.redis-password"
	KeyStoreMongoURI       = "store.mongo-uri"
	KeyStoreMongoDatabase  = "store.mongo-database"
	KeyArchiveS3Bucket     = "archive.s3-bucket"
	KeyArchiveS3Region     = "archive.s3-region"
	KeyArchiveS3Endpoint   = "archive.s3-endpoint"
	KeyMaxTransactionValue = "policy.max-transaction-value"
	KeyLogLevel            = "log.level"
	KeyLogFormat           = "log.format"
)

// Store drivers.
const (
	StoreMemory  = "memory"
	StoreSQLite  = "sqlite"
	StoreRedis   = "redis"
	StoreMongoDB = "mongodb"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Authority AuthorityConfig
	Ledger    LedgerConfig
	Anchor    AnchorConfig
	Store     StoreConfig
	Archive   ArchiveConfig
	Policy    PolicyConfig
	Log       LogConfig
}

// ServerConfig configures listeners.
type ServerConfig struct {
	Address    string
	RPCAddress string
}

// AuthorityConfig configures the issuing authority.
type AuthorityConfig struct {
	Seed           string
	Name           string
	AllowEphemeral bool
}

// LedgerConfig configures the ledger network client.
type LedgerConfig struct {
	BaseURL     string
	Timeout     time.Duration
	InsecureTLS bool
	Symbol      string
	NetworkName string
}

// AnchorConfig bounds submissions.
type AnchorConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver        string
	Path          string
	RedisAddrs    []string
	RedisPassword string
	MongoURI      string
	MongoDatabase string
}

// ArchiveConfig configures the optional S3 payload archive.
type ArchiveConfig struct {
	S3Bucket   string
	S3Region   string
	S3Endpoint string
}

// PolicyConfig holds credential policy values.
type PolicyConfig struct {
	MaxTransactionValue float64
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// NewViper returns a viper instance with defaults and environment bindings.
// If file is not empty it is read as well.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyAuthoritySeed, EnvPrefix+"_AUTHORITY_SEED", LegacySeedEnv); err != nil {
		return nil, fmt.Errorf("failed to bind seed env: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// SetDefaults registers default values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerAddress, ":8080")
	v.SetDefault(KeyServerRPCAddress, "")
	v.SetDefault(KeyAuthoritySeed, authority.DefaultSeed)
	v.SetDefault(KeyAuthorityName, authority.DefaultName)
	v.SetDefault(KeyAllowEphemeral, false)
	v.SetDefault(KeyLedgerBaseURL, ledger.DefaultBaseURL)
	v.SetDefault(KeyLedgerTimeout, ledger.DefaultTimeout)
	v.SetDefault(KeyLedgerInsecureTLS, false)
	v.SetDefault(KeyLedgerSymbol, ledger.DefaultSymbol)
	v.SetDefault(KeyLedgerNetworkName, "Amadeus Testnet")
	v.SetDefault(KeyAnchorTimeout, 60*time.Second)
	v.SetDefault(KeyAnchorPollInterval, time.Second)
	v.SetDefault(KeyStoreDriver, StoreMemory)
	v.SetDefault(KeyStorePath, "agentattest.db")
	v.SetDefault(KeyStoreRedisAddrs, []string{})
	v.SetDefault(KeyStoreRedisPassword, "")
	v.SetDefault(KeyStoreMongoURI, "")
	v.SetDefault(KeyStoreMongoDatabase, "agentattest")
	v.SetDefault(KeyArchiveS3Bucket, "")
	v.SetDefault(KeyArchiveS3Region, "")
	v.SetDefault(KeyArchiveS3Endpoint, "")
	v.SetDefault(KeyMaxTransactionValue, 10000.0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
}

// Load reads a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:    v.GetString(KeyServerAddress),
			RPCAddress: v.GetString(KeyServerRPCAddress),
		},
		Authority: AuthorityConfig{
			Seed:           v.GetString(KeyAuthoritySeed),
			Name:           v.GetString(KeyAuthorityName),
			AllowEphemeral: v.GetBool(KeyAllowEphemeral),
		},
		Ledger: LedgerConfig{
			BaseURL:     v.GetString(KeyLedgerBaseURL),
			Timeout:     v.GetDuration(KeyLedgerTimeout),
			InsecureTLS: v.GetBool(KeyLedgerInsecureTLS),
			Symbol:      v.GetString(KeyLedgerSymbol),
			NetworkName: v.GetString(KeyLedgerNetworkName),
		},
		Anchor: AnchorConfig{
			Timeout:      v.GetDuration(KeyAnchorTimeout),
			PollInterval: v.GetDuration(KeyAnchorPollInterval),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(v.GetString(KeyStoreDriver)),
			Path:          v.GetString(KeyStorePath),
			RedisAddrs:    splitList(v.GetStringSlice(KeyStoreRedisAddrs)),
			RedisPassword: v.GetString(KeyStoreRedisPassword),
			MongoURI:      v.GetString(KeyStoreMongoURI),
			MongoDatabase: v.GetString(KeyStoreMongoDatabase),
		},
		Archive: ArchiveConfig{
			S3Bucket:   v.GetString(KeyArchiveS3Bucket),
			S3Region:   v.GetString(KeyArchiveS3Region),
			S3Endpoint: v.GetString(KeyArchiveS3Endpoint),
		},
		Policy: PolicyConfig{
			MaxTransactionValue: v.GetFloat64(KeyMaxTransactionValue),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Anchor.Timeout <= 0 {
		errs = append(errs, errors.New("anchor.timeout must be positive"))
	}
	if c.Anchor.PollInterval <= 0 {
		errs = append(errs, errors.New("anchor.poll-interval must be positive"))
	}
	if c.Policy.MaxTransactionValue < 0 {
		errs = append(errs, errors.New("policy.max-transaction-value must not be negative"))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case StoreRedis:
		if len(c.Store.RedisAddrs) == 0 {
			errs = append(errs, errors.New("store.redis-addrs is required for redis"))
		}
	case StoreMongoDB:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo-uri is required for mongodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

// splitList accepts both repeated values and a single comma separated value.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
