package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ValueRPCURL   string
	UtilityRPCURL string

	ValueGateway   string
	UtilityGateway string

	StakerAddress      string
	StakerPassphrase   string
	RedeemerAddress    string
	RedeemerPassphrase string
	ReserveAddress     string
	ReservePassphrase  string

	// Tokens lists configured branded tokens as SYMBOL=uuid pairs.
	Tokens []string

	ConfirmationDelay time.Duration
	EventBuffer       int

	ReceiptInterval time.Duration
	ReceiptAttempts int
	GasPrice        string
	GasLimit        uint64

	ValueFromBlock   uint64
	UtilityFromBlock uint64
	BatchSize        uint64

	ValueCheckpoint   string
	UtilityCheckpoint string
	CheckpointEnabled bool

	MaxRetries   int
	RetryBackoff time.Duration

	CacheDSN  string
	AuditDSN  string
	AuditPath string

	ListenAddr string
	LogLevel   string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRIDGED")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("confirmation-delay", 30*time.Second)
	v.SetDefault("event-buffer", 256)
	v.SetDefault("receipt-interval", 3*time.Second)
	v.SetDefault("receipt-attempts", 60)
	v.SetDefault("gas-price", "1000000000")
	v.SetDefault("gas-limit", uint64(9000000))
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("value-checkpoint", "./data/value_checkpoint.json")
	v.SetDefault("utility-checkpoint", "./data/utility_checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("audit-path", "./data/settlement_runs.jsonl")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ValueRPCURL:        v.GetString("value-rpc"),
		UtilityRPCURL:      v.GetString("utility-rpc"),
		ValueGateway:       v.GetString("value-gateway"),
		UtilityGateway:     v.GetString("utility-gateway"),
		StakerAddress:      v.GetString("staker"),
		StakerPassphrase:   v.GetString("staker-passphrase"),
		RedeemerAddress:    v.GetString("redeemer"),
		RedeemerPassphrase: v.GetString("redeemer-passphrase"),
		ReserveAddress:     v.GetString("reserve"),
		ReservePassphrase:  v.GetString("reserve-passphrase"),
		Tokens:             getStringSlice(v, "token"),
		ConfirmationDelay:  v.GetDuration("confirmation-delay"),
		EventBuffer:        v.GetInt("event-buffer"),
		ReceiptInterval:    v.GetDuration("receipt-interval"),
		ReceiptAttempts:    v.GetInt("receipt-attempts"),
		GasPrice:           v.GetString("gas-price"),
		GasLimit:           v.GetUint64("gas-limit"),
		ValueFromBlock:     v.GetUint64("value-from"),
		UtilityFromBlock:   v.GetUint64("utility-from"),
		BatchSize:          v.GetUint64("batch-size"),
		ValueCheckpoint:    v.GetString("value-checkpoint"),
		UtilityCheckpoint:  v.GetString("utility-checkpoint"),
		CheckpointEnabled:  v.GetBool("checkpoint-enabled"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		CacheDSN:           v.GetString("cache-dsn"),
		AuditDSN:           v.GetString("audit-dsn"),
		AuditPath:          v.GetString("audit-path"),
		ListenAddr:         v.GetString("listen"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}

// TokenBinding is one configured branded token.
type TokenBinding struct {
	Symbol string
	UUID   string
}

// ParseTokens splits SYMBOL=uuid pairs from the token list.
func ParseTokens(items []string) ([]TokenBinding, error) {
	out := make([]TokenBinding, 0, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("malformed token binding %q, want SYMBOL=uuid", item)
		}
		out = append(out, TokenBinding{
			Symbol: strings.ToUpper(strings.TrimSpace(parts[0])),
			UUID:   strings.TrimSpace(parts[1]),
		})
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
