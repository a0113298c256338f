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
	RPCURL            string
	Contract          string
	PgDSN             string
	MQTTBroker        string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	ListenAddr        string
	AuthSecret        string
	FromBlock         uint64
	ToBlock           uint64
	Confirmations     uint64
	BatchSize         uint64
	PollInterval      time.Duration
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LockShards        int
	LockWait          time.Duration
	SingleClaim       bool
	ExpireInterval    time.Duration
	StateName         string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PACKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("confirmations", uint64(3))
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("lock-shards", 256)
	v.SetDefault("lock-wait", 3*time.Second)
	v.SetDefault("single-claim", true)
	v.SetDefault("expire-interval", 30*time.Second)
	v.SetDefault("state-name", "packetsync")
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
		RPCURL:            v.GetString("rpc"),
		Contract:          v.GetString("contract"),
		PgDSN:             v.GetString("pg-dsn"),
		MQTTBroker:        v.GetString("mqtt-broker"),
		MQTTClientID:      v.GetString("mqtt-client-id"),
		MQTTUsername:      v.GetString("mqtt-username"),
		MQTTPassword:      v.GetString("mqtt-password"),
		ListenAddr:        v.GetString("listen"),
		AuthSecret:        v.GetString("auth-secret"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Confirmations:     v.GetUint64("confirmations"),
		BatchSize:         v.GetUint64("batch-size"),
		PollInterval:      v.GetDuration("poll-interval"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LockShards:        v.GetInt("lock-shards"),
		LockWait:          v.GetDuration("lock-wait"),
		SingleClaim:       v.GetBool("single-claim"),
		ExpireInterval:    v.GetDuration("expire-interval"),
		StateName:         v.GetString("state-name"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}
