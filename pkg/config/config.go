// Package config loads the agent's runtime configuration from the
// environment. Every key is read as VOICEWIRE_<KEY>.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type StoreDriver string

const (
	StoreDriverDynamo   StoreDriver = "dynamo"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverMemory   StoreDriver = "memory"
)

type Config struct {
	Addr string

	AWSRegion string
	ModelID   string

	// Event bus.
	BusEndpoint  string
	BusNamespace string

	// Store backend.
	StoreDriver   StoreDriver
	PostgresDSN   string
	SessionsTable string
	MessagesTable string

	// Fallback wait after subscribing, for buses without a subscribe ack.
	SettleDelay time.Duration

	ToolTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	LogJSON bool
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("voicewire")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("model_id", "")
	v.SetDefault("bus_endpoint", "")
	v.SetDefault("bus_namespace", "voicewire")
	v.SetDefault("store_driver", string(StoreDriverMemory))
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("sessions_table", "sessions")
	v.SetDefault("messages_table", "messages")
	v.SetDefault("settle_delay", time.Second)
	v.SetDefault("tool_timeout", 30*time.Second)
	v.SetDefault("shutdown_grace_period", 30*time.Second)
	v.SetDefault("log_json", false)

	cfg := Config{
		Addr:                v.GetString("addr"),
		AWSRegion:           v.GetString("aws_region"),
		ModelID:             v.GetString("model_id"),
		BusEndpoint:         v.GetString("bus_endpoint"),
		BusNamespace:        v.GetString("bus_namespace"),
		StoreDriver:         StoreDriver(v.GetString("store_driver")),
		PostgresDSN:         v.GetString("postgres_dsn"),
		SessionsTable:       v.GetString("sessions_table"),
		MessagesTable:       v.GetString("messages_table"),
		SettleDelay:         v.GetDuration("settle_delay"),
		ToolTimeout:         v.GetDuration("tool_timeout"),
		ShutdownGracePeriod: v.GetDuration("shutdown_grace_period"),
		LogJSON:             v.GetBool("log_json"),
	}

	switch cfg.StoreDriver {
	case StoreDriverDynamo, StoreDriverPostgres, StoreDriverMemory:
	default:
		return Config{}, errors.Errorf("VOICEWIRE_STORE_DRIVER must be one of dynamo|postgres|memory, got %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.PostgresDSN == "" {
		return Config{}, errors.New("VOICEWIRE_POSTGRES_DSN is required with the postgres store driver")
	}
	if cfg.Addr == "" {
		return Config{}, errors.New("VOICEWIRE_ADDR must not be empty")
	}
	if cfg.BusNamespace == "" {
		return Config{}, errors.New("VOICEWIRE_BUS_NAMESPACE must not be empty")
	}
	if cfg.SettleDelay < 0 {
		return Config{}, errors.New("VOICEWIRE_SETTLE_DELAY must be >= 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, errors.New("VOICEWIRE_TOOL_TIMEOUT must be > 0")
	}
	return cfg, nil
}
