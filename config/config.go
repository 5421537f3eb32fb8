// Package config loads process-level bootstrap settings for the VoltageEMS
// core — RTDB connection, durable store DSN, and the routing/channel
// tunables — from flags, environment variables, and an optional config
// file, following the precedence Viper already gives us: flags > env >
// file > default.
//
// Parsing of channel/product/instance topology (CSV/YAML loaders) is an
// external collaborator's job; this package only covers the handful of
// settings the core process itself needs to start.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys used to bind flags and environment variables to Viper.
const (
	KeyRTDBURL        = "rtdb.url"
	KeyRTDBBackend    = "rtdb.backend" // "memory" or "redis"
	KeyDurableDSN     = "durable.dsn"
	KeyMaxC2CDepth    = "routing.max_c2c_depth"
	KeyPollInterval   = "channel.poll_interval"
	KeyReconnectMin   = "channel.reconnect_min_backoff"
	KeyReconnectMax   = "channel.reconnect_max_backoff"
	KeyCommandTimeout = "dispatcher.command_timeout"
	KeyTraceHistory   = "rule.trace_history_size"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
)

// Load reads configuration from the environment into a Core struct, with
// VOLTAGECORE_ as the automatic-env prefix (VOLTAGECORE_RTDB_URL maps to
// rtdb.url, following Viper's SetEnvKeyReplacer convention below).
func Load(v *viper.Viper) (*Core, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix("voltagecore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Core{
		RTDBURL:             v.GetString(KeyRTDBURL),
		RTDBBackend:         v.GetString(KeyRTDBBackend),
		DurableDSN:          v.GetString(KeyDurableDSN),
		MaxC2CDepth:         v.GetInt(KeyMaxC2CDepth),
		PollInterval:        v.GetDuration(KeyPollInterval),
		ReconnectMinBackoff: v.GetDuration(KeyReconnectMin),
		ReconnectMaxBackoff: v.GetDuration(KeyReconnectMax),
		CommandTimeout:      v.GetDuration(KeyCommandTimeout),
		TraceHistorySize:    v.GetInt(KeyTraceHistory),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFormat:           v.GetString(KeyLogFormat),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRTDBURL, "redis://localhost:6379/0")
	v.SetDefault(KeyRTDBBackend, "memory")
	v.SetDefault(KeyDurableDSN, "")
	v.SetDefault(KeyMaxC2CDepth, 2)
	v.SetDefault(KeyPollInterval, time.Second)
	v.SetDefault(KeyReconnectMin, 500*time.Millisecond)
	v.SetDefault(KeyReconnectMax, 30*time.Second)
	v.SetDefault(KeyCommandTimeout, 5*time.Second)
	v.SetDefault(KeyTraceHistory, 1000)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// Core is the process-level configuration for a voltagecore instance.
type Core struct {
	RTDBURL     string
	RTDBBackend string
	DurableDSN  string

	MaxC2CDepth int

	PollInterval        time.Duration
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration
	CommandTimeout      time.Duration

	TraceHistorySize int

	LogLevel  string
	LogFormat string
}

func (c *Core) validate() error {
	switch c.RTDBBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: rtdb.backend must be \"memory\" or \"redis\", got %q", c.RTDBBackend)
	}
	if c.RTDBBackend == "redis" && c.RTDBURL == "" {
		return fmt.Errorf("config: rtdb.url is required when rtdb.backend is \"redis\"")
	}
	if c.MaxC2CDepth < 0 {
		return fmt.Errorf("config: routing.max_c2c_depth must be >= 0, got %d", c.MaxC2CDepth)
	}
	if c.TraceHistorySize <= 0 {
		return fmt.Errorf("config: rule.trace_history_size must be positive, got %d", c.TraceHistorySize)
	}
	return nil
}
