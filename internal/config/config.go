// Package config loads process configuration from flags, environment
// variables, an optional config file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "WATCHPARTY"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type VoiceConfig struct {
	Url       string        `mapstructure:"url"`
	ApiKey    string        `mapstructure:"api_key"`
	ApiSecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a voice provider is configured.
func (v VoiceConfig) Enabled() bool {
	return v.Url != "" && v.ApiKey != "" && v.ApiSecret != ""
}

type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

type Config struct {
	ServerAddr     string      `mapstructure:"addr"`
	DatabaseDSN    string      `mapstructure:"dsn"`
	Store          string      `mapstructure:"store"`
	Migrate        bool        `mapstructure:"migrate"`
	AllowedOrigins []string    `mapstructure:"allowed_origins"`
	LogLevel       string      `mapstructure:"log_level"`
	LogFormat      string      `mapstructure:"log_format"`
	RedisURL       string      `mapstructure:"redis_url"`
	AmqpURL        string      `mapstructure:"amqp_url"`
	AmqpExchange   string      `mapstructure:"amqp_exchange"`
	Voice          VoiceConfig `mapstructure:"voice"`
	Chat           ChatConfig  `mapstructure:"chat"`
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("watchparty", pflag.ContinueOnError)

	flags.String("config", "", "path to a yaml config file")
	flags.String("env-file", ".env", "path to a dotenv file, ignored when missing")
	flags.String("addr", "localhost:8000", "server address")
	flags.String("dsn", "", "postgres connection string")
	flags.String("store", StorePostgres, "party store: postgres or memory")
	flags.Bool("migrate", true, "apply database migrations on startup")
	flags.StringSlice("allowed_origins", nil, "comma-separated list of allowed origins for CORS and websockets")
	flags.String("log_level", "info", "log level")
	flags.String("log_format", LogFormatConsole, "log format: console or json")
	flags.String("redis_url", "", "redis url for cross-process broadcast, empty for process-local")
	flags.String("amqp_url", "", "amqp url for lifecycle events, empty to disable")
	flags.String("amqp_exchange", "watchparty.events", "amqp topic exchange for lifecycle events")
	flags.String("voice.url", "", "voice provider url")
	flags.String("voice.api_key", "", "voice provider api key")
	flags.String("voice.api_secret", "", "voice provider api secret")
	flags.Duration("voice.token_ttl", 6*time.Hour, "voice token lifetime")
	flags.Duration("voice.timeout", 5*time.Second, "voice provider request timeout")
	flags.Int("chat.history_limit", 50, "number of chat messages returned as history")

	return flags
}

// Load resolves the configuration from args, in increasing precedence:
// defaults, config file, environment, flags.
func Load(args []string) (*Config, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	envFile, _ := flags.GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	if !slices.Contains([]string{LogFormatConsole, LogFormatJSON}, c.LogFormat) {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	set := 0
	for _, s := range []string{c.Voice.Url, c.Voice.ApiKey, c.Voice.ApiSecret} {
		if s != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("voice url, api key and api secret must be set together")
	}
	if c.Voice.Enabled() && c.Voice.TokenTTL <= 0 {
		return fmt.Errorf("voice token ttl must be positive")
	}

	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive")
	}

	return nil
}
