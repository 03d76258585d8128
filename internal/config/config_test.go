package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDSN = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--dsn", testDSN})
	require.NoError(t, err)

	assert.Equal(t, "localhost:8000", cfg.ServerAddr)
	assert.Equal(t, testDSN, cfg.DatabaseDSN)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, LogFormatConsole, cfg.LogFormat)
	assert.Equal(t, "watchparty.events", cfg.AmqpExchange)
	assert.Equal(t, 6*time.Hour, cfg.Voice.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.Voice.Timeout)
	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.False(t, cfg.Voice.Enabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("WATCHPARTY_ADDR", ":9000")
	t.Setenv("WATCHPARTY_STORE", "memory")
	t.Setenv("WATCHPARTY_MIGRATE", "false")
	t.Setenv("WATCHPARTY_ALLOWED_ORIGINS", "http://localhost:3000,https://watch.example.com")
	t.Setenv("WATCHPARTY_VOICE_URL", "wss://voice.example.com")
	t.Setenv("WATCHPARTY_VOICE_API_KEY", "key")
	t.Setenv("WATCHPARTY_VOICE_API_SECRET", "secret")
	t.Setenv("WATCHPARTY_VOICE_TOKEN_TTL", "1h")
	t.Setenv("WATCHPARTY_CHAT_HISTORY_LIMIT", "20")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.False(t, cfg.Migrate)
	assert.Equal(t, []string{"http://localhost:3000", "https://watch.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Voice.Enabled())
	assert.Equal(t, time.Hour, cfg.Voice.TokenTTL)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("WATCHPARTY_ADDR", ":9000")

	cfg, err := Load([]string{"--store", "memory", "--addr", ":9100"})
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ServerAddr)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WATCHPARTY_STORE=memory\nWATCHPARTY_LOG_FORMAT=json\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("WATCHPARTY_STORE")
		os.Unsetenv("WATCHPARTY_LOG_FORMAT")
	})

	cfg, err := Load([]string{"--env-file", path})
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchparty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: memory\nvoice:\n  timeout: 2s\n"), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 2*time.Second, cfg.Voice.Timeout)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServerAddr:  "localhost:8000",
			DatabaseDSN: testDSN,
			Store:       StorePostgres,
			LogFormat:   LogFormatConsole,
			Voice:       VoiceConfig{TokenTTL: time.Hour},
			Chat:        ChatConfig{HistoryLimit: 50},
		}
	}

	tcases := []struct {
		name   string
		modify func(*Config)
		err    bool
	}{
		{name: "valid config", modify: func(*Config) {}, err: false},
		{name: "empty address", modify: func(c *Config) { c.ServerAddr = "" }, err: true},
		{name: "empty DSN", modify: func(c *Config) { c.DatabaseDSN = "" }, err: true},
		{name: "memory store without DSN", modify: func(c *Config) { c.Store = StoreMemory; c.DatabaseDSN = "" }, err: false},
		{name: "unknown store", modify: func(c *Config) { c.Store = "sqlite" }, err: true},
		{name: "unknown log format", modify: func(c *Config) { c.LogFormat = "xml" }, err: true},
		{name: "partial voice settings", modify: func(c *Config) { c.Voice.Url = "wss://voice.example.com" }, err: true},
		{
			name: "complete voice settings",
			modify: func(c *Config) {
				c.Voice.Url, c.Voice.ApiKey, c.Voice.ApiSecret = "wss://voice.example.com", "key", "secret"
			},
			err: false,
		},
		{name: "zero history limit", modify: func(c *Config) { c.Chat.HistoryLimit = 0 }, err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(&cfg)

			err := cfg.Validate()
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)
		})
	}
}
