package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, 5, cfg.Session.HistoryLimit)
		assert.Equal(t, 1500, cfg.Dispatch.Cooldown)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"telegram": {
				"bot_token": "123:abc",
				"allowlist": [42]
			},
			"ai": {
				"provider": "openai",
				"api_key": "sk-test-key"
			},
			"session": {
				"idle_timeout": 60
			},
			"qotd": {
				"enabled": true,
				"chat_id": -100123
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
		assert.Equal(t, []int64{42}, cfg.Telegram.Allowlist)
		assert.Equal(t, "openai", cfg.AI.Provider)
		assert.Equal(t, "sk-test-key", cfg.AI.APIKey)
		assert.Equal(t, 60, cfg.Session.IdleTimeout)
		assert.Equal(t, 5, cfg.Session.SweepInterval, "unset keys keep their defaults")
		assert.True(t, cfg.QOTD.Enabled)
		assert.Equal(t, int64(-100123), cfg.QOTD.ChatID)
		assert.Equal(t, "0 10 * * *", cfg.QOTD.Schedule)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{"data_dir": "` + filepath.ToSlash(tmpDir) + `"}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "kodok.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "audit.log"), cfg.Logging.AuditFile)
		assert.Equal(t, filepath.Join(tmpDir, "facts.db"), cfg.Facts.DBPath)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"ai": {"api_key": "from-file"}}`), 0644)
		require.NoError(t, err)

		t.Setenv("KODOK_AI_API_KEY", "sk-ant-from-env")
		t.Setenv("KODOK_TELEGRAM_BOT_TOKEN", "999:env")

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-from-env", cfg.AI.APIKey)
		assert.Equal(t, "999:env", cfg.Telegram.BotToken)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.AI.APIKey = "sk-ant-test-key"
		cfg.Telegram.BotToken = "123:token"
		cfg.QOTD.ChatID = 77

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		loader2 := NewLoader(configPath)
		loadedCfg, err := loader2.Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-test-key", loadedCfg.AI.APIKey)
		assert.Equal(t, "123:token", loadedCfg.Telegram.BotToken)
		assert.Equal(t, int64(77), loadedCfg.QOTD.ChatID)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		loader := NewLoader(configPath)
		err := loader.Save(DefaultConfig())

		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, filepath.Join(".kodok", "kodok.json"))
	})
}
