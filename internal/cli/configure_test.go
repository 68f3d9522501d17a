package cli

import (
	"strings"
	"testing"

	"github.com/harun/kodok/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "interactive configuration wizard")
	})

	t.Run("saves answers", func(t *testing.T) {
		path, dir := writeTestConfig(t, nil)
		answers := strings.Join([]string{
			"123456:bot-token",
			"anthropic",
			"sk-ant-test-key",
			"",
			"-1001",
			"warn",
		}, "\n") + "\n"

		output, err := execute(t, answers, "configure", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "Configuration saved to: "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "123456:bot-token", cfg.Telegram.BotToken)
		assert.Equal(t, "sk-ant-test-key", cfg.AI.APIKey)
		assert.Equal(t, int64(-1001), cfg.QOTD.ChatID)
		assert.True(t, cfg.QOTD.Enabled)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, dir, cfg.DataDir)
		assert.False(t, cfg.Gateway.Enabled)
	})

	t.Run("input ends early", func(t *testing.T) {
		path, _ := writeTestConfig(t, nil)
		_, err := execute(t, "123456:bot-token\n", "configure", "--config", path)
		assert.Error(t, err)
	})
}
