package cli

import (
	"os"
	"testing"

	"github.com/harun/kodok/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "", "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "Stop a running kodok bot")
		assert.Contains(t, output, "timeout")
	})

	t.Run("not running removes stale pid file", func(t *testing.T) {
		path, dir := writeTestConfig(t, nil)
		pidFile := daemon.PIDFilePath(dir)
		require.NoError(t, os.WriteFile(pidFile, []byte("999999999"), 0o644))

		output, err := execute(t, "", "stop", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, output, "kodok is not running")
		assert.NoFileExists(t, pidFile)
	})
}
