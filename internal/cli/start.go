package cli

import (
	"fmt"

	"github.com/harun/kodok/internal/daemon"
	"github.com/harun/kodok/internal/logger"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kodok bot",
	Long: `Start the kodok bot in the foreground.
The bot polls Telegram until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if pid, running := runningPID(pidFile); running {
		return fmt.Errorf("kodok is already running (pid %d)", pid)
	}

	log, err := logger.New(logger.Config{
		Level:         cfg.Logging.Level,
		File:          cfg.Logging.File,
		Console:       true,
		ConsoleWriter: cmd.ErrOrStderr(),
		Pretty:        cfg.Logging.Pretty,
		Redaction:     cfg.Logging.Redaction,
		MaxSize:       cfg.Logging.MaxSize,
		MaxAge:        cfg.Logging.MaxAge,
		Compress:      cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	d.Wait()
	return nil
}

// runningPID returns the PID recorded in pidFile if that process is alive.
func runningPID(pidFile string) (int, bool) {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return 0, false
	}
	return pid, daemon.ProcessAlive(pid)
}
