package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/harun/kodok/internal/config"
	"github.com/harun/kodok/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot status",
	Long: `Show whether kodok is running. When the admin gateway is enabled the
live session, queue and question counts are shown too.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	pid, running := runningPID(pidFile)
	if !running {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}

	if !cfg.Gateway.Enabled {
		return nil
	}
	status, err := fetchStatus(cfg.Gateway)
	if err != nil {
		fmt.Fprintf(out, "Gateway: unavailable (%v)\n", err)
		return nil
	}
	printStatus(out, status)
	return nil
}

// fetchStatus asks the running bot's gateway for its live state.
func fetchStatus(gw config.GatewayConfig) (daemon.Status, error) {
	url := "http://" + net.JoinHostPort(gw.Host, strconv.Itoa(gw.Port)) + "/status"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return daemon.Status{}, err
	}
	if gw.Token != "" {
		req.Header.Set("Authorization", "Bearer "+gw.Token)
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return daemon.Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return daemon.Status{}, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var body struct {
		Status daemon.Status `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return daemon.Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return body.Status, nil
}

func printStatus(out io.Writer, status daemon.Status) {
	if status.Bot != "" {
		fmt.Fprintf(out, "Bot: @%s\n", status.Bot)
	}
	fmt.Fprintf(out, "Sessions: %d\n", status.Sessions)
	fmt.Fprintf(out, "Queue depth: %d\n", status.QueueDepth)
	fmt.Fprintf(out, "Pending questions: %d\n", status.PendingQuestions)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
