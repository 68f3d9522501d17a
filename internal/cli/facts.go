package cli

import (
	"context"
	"fmt"

	"github.com/harun/kodok/internal/config"
	"github.com/harun/kodok/internal/observability"
	"github.com/harun/kodok/pkg/facts"
	"github.com/spf13/cobra"
)

// openFacts opens the fact store named by the config and points the audit
// log at the configured file.
func openFacts(cmd *cobra.Command) (*facts.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	store, err := facts.Open(cfg.Facts.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func auditCLI(ctx context.Context, action string, metadata map[string]interface{}) {
	observability.RecordConfigAudit(ctx, action, "cli", metadata)
}
