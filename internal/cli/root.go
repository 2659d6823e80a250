// Package cli implements the pmcore command line: offline workload runs and
// run history against the local store, and process control against a
// running pmcored.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/pmcore/internal/config"
	"github.com/me/pmcore/internal/logging"
	"github.com/me/pmcore/internal/store"
)

var (
	flagServer     string
	flagControlKey string
	flagDB         string
	flagDebug      bool
	flagLogLevel   string
	flagLogFormat  string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking PMCORE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("PMCORE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8090"
}

// NewRootCmd creates the root cobra command for the pmcore CLI.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "pmcore",
		Short: "pmcore: process scheduler and lifecycle simulator",
		Long:  "pmcore runs scheduling workloads against a simulated kernel and controls a running pmcored.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			if err := logging.ValidateFormat(flagLogFormat); err != nil {
				return err
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, flagControlKey, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "pmcored URL (or PMCORE_SERVER env)")
	root.PersistentFlags().StringVar(&flagControlKey, "control-key", os.Getenv("PMCORE_CONTROL_KEY"), "Key for control calls (or PMCORE_CONTROL_KEY env)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default ~/.pmcore/pmcore.db)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", defaults.LogFormat, "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newEventsCmd(),
		newPoliciesCmd(),
		newPsCmd(),
		newForkCmd(),
		newKillCmd(),
		newResumeCmd(),
		newStopCmd(),
		newTickCmd(),
	)

	return root
}

// openStore opens and migrates the local run store.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	path := flagDB
	if path == "" {
		var err error
		if path, err = config.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}
