// Package config holds the runtime configuration of the pmcore binaries.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/me/pmcore/internal/kernel"
	"github.com/me/pmcore/internal/logging"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// Config holds configuration for the monitor server and the CLI.
// Kernel geometry other than the table size and frame count stays
// compile-time constant.
type Config struct {
	Addr         string           // Listen address (default ":8090")
	LogLevel     string           // Log level: debug, info, warn, error
	LogFormat    string           // Log format: text, json
	DBPath       string           // SQLite database path (default ~/.pmcore/pmcore.db, ":memory:" for testing)
	Policy       model.PolicyName // Scheduling policy
	Seed         uint64           // Seed for randomized policies
	TickInterval time.Duration    // Wall-clock time per timer tick in server mode
	FlushEvery   int              // Ticks between trace flushes in server mode
	TableSize    int              // Process table entries, IDLE included
	Frames       int              // Page frames in the pool
	ControlKey   string           // Key required on mutating API calls; empty leaves them open
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8090",
		LogLevel:     "info",
		LogFormat:    logging.FormatText,
		Policy:       model.DefaultPolicy,
		TickInterval: 10 * time.Millisecond,
		FlushEvery:   100,
		TableSize:    proc.NRProc,
		Frames:       kernel.DefaultFrames,
	}
}

// DefaultDBPath returns ~/.pmcore/pmcore.db, creating the directory.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pmcore")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, "pmcore.db"), nil
}

// Validate checks the configuration for values the kernel would reject.
func (c Config) Validate() error {
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return err
	}
	if c.TableSize < 2 {
		return fmt.Errorf("table size %d: need room for idle and one process", c.TableSize)
	}
	if c.Frames < 1 {
		return fmt.Errorf("frames %d: must be positive", c.Frames)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval %s: must be positive", c.TickInterval)
	}
	if c.FlushEvery < 1 {
		return fmt.Errorf("flush every %d ticks: must be positive", c.FlushEvery)
	}
	return nil
}
