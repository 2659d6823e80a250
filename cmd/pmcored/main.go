package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/config"
	"github.com/me/pmcore/internal/kernel"
	"github.com/me/pmcore/internal/logging"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/sched"
	"github.com/me/pmcore/internal/server"
	"github.com/me/pmcore/internal/store"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/pkg/model"
)

func main() {
	cfg := config.DefaultConfig()
	policy := string(cfg.Policy)

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.pmcore/pmcore.db)")
	flag.StringVar(&policy, "policy", policy, "Scheduling policy (aging, priority, lottery)")
	flag.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for randomized policies")
	flag.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Wall-clock time per timer tick")
	flag.IntVar(&cfg.FlushEvery, "flush-every", cfg.FlushEvery, "Ticks between trace flushes")
	flag.IntVar(&cfg.TableSize, "table-size", cfg.TableSize, "Process table entries, idle included")
	flag.IntVar(&cfg.Frames, "frames", cfg.Frames, "Page frames")
	flag.StringVar(&cfg.ControlKey, "control-key", os.Getenv("PMCORE_CONTROL_KEY"), "Key required on control calls (or PMCORE_CONTROL_KEY env)")
	manual := flag.Bool("manual", false, "Do not run the clock; ticks come only from POST /api/v1/tick")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Policy = model.PolicyName(policy)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		var err error
		if dbPath, err = config.DefaultDBPath(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	pol, err := sched.NewRegistry(logger).Get(cfg.Policy, cfg.Seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Boot the kernel recording into a fresh run.
	runID := trace.NewRunID()
	rec := trace.NewRecorder(runID, st, logger)
	k, err := kernel.New(kernel.Config{
		TableSize: cfg.TableSize,
		Frames:    cfg.Frames,
		Policy:    pol,
	}, rec, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boot kernel: %v\n", err)
		os.Exit(1)
	}
	if err := st.CreateRun(context.Background(), &model.Run{
		ID:        runID,
		Name:      "pmcored",
		Policy:    pol.Name(),
		TableSize: cfg.TableSize,
		Quantum:   proc.Quantum,
		Seed:      cfg.Seed,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "create run: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg, k, logger, server.WithStore(st), server.WithRunID(runID))

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var loop *clock.Loop
	if !*manual {
		loop = clock.NewLoop(k, rec, clock.LoopConfig{
			Interval:   cfg.TickInterval,
			FlushEvery: cfg.FlushEvery,
		}, logger)
		go func() {
			if err := loop.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("clock stopped", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "run_id", runID, "policy", pol.Name(), "manual", *manual)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop the clock before the HTTP server.
	if loop != nil {
		if err := loop.Stop(); err != nil {
			logger.Error("clock stop error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}

	if err := rec.Flush(shutdownCtx); err != nil {
		logger.Error("final trace flush", "error", err)
	}
	if err := st.FinishRun(shutdownCtx, runID, k.Ticks(), summary(k)); err != nil {
		logger.Error("finish run", "error", err)
	}
	logger.Info("server stopped", "ticks", k.Ticks(), "events", rec.Total())
}

// summary keys dispatch counts by "pid:name" for processes still in the
// table and by pid alone for reaped ones.
func summary(k *kernel.Kernel) map[string]int {
	names := make(map[int]string)
	for _, p := range k.Processes() {
		names[p.PID] = p.Name
	}
	out := make(map[string]int)
	for pid, n := range k.Dispatches() {
		key := strconv.Itoa(pid)
		if name, ok := names[pid]; ok {
			key += ":" + name
		}
		out[key] = n
	}
	return out
}
