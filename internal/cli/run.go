package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/me/pmcore/internal/sched"
	"github.com/me/pmcore/internal/sim"
	"github.com/me/pmcore/internal/store"
	"github.com/me/pmcore/internal/workload"
	"github.com/me/pmcore/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		policy  string
		seed    uint64
		ticks   uint64
		noStore bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Run a workload against a fresh kernel",
		Long: `Boots a kernel, forks the processes the workload declares and drives the
timer until the workload's tick count is reached. The run and its trace
are recorded in the local store unless --no-store is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := workload.Load(args[0])
			if err != nil {
				return err
			}
			if policy != "" {
				w.Policy = model.PolicyName(policy)
			}
			if cmd.Flags().Changed("seed") {
				w.Seed = seed
			}
			if ticks > 0 {
				w.Ticks = ticks
			}

			var st store.Store
			if !noStore {
				sqlite, err := openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer sqlite.Close()
				st = sqlite
			}

			runner := sim.NewRunner(st, sched.NewRegistry(logger), logger)
			res, err := runner.Run(cmd.Context(), w)
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Override the workload's scheduling policy")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Override the workload's seed")
	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "Override the workload's tick count")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

// printResult writes a per-process table of a finished run.
func printResult(out io.Writer, res *sim.Result) {
	fmt.Fprintf(out, "Run:      %s\n", res.RunID)
	if res.Name != "" {
		fmt.Fprintf(out, "Workload: %s\n", res.Name)
	}
	fmt.Fprintf(out, "Policy:   %s\n", res.Policy)
	fmt.Fprintf(out, "Ticks:    %d (%d switches)\n\n", res.Ticks, res.Stats.Switches)

	pids := make([]int, 0, len(res.Names))
	for pid := range res.Names {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	final := make(map[int]model.ProcessInfo, len(res.Processes))
	for _, p := range res.Processes {
		final[p.PID] = p
	}

	fmt.Fprintf(out, "%-5s  %-16s  %-8s  %8s  %10s\n", "PID", "NAME", "STATE", "TICKS", "DISPATCHES")
	for _, pid := range pids {
		state := "reaped"
		if p, ok := final[pid]; ok {
			state = string(p.State)
		}
		fmt.Fprintf(out, "%-5d  %-16s  %-8s  %8d  %10d\n", pid, res.Names[pid], state, res.RunTicks[pid], res.Dispatches[pid])
	}

	if len(res.Events) > 0 {
		kinds := make([]string, 0, len(res.Events))
		for k := range res.Events {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		fmt.Fprintf(out, "\nEvents:")
		for _, k := range kinds {
			fmt.Fprintf(out, " %s=%d", k, res.Events[model.EventKind(k)])
		}
		fmt.Fprintln(out)
	}
}
