package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/pmcore/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			runs, total, err := st.ListRuns(cmd.Context(), model.ListOptions{Limit: limit, Offset: offset, PID: -1})
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-16s  %-8s  %8s  %8s  %s\n", "ID", "NAME", "POLICY", "TICKS", "EVENTS", "STARTED")
			for _, r := range runs {
				fmt.Fprintf(out, "%-40s  %-16s  %-8s  %8d  %8d  %s\n",
					r.ID, r.Name, r.Policy, r.Ticks, r.Events, r.StartedAt.Format("2006-01-02 15:04:05"))
			}
			if offset+len(runs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		kind   string
		pid    int
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "events <run_id>",
		Short: "Show the trace of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			id := args[0]
			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return model.NewNotFoundError("Run", id)
			}

			opts := model.ListOptions{Limit: limit, Offset: offset, Kind: model.EventKind(kind), PID: pid}
			events, total, err := st.ListEvents(cmd.Context(), id, opts)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%6s  %8s  %-12s  %5s  %6s  %s\n", "SEQ", "TICK", "KIND", "PID", "TARGET", "DETAIL")
			for _, ev := range events {
				fmt.Fprintf(out, "%6d  %8d  %-12s  %5d  %6d  %s\n", ev.Seq, ev.Tick, ev.Kind, ev.PID, ev.Target, ev.Detail)
			}
			if offset+len(events) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(events), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this kind")
	cmd.Flags().IntVar(&pid, "pid", -1, "Only events involving this pid")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Events to skip")
	return cmd
}
