package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/pmcore/pkg/model"
)

// pidArg parses a pid argument.
func pidArg(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid < 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}

func printProcs(out io.Writer, procs []model.ProcessInfo) {
	fmt.Fprintf(out, "%-5s  %-5s  %-16s  %-8s  %5s  %4s  %7s  %6s  %6s  %s\n",
		"PID", "PPID", "NAME", "STATE", "PRIO", "NICE", "COUNTER", "UTIME", "KTIME", "PENDING")
	for _, p := range procs {
		ppid := "-"
		if p.Father >= 0 {
			ppid = strconv.Itoa(p.Father)
		}
		fmt.Fprintf(out, "%-5d  %-5s  %-16s  %-8s  %5d  %4d  %7d  %6d  %6d  %s\n",
			p.PID, ppid, p.Name, p.State, p.Priority, p.Nice, p.Counter, p.UTime, p.KTime, strings.Join(p.Pending, ","))
	}
}

func newPsCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "Show the process table of a running pmcored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/procs/"
			if state != "" {
				path += "?state=" + strings.ToUpper(state)
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list processes: %w", err)
			}
			var procs []model.ProcessInfo
			if err := decodeData(resp, &procs); err != nil {
				return err
			}
			printProcs(cmd.OutOrStdout(), procs)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only processes in this state")
	return cmd
}

func newForkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fork <pid>",
		Short: "Fork a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := pidArg(args[0])
			if err != nil {
				return err
			}
			resp, err := client.Post("/api/v1/procs/"+strconv.Itoa(pid)+"/fork", nil)
			if err != nil {
				return fmt.Errorf("fork %d: %w", pid, err)
			}
			var child model.ProcessInfo
			if err := decodeData(resp, &child); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forked pid %d from %d\n", child.PID, pid)
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	var signal string

	cmd := &cobra.Command{
		Use:   "kill <pid>",
		Short: "Send a signal to a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := pidArg(args[0])
			if err != nil {
				return err
			}
			sig, err := model.ParseSignal(signal)
			if err != nil {
				return err
			}
			resp, err := client.Post("/api/v1/procs/"+strconv.Itoa(pid)+"/signal", map[string]string{"signal": sig.String()})
			if err != nil {
				return fmt.Errorf("signal %d: %w", pid, err)
			}
			var info model.ProcessInfo
			if err := decodeData(resp, &info); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to pid %d (%s)\n", sig, pid, info.State)
			return nil
		},
	}

	cmd.Flags().StringVarP(&signal, "signal", "s", "SIGTERM", "Signal name or number")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <pid>",
		Short: "Continue a stopped process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := pidArg(args[0])
			if err != nil {
				return err
			}
			resp, err := client.Post("/api/v1/procs/"+strconv.Itoa(pid)+"/resume", nil)
			if err != nil {
				return fmt.Errorf("resume %d: %w", pid, err)
			}
			var info model.ProcessInfo
			if err := decodeData(resp, &info); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pid %d is %s\n", pid, info.State)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/stop", nil)
			if err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			var data struct {
				Stopped int `json:"stopped"`
				Current int `json:"current"`
			}
			if err := decodeData(resp, &data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped pid %d; pid %d is running\n", data.Stopped, data.Current)
			return nil
		},
	}
}

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick [count]",
		Short: "Deliver timer ticks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid tick count %q", args[0])
				}
				count = n
			}
			resp, err := client.Post("/api/v1/tick", map[string]int{"count": count})
			if err != nil {
				return fmt.Errorf("tick: %w", err)
			}
			var st model.KernelStats
			if err := decodeData(resp, &st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tick %d: pid %d running, %d/%d slots in use\n", st.Ticks, st.Current, st.InUse, st.TableSize)
			return nil
		},
	}
}
