package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/pmcore/internal/sched"
	"github.com/me/pmcore/pkg/model"
)

var policyHelp = map[model.PolicyName]string{
	model.PolicyAging:    "waiting credit only; ties keep table order",
	model.PolicyPriority: "priority, then nice, then credit; credit wins past the starvation bound",
	model.PolicyLottery:  "weighted random draw, reproducible for a seed",
}

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List scheduling policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range sched.NewRegistry(logger).Names() {
				marker := " "
				if name == model.DefaultPolicy {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-10s %s\n", marker, name, policyHelp[name])
			}
			return nil
		},
	}
}
