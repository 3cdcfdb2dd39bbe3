package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var refineCmd = &cobra.Command{
	Use:   "refine <work-item-id>",
	Short: "Decompose a work item into developer stories",
	Long: `Ask the planner to decompose a pending work item into a dependency
graph of developer stories. On success the item moves to refined and
its unblocked stories become ready.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

func init() {
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid work item id %q", args[0])
	}

	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.orch.Refine(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Printf("refined work item %d into %d stories (%d dependencies)\n",
		id, len(result.Stories), len(result.Dependencies))
	for i, s := range result.Stories {
		fmt.Printf("  [%d] %s\n", i, s.Title)
	}
	return nil
}
