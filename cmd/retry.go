package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var retryStory bool

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Reset an errored work item or story",
	Long: `Reset an errored work item back to pending for re-refinement, or,
with --story, reset an errored story so the scheduler can run it
again. Story retries keep the agent session and resume it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().BoolVar(&retryStory, "story", false, "treat the id as a story id")
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	if retryStory {
		story, err := rt.orch.RetryStory(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("story %d reset to %s\n", story.ID, story.Status)
		return nil
	}

	item, err := rt.orch.RetryWorkItem(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Printf("work item %d reset to %s\n", item.ID, item.Status)
	return nil
}
