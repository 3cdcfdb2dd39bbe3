package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var implementCmd = &cobra.Command{
	Use:   "implement [story-id [base-branch]]",
	Short: "Run the coding agent on a story",
	Long: `Claim a ready story and run the coding agent against it in an
isolated worktree. Without arguments the scheduler picks the next
runnable story; the optional base branch overrides repo.default_branch
for this run.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runImplement,
}

func init() {
	rootCmd.AddCommand(implementCmd)
}

func runImplement(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	if err := rt.recoverOrphans(ctx); err != nil {
		return err
	}

	var storyID int64
	var baseBranch string
	if len(args) >= 1 {
		storyID, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid story id %q", args[0])
		}
		if len(args) == 2 {
			baseBranch = args[1]
		}
	} else {
		story, err := rt.orch.SelectNext(ctx)
		if err != nil {
			return err
		}
		if story == nil {
			fmt.Println("no story is ready")
			return nil
		}
		storyID = story.ID
	}

	result, err := rt.orch.ImplementOn(ctx, storyID, baseBranch)
	if err != nil {
		if result != nil && result.Run != nil && result.Run.Stderr != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), result.Run.Stderr)
		}
		return err
	}

	fmt.Printf("story %d completed on branch %s (%.1fs)\n",
		result.Story.ID, result.Branch, result.Run.Duration.Seconds())
	return nil
}
