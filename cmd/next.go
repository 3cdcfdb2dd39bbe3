package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next runnable story",
	Long: `Recompute readiness and print the story the scheduler would run
next, without claiming it. Blocked stories are listed with their
unmet prerequisites.`,
	Args: cobra.NoArgs,
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	if err := rt.recoverOrphans(ctx); err != nil {
		return err
	}

	story, err := rt.orch.SelectNext(ctx)
	if err != nil {
		return err
	}
	if story == nil {
		fmt.Println("no story is ready")
	} else {
		fmt.Printf("next: story %d [%s] %s (work item %d, priority %d)\n",
			story.ID, story.StoryType, story.Title, story.WorkItemID, story.Priority)
	}

	blocked, err := rt.orch.BlockedStories(ctx)
	if err != nil {
		return err
	}
	for _, b := range blocked {
		fmt.Printf("blocked: story %d %s\n", b.Story.ID, b.Story.Title)
		for _, dep := range b.Unmet {
			fmt.Printf("  waiting on story %d %s (%s)\n",
				dep.RequiredStoryID, dep.RequiredTitle, dep.RequiredStatus)
		}
	}
	return nil
}
