package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/weave/internal/stories/domain"
)

var (
	createType       string
	createTitle      string
	createDesc       string
	createAcceptance string
	createPriority   int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a work item",
	Long:  `Create a work item in pending. Refine it to produce developer stories.`,
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createType, "type", "t", string(domain.TypeUserStory),
		"work item type: user_story or bug")
	createCmd.Flags().StringVar(&createTitle, "title", "", "work item title (required)")
	createCmd.Flags().StringVarP(&createDesc, "description", "d", "", "work item description (required)")
	createCmd.Flags().StringVarP(&createAcceptance, "acceptance", "a", "", "acceptance criteria")
	createCmd.Flags().IntVarP(&createPriority, "priority", "p", 5, "priority 1 (urgent) to 9")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("description")

	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	item, err := rt.orch.CreateWorkItem(cmd.Context(),
		domain.WorkItemType(createType), createTitle, createDesc, createAcceptance, createPriority)
	if err != nil {
		return err
	}

	fmt.Printf("created work item %d (%s, priority %d)\n", item.ID, item.Type, item.Priority)
	return nil
}
