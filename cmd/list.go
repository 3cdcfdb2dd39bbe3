package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zjrosen/weave/internal/stories/domain"
)

var (
	listStatus string
	listType   string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list [work-item-id]",
	Short: "List work items, or the stories of one work item",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by work item status")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "filter by work item type")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "limit results (0 = all)")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid work item id %q", args[0])
		}
		return listStories(cmd, rt, id)
	}

	items, err := rt.orch.ListWorkItems(cmd.Context(), domain.WorkItemFilter{
		Status: domain.WorkItemStatus(listStatus),
		Type:   domain.WorkItemType(listType),
		Limit:  listLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPRI\tSTATUS\tTITLE")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			item.ID, item.Type, item.Priority, item.Status, item.Title)
	}
	return w.Flush()
}

func listStories(cmd *cobra.Command, rt *runtime, workItemID int64) error {
	stories, err := rt.orch.StoriesByWorkItem(cmd.Context(), workItemID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPRI\tSTATUS\tTITLE")
	for _, s := range stories {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			s.ID, s.StoryType, s.Priority, s.Status, s.Title)
	}
	return w.Flush()
}
