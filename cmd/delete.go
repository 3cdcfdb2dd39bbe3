package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <work-item-id>",
	Short: "Delete a work item and everything under it",
	Long:  `Delete a work item. Its stories, dependency edges, and logs cascade.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid work item id %q", args[0])
	}

	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.orch.DeleteWorkItem(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("deleted work item %d\n", id)
	return nil
}
