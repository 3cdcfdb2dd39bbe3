package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <story-id>",
	Short: "Show a story's execution log",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid story id %q", args[0])
	}

	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	entries, err := rt.orch.LogsByStory(cmd.Context(), id)
	if err != nil {
		return err
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s %-17s %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.EventType, e.Details)
		if e.ErrorMessage != "" {
			line += " error=" + e.ErrorMessage
		}
		fmt.Println(line)
	}
	return nil
}
