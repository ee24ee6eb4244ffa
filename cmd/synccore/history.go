package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent mode transitions",
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 20, "maximum number of transitions to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a := mustApp(cmd.Context())

	limit, _ := cmd.Flags().GetInt("limit")

	rows, err := a.api.GetHistory(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	}

	for _, r := range rows {
		fmt.Printf("#%d %-10s %s -> %s reason=%q\n", r.ID, r.Status, r.FromMode, r.ToMode, r.Reason)
	}

	return nil
}
