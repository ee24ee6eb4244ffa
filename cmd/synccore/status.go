package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-data-type sync worker status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a := mustApp(cmd.Context())

	statuses := a.api.GetStatus()

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(statuses)
	}

	for _, s := range statuses {
		fmt.Printf("%-20s %-18s enabled=%-5v status=%-9s last_result=%s cursor_age=%d\n",
			s.DataType, s.Direction, s.Enabled, s.Status, s.LastResult, s.CursorAge)
	}

	return nil
}
