package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowslide/synccore/internal/record"
)

func newTriggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger [data-type]",
		Short: "Run sync workers out of band, or only data-type's worker if given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTrigger,
	}

	return cmd
}

func runTrigger(cmd *cobra.Command, args []string) error {
	a := mustApp(cmd.Context())

	var dataType record.DataType
	if len(args) == 1 {
		dataType = record.DataType(args[0])
	}

	results := a.api.TriggerSync(cmd.Context(), dataType)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(results)
	}

	for i, r := range results {
		if r.Err != nil {
			fmt.Printf("worker %d: FAILED: %v\n", i, r.Err)
			continue
		}

		fmt.Printf("worker %d: seen=%d applied=%d conflicts=%d errors=%d\n", i, r.Seen, r.Applied, r.Conflicts, r.Errors)
	}

	return nil
}
