package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Show the active and detected deployment mode",
		RunE:  runMode,
	}
}

func runMode(cmd *cobra.Command, _ []string) error {
	a := mustApp(cmd.Context())

	info := a.api.GetMode()

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(info)
	}

	fmt.Printf("current:           %s\n", info.Current)
	fmt.Printf("detected:          %s\n", info.Detected)
	fmt.Printf("switch_in_progress: %v\n", info.SwitchInProgress)
	fmt.Printf("last_check:        %d\n", info.LastCheck)

	return nil
}
