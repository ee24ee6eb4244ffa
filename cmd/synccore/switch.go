package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/transition"
)

func newSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch <target-mode>",
		Short: "Run the full transition pipeline to target-mode",
		Args:  cobra.ExactArgs(1),
		RunE:  runSwitch,
	}

	addTargetConfigFlags(cmd)
	cmd.Flags().String("reason", "operator requested", "reason recorded alongside the transition")

	return cmd
}

func runSwitch(cmd *cobra.Command, args []string) error {
	a := mustApp(cmd.Context())

	target := record.DeploymentMode(args[0])
	reason, _ := cmd.Flags().GetString("reason")

	databaseURL, obj := targetConfigFlags(cmd)
	cfg := transition.Config{DatabaseURL: databaseURL, Object: obj}

	rec, err := a.api.SwitchMode(cmd.Context(), target, cfg, reason)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(rec)
	}

	fmt.Printf("status: %s\n", rec.Status)
	fmt.Printf("from:   %s\n", rec.FromMode)
	fmt.Printf("to:     %s\n", rec.ToMode)

	if rec.Error != "" {
		fmt.Printf("error:  %s\n", rec.Error)
	}

	return nil
}
