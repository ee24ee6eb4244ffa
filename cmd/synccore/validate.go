package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store/objectstore"
	"github.com/flowslide/synccore/internal/transition"
)

func targetConfigFlags(cmd *cobra.Command) (databaseURL string, obj objectstore.Config) {
	databaseURL, _ = cmd.Flags().GetString("database-url")
	accessKey, _ := cmd.Flags().GetString("r2-access-key-id")
	secretKey, _ := cmd.Flags().GetString("r2-secret-access-key")
	endpoint, _ := cmd.Flags().GetString("r2-endpoint")
	bucket, _ := cmd.Flags().GetString("r2-bucket-name")

	obj = objectstore.Config{AccessKeyID: accessKey, SecretAccessKey: secretKey, Endpoint: endpoint, Bucket: bucket}

	return databaseURL, obj
}

func addTargetConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("database-url", "", "external store connection string for the target mode")
	cmd.Flags().String("r2-access-key-id", "", "R2 access key id for the target mode")
	cmd.Flags().String("r2-secret-access-key", "", "R2 secret access key for the target mode")
	cmd.Flags().String("r2-endpoint", "", "R2 endpoint for the target mode")
	cmd.Flags().String("r2-bucket-name", "", "R2 bucket name for the target mode")
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <target-mode>",
		Short: "Check whether target-mode's configuration and peers are reachable",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	addTargetConfigFlags(cmd)

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	a := mustApp(cmd.Context())

	target := record.DeploymentMode(args[0])

	databaseURL, obj := targetConfigFlags(cmd)
	cfg := transition.Config{DatabaseURL: databaseURL, Object: obj}

	res := a.api.Validate(cmd.Context(), target, cfg)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(res)
	}

	fmt.Printf("ok: %v\n", res.OK)

	if len(res.MissingFields) > 0 {
		fmt.Printf("missing_fields: %v\n", res.MissingFields)
	}

	if len(res.UnreachablePeers) > 0 {
		fmt.Printf("unreachable_peers: %v\n", res.UnreachablePeers)
	}

	return nil
}
