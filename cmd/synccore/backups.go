package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowslide/synccore/internal/backup"
)

func newBackupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List, create, and restore snapshot archives",
	}

	cmd.AddCommand(newBackupsListCmd())
	cmd.AddCommand(newBackupsCreateCmd())
	cmd.AddCommand(newBackupsRestoreCmd())

	return cmd
}

func newBackupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained snapshot manifests, newest first",
		RunE:  runBackupsList,
	}
}

func runBackupsList(cmd *cobra.Command, _ []string) error {
	a := mustApp(cmd.Context())

	manifests, err := a.api.ListBackups(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(manifests)
	}

	for _, m := range manifests {
		fmt.Printf("%s %s mode=%-16s size=%d prefix=%s\n", m.BackupDate, m.BackupTimestamp, m.Mode, m.SizeBytes, m.Prefix)
	}

	return nil
}

func newBackupsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Take an out-of-band snapshot of the local store",
		RunE:  runBackupsCreate,
	}
}

func runBackupsCreate(cmd *cobra.Command, _ []string) error {
	a := mustApp(cmd.Context())

	if err := backup.Checkpoint(cmd.Context(), a.local.DB()); err != nil {
		return fmt.Errorf("checkpoint local store for backup: %w", err)
	}

	dbData, err := os.ReadFile(a.local.Path())
	if err != nil {
		return fmt.Errorf("read local store for backup: %w", err)
	}

	manifest, err := a.api.CreateBackup(cmd.Context(), dbData)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(manifest)
	}

	fmt.Printf("created: %s prefix=%s size=%d\n", manifest.BackupTimestamp, manifest.Prefix, manifest.SizeBytes)

	return nil
}

func newBackupsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <prefix>",
		Short: "Restore the local store from the snapshot identified by prefix",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupsRestore,
	}
}

// runBackupsRestore replaces the local store file in place and then signals
// a required restart (spec §6: exit code 42), since the running process
// still holds the old file's sqlite connection open.
func runBackupsRestore(cmd *cobra.Command, args []string) error {
	a := mustApp(cmd.Context())

	localPath := a.local.Path()

	if err := a.api.Restore(cmd.Context(), args[0], localPath); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "restore complete, restart required")

	return errRestartRequested
}
