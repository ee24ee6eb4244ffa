package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowslide/synccore/internal/appconfig"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	flagJSON  bool
	flagDebug bool
)

// appContextKey is the context key the built app is stored under, mirroring
// the teacher's cliContextKey pattern in root.go.
type appContextKey struct{}

func appFrom(ctx context.Context) *app {
	a, _ := ctx.Value(appContextKey{}).(*app)
	return a
}

func mustApp(ctx context.Context) *app {
	a := appFrom(ctx)
	if a == nil {
		panic("BUG: app not found in context — PersistentPreRunE did not run")
	}

	return a
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "synccore",
		Short:         "Adaptive deployment-mode and multi-tier data synchronization core",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipApp"] == "true" {
				return nil
			}

			return loadApp(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a := appFrom(cmd.Context()); a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	cmd.AddCommand(newModeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newTriggerCmd())
	cmd.AddCommand(newSwitchCmd())
	cmd.AddCommand(newBackupsCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func loadApp(cmd *cobra.Command) error {
	logger := buildLogger()

	cfg, err := appconfig.Load(os.Getenv)
	if err != nil {
		return err
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, appContextKey{}, a))

	return nil
}

func buildLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagDebug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
