package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowslide/synccore/internal/appconfig"
	"github.com/flowslide/synccore/internal/backup"
	"github.com/flowslide/synccore/internal/clockid"
	"github.com/flowslide/synccore/internal/configsync"
	"github.com/flowslide/synccore/internal/control"
	"github.com/flowslide/synccore/internal/mode"
	"github.com/flowslide/synccore/internal/policy"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/store/external"
	"github.com/flowslide/synccore/internal/store/local"
	"github.com/flowslide/synccore/internal/store/objectstore"
	"github.com/flowslide/synccore/internal/syncengine"
	"github.com/flowslide/synccore/internal/transition"
)

// app bundles every composed component plus the resources Close must
// release. Built once in PersistentPreRunE, mirroring the teacher's
// CLIContext lifecycle (root.go: loadConfig building one CLIContext per
// invocation).
type app struct {
	cfg     *appconfig.Config
	logger  *slog.Logger
	local   *local.Store
	engine  *syncengine.Engine
	backup  *backup.Engine
	manager *transition.Manager
	api     *control.API
}

// openExternal opens and pings a fresh external adapter, wrapping it for
// sensitive data types if a Config Sync key is configured.
func openExternal(codecKeyB64 string, logger *slog.Logger) transition.OpenExternalFunc {
	return func(ctx context.Context, databaseURL string) (store.Adapter, error) {
		s, err := external.Open(ctx, databaseURL, logger)
		if err != nil {
			return nil, err
		}

		return wrapSensitive(s, codecKeyB64, logger), nil
	}
}

// openObject opens a fresh object-store adapter, wrapping it the same way.
func openObject(codecKeyB64 string, logger *slog.Logger) transition.OpenObjectFunc {
	return func(ctx context.Context, cfg objectstore.Config) (store.Adapter, error) {
		s, err := objectstore.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}

		return wrapSensitive(s, codecKeyB64, logger), nil
	}
}

func wrapSensitive(adapter store.Adapter, codecKeyB64 string, logger *slog.Logger) store.Adapter {
	if codecKeyB64 == "" {
		return adapter
	}

	codec, err := configsync.NewCodec(codecKeyB64)
	if err != nil {
		logger.Warn("config sync encryption disabled", slog.Any("error", err))
		return adapter
	}

	return configsync.NewEncryptingAdapter(adapter, codec)
}

// buildApp composes every component from cfg, following the teacher's
// build-once, thread-everywhere constructor style (root.go's
// newGraphClient/buildLogger helpers, generalized from one client to a
// full component graph).
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger) (*app, error) {
	localStore, err := local.Open(ctx, cfg.LocalStorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	var externalAdapter, objectAdapter store.Adapter

	var externalPinger, objectPinger mode.Pinger

	var objectStoreForBackup backup.ObjectStore

	if cfg.Database.Configured() {
		s, openErr := external.Open(ctx, cfg.Database.URL, logger)
		if openErr != nil {
			logger.Warn("external store unreachable at startup", slog.Any("error", openErr))
		} else {
			externalAdapter = wrapSensitive(s, cfg.ConfigSyncKey, logger)
			externalPinger = s
		}
	}

	if cfg.ObjectStore.Configured() {
		s, openErr := objectstore.Open(ctx, cfg.ObjectStore.Config, logger)
		if openErr != nil {
			logger.Warn("object store unreachable at startup", slog.Any("error", openErr))
		} else {
			// objectStoreForBackup keeps the unwrapped adapter: the
			// Backup Engine archives whole-database snapshots, which
			// are not individual sensitive-field records, so the
			// per-record encryption wrapper does not apply here.
			objectStoreForBackup = s
			objectAdapter = wrapSensitive(s, cfg.ConfigSyncKey, logger)
			objectPinger = s
		}
	}

	detector := mode.New(mode.Config{
		ExternalConfigured: cfg.Database.Configured(),
		ObjectConfigured:   cfg.ObjectStore.Configured(),
		Override:           record.DeploymentMode(cfg.DeploymentMode),
	}, externalPinger, objectPinger, logger)

	registry := policy.NewRegistry(cfg.Sync.IntervalOverride)
	registry.ApplyMode(detector.Snapshot().Current)

	engine := syncengine.NewEngine(syncengine.EngineConfig{
		Local: localStore, External: externalAdapter, Object: objectAdapter,
		Cursors: localStore, Registry: registry, MetricsReg: prometheus.DefaultRegisterer, Logger: logger,
	})
	engine.Reconfigure(ctx)

	if err := configsync.Bootstrap(ctx, localStore, os.Getenv, clockid.New()); err != nil {
		logger.Warn("config sync bootstrap failed", slog.Any("error", err))
	}

	backupEngine, err := backup.New(backup.Config{
		Object: objectStoreForBackup, Bucket: cfg.ObjectStore.Bucket, Quiescer: engine,
		ModeFn: func() record.DeploymentMode { return detector.Snapshot().Current },
		Schedule: cfg.Backup.Schedule, RetentionDays: cfg.Backup.RetentionDays, Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building backup engine: %w", err)
	}

	manager := transition.NewManager(transition.ManagerConfig{
		Log: localStore, Detector: detector, Registry: registry, Engine: engine, BackupEngine: backupEngine,
		OpenExternal: openExternal(cfg.ConfigSyncKey, logger), OpenObject: openObject(cfg.ConfigSyncKey, logger),
		Logger: logger,
		InitialCfg: transition.Config{
			DatabaseURL: cfg.Database.URL, Object: cfg.ObjectStore.Config,
		},
	})

	api := control.New(control.Config{Detector: detector, Engine: engine, Backup: backupEngine, Transition: manager})

	go detector.Run(ctx, func() int64 { return time.Now().UnixMilli() })

	backupEngine.Start()

	return &app{
		cfg: cfg, logger: logger, local: localStore, engine: engine, backup: backupEngine, manager: manager, api: api,
	}, nil
}

// Close releases the resources buildApp acquired.
func (a *app) Close() {
	a.engine.Stop()
	a.backup.StopSchedule()

	if err := a.local.Close(); err != nil {
		a.logger.Warn("closing local store", slog.Any("error", err))
	}
}
