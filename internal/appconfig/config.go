// Package appconfig implements the environment-driven configuration
// surface (spec §6): this core's entire configuration is environment
// variables, not a config file — presence or absence of DATABASE_URL and
// the R2 variables is itself meaningful (it selects the deployment mode),
// so there is no "missing config file" error path, only missing required
// fields once a target mode is requested.
package appconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowslide/synccore/internal/store/objectstore"
)

// DatabaseConfig holds the external relational store's connection
// settings (spec §6: DATABASE_URL).
type DatabaseConfig struct {
	URL string
}

// Configured reports whether an external peer is enabled at all.
func (c DatabaseConfig) Configured() bool { return c.URL != "" }

// ObjectStoreConfig holds the R2/S3-compatible object store's connection
// settings (spec §6: R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_ENDPOINT,
// R2_BUCKET_NAME — "all four must be set to enable R2").
type ObjectStoreConfig struct {
	objectstore.Config
}

// Configured reports whether every R2 variable was set.
func (c ObjectStoreConfig) Configured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Endpoint != "" && c.Bucket != ""
}

// SyncConfig holds C5's tunable overrides (spec §6: ENABLE_DATA_SYNC,
// SYNC_INTERVAL, SYNC_DIRECTIONS).
type SyncConfig struct {
	Enabled          bool
	IntervalOverride int
	Directions       []string
}

// BackupConfig holds C6's schedule and retention (spec §6:
// BACKUP_SCHEDULE, BACKUP_RETENTION_DAYS).
type BackupConfig struct {
	Schedule      string
	RetentionDays int
}

// Config is the fully resolved, environment-sourced configuration for one
// process (spec §6, "[AMBIENT] Configuration").
type Config struct {
	Database       DatabaseConfig
	ObjectStore    ObjectStoreConfig
	Sync           SyncConfig
	Backup         BackupConfig
	LocalStorePath string
	DeploymentMode string // spec §6 DEPLOYMENT_MODE override; empty enables detection
	ConfigSyncKey  string // spec §4.8: decryption key, never logged or persisted
}

// defaults mirrors the teacher's DefaultConfig(): every field gets a safe
// value before env overrides apply.
func defaults() *Config {
	return &Config{
		Sync:           SyncConfig{Enabled: true},
		Backup:         BackupConfig{Schedule: "0 3 * * *", RetentionDays: 30},
		LocalStorePath: "synccore.db",
	}
}

// Load builds a Config from environment variables, applying defaults then
// overrides then validation — the teacher's Load/Validate pipeline,
// generalized from a TOML file decode to an env-var read (spec §6).
func Load(getenv func(string) string) (*Config, error) {
	cfg := defaults()

	cfg.Database.URL = getenv("DATABASE_URL")

	cfg.ObjectStore.Config = objectstore.Config{
		AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		Endpoint:        getenv("R2_ENDPOINT"),
		Bucket:          getenv("R2_BUCKET_NAME"),
	}

	if v := getenv("ENABLE_DATA_SYNC"); v != "" {
		cfg.Sync.Enabled = parseBool(v, cfg.Sync.Enabled)
	}

	if v := getenv("SYNC_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("appconfig: SYNC_INTERVAL: %w", err)
		}

		cfg.Sync.IntervalOverride = n
	}

	if v := getenv("SYNC_DIRECTIONS"); v != "" {
		cfg.Sync.Directions = splitCSV(v)
	}

	if v := getenv("BACKUP_SCHEDULE"); v != "" {
		cfg.Backup.Schedule = v
	}

	if v := getenv("BACKUP_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("appconfig: BACKUP_RETENTION_DAYS: %w", err)
		}

		cfg.Backup.RetentionDays = n
	}

	cfg.DeploymentMode = getenv("DEPLOYMENT_MODE")
	cfg.ConfigSyncKey = getenv("CONFIG_SYNC_KEY")

	if v := getenv("LOCAL_STORE_PATH"); v != "" {
		cfg.LocalStorePath = v
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault mirrors the teacher's zero-config first-run support: every
// field has a workable default, so Load never fails on an empty
// environment (only malformed values in fields that were explicitly set).
func LoadOrDefault(getenv func(string) string) *Config {
	cfg, err := Load(getenv)
	if err != nil {
		return defaults()
	}

	return cfg
}

// Validate rejects a partially configured R2 setup (spec §6: "all four
// must be set to enable R2") and an out-of-range retention window.
func Validate(cfg *Config) error {
	r2 := cfg.ObjectStore

	anySet := r2.AccessKeyID != "" || r2.SecretAccessKey != "" || r2.Endpoint != "" || r2.Bucket != ""
	if anySet && !r2.Configured() {
		return fmt.Errorf("appconfig: partial R2 configuration: all of R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_ENDPOINT, R2_BUCKET_NAME must be set together")
	}

	if cfg.Backup.RetentionDays < 0 {
		return fmt.Errorf("appconfig: BACKUP_RETENTION_DAYS must not be negative")
	}

	for _, d := range cfg.Sync.Directions {
		if d != "local_to_external" && d != "external_to_local" {
			return fmt.Errorf("appconfig: unrecognized SYNC_DIRECTIONS entry %q", d)
		}
	}

	return nil
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
