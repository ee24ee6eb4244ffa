package appconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_EmptyEnvironment_SelectsLocalOnlyDefaults(t *testing.T) {
	cfg, err := Load(envMap(nil))
	require.NoError(t, err)

	assert.False(t, cfg.Database.Configured())
	assert.False(t, cfg.ObjectStore.Configured())
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
}

func TestLoad_PartialR2Config_Rejected(t *testing.T) {
	_, err := Load(envMap(map[string]string{
		"R2_ACCESS_KEY_ID": "key",
		"R2_ENDPOINT":      "https://example.r2.cloudflarestorage.com",
	}))

	require.Error(t, err)
}

func TestLoad_FullR2Config_Accepted(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"R2_ACCESS_KEY_ID":     "key",
		"R2_SECRET_ACCESS_KEY": "secret",
		"R2_ENDPOINT":          "https://example.r2.cloudflarestorage.com",
		"R2_BUCKET_NAME":       "my-bucket",
	}))

	require.NoError(t, err)
	assert.True(t, cfg.ObjectStore.Configured())
	assert.Equal(t, "my-bucket", cfg.ObjectStore.Bucket)
}

func TestLoad_SyncDirections_InvalidEntryRejected(t *testing.T) {
	_, err := Load(envMap(map[string]string{"SYNC_DIRECTIONS": "local_to_external,sideways"}))
	require.Error(t, err)
}

func TestLoad_SyncDirections_ParsesCSV(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{"SYNC_DIRECTIONS": "local_to_external, external_to_local"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"local_to_external", "external_to_local"}, cfg.Sync.Directions)
}

func TestLoad_InvalidSyncInterval_Errors(t *testing.T) {
	_, err := Load(envMap(map[string]string{"SYNC_INTERVAL": "not-a-number"}))
	require.Error(t, err)
}

func TestLoadOrDefault_InvalidEnvironment_FallsBackToDefaults(t *testing.T) {
	cfg := LoadOrDefault(envMap(map[string]string{"SYNC_INTERVAL": "garbage"}))
	assert.Equal(t, 0, cfg.Sync.IntervalOverride)
	assert.True(t, cfg.Sync.Enabled)
}

func TestLoad_DeploymentModeOverride_Passthrough(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{"DEPLOYMENT_MODE": "LOCAL_R2"}))
	require.NoError(t, err)
	assert.Equal(t, "LOCAL_R2", cfg.DeploymentMode)
}
