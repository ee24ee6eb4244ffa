package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowslide/synccore/internal/record"
)

// manifestName is the fixed filename written alongside every archive
// (spec §4.6: "write a manifest JSON alongside").
const manifestName = "manifest.json"

// archiveName is the fixed filename for the compressed database archive.
const archiveName = "snapshot.db.gz"

// prefixForTimestamp builds the backups/<yyyymmdd_hhmmss>/ prefix spec §4.6
// requires, from a UTC instant.
func prefixForTimestamp(t time.Time) string {
	return fmt.Sprintf("backups/%s/", t.UTC().Format("20060102_150405"))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func buildManifest(t time.Time, mode record.DeploymentMode, bucket, prefix string, data []byte) record.SnapshotManifest {
	return record.SnapshotManifest{
		BackupDate:      t.UTC().Format("2006-01-02"),
		BackupTimestamp: t.UTC().Format(time.RFC3339),
		Mode:            mode,
		Components: record.SnapshotComponents{
			Database:    true,
			ProjectData: true,
			Templates:   true,
			Configs:     true,
		},
		Bucket:      bucket,
		Prefix:      prefix,
		ContentHash: hashBytes(data),
		SizeBytes:   int64(len(data)),
	}
}

func encodeManifest(m record.SnapshotManifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeManifest(data []byte) (record.SnapshotManifest, error) {
	var m record.SnapshotManifest

	err := json.Unmarshal(data, &m)

	return m, err
}
