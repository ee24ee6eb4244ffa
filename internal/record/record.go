// Package record defines the generic data model shared by every component of
// the synchronization core: Record, DataType, DeploymentMode, and the
// immutable TransitionRecord log entry (spec §3).
package record

import "fmt"

// DataType names a class of records sharing a fixed sync policy.
type DataType string

// The recognized set of data types (spec §3).
const (
	Users              DataType = "users"
	Projects           DataType = "projects"
	TodoData           DataType = "todo_data"
	SlideData          DataType = "slide_data"
	PPTTemplates       DataType = "ppt_templates"
	GlobalTemplates    DataType = "global_templates"
	ProjectVersions    DataType = "project_versions"
	UserSessions       DataType = "user_sessions"
	SystemConfigs      DataType = "system_configs"
	AIProviderConfigs  DataType = "ai_provider_configs"
)

// AllDataTypes lists every recognized data type in a stable order, used by
// components that must iterate deterministically (e.g. policy registry
// initialization, control API listings).
var AllDataTypes = []DataType{
	Users,
	Projects,
	TodoData,
	SlideData,
	PPTTemplates,
	GlobalTemplates,
	ProjectVersions,
	UserSessions,
	SystemConfigs,
	AIProviderConfigs,
}

// Origin identifies which store first produced a given version of a record.
type Origin string

const (
	OriginLocal    Origin = "local"
	OriginExternal Origin = "external"
	OriginObject   Origin = "object"
)

// Record is the generic unit of sync (spec §3).
type Record struct {
	Type      DataType
	ID        string
	Payload   []byte
	UpdatedAt int64 // monotonic timestamp, milliseconds since epoch
	Deleted   bool
	Origin    Origin
	Version   int64
}

// Key returns the (type, id) composite key used for destination lookups.
func (r Record) Key() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// DeploymentMode is one of the four recognized topologies (spec §3, §4.3).
type DeploymentMode string

const (
	ModeLocalOnly        DeploymentMode = "LOCAL_ONLY"
	ModeLocalExternal     DeploymentMode = "LOCAL_EXTERNAL"
	ModeLocalR2           DeploymentMode = "LOCAL_R2"
	ModeLocalExternalR2   DeploymentMode = "LOCAL_EXTERNAL_R2"
)

// HasExternal reports whether the mode includes an external relational peer.
func (m DeploymentMode) HasExternal() bool {
	return m == ModeLocalExternal || m == ModeLocalExternalR2
}

// HasObject reports whether the mode includes an R2/object-store peer.
func (m DeploymentMode) HasObject() bool {
	return m == ModeLocalR2 || m == ModeLocalExternalR2
}

// TransitionStatus is the outcome of a mode transition (spec §3).
type TransitionStatus string

const (
	TransitionSucceeded  TransitionStatus = "succeeded"
	TransitionRolledBack TransitionStatus = "rolled_back"
	TransitionFailed     TransitionStatus = "failed"
)

// TransitionRecord is an immutable log entry capturing a mode transition
// attempt (spec §3).
type TransitionRecord struct {
	ID         int64
	FromMode   DeploymentMode
	ToMode     DeploymentMode
	StartedAt  int64
	FinishedAt int64
	Status     TransitionStatus
	Reason     string
	Actor      string
	Error      string
}

// SnapshotManifest describes a point-in-time archive of the local store
// (spec §3, §6). Field names match the bit-exact manifest.json keys.
type SnapshotManifest struct {
	BackupDate      string               `json:"backup_date"`
	BackupTimestamp string               `json:"backup_timestamp"`
	Mode            DeploymentMode       `json:"mode"`
	Components      SnapshotComponents   `json:"components"`
	Bucket          string               `json:"bucket"`
	Prefix          string               `json:"prefix"`
	ContentHash     string               `json:"content_hash"`
	SizeBytes       int64                `json:"size_bytes"`
}

// SnapshotComponents marks which data classes were included in a snapshot.
type SnapshotComponents struct {
	Database    bool `json:"database"`
	ProjectData bool `json:"project_data"`
	Templates   bool `json:"templates"`
	Configs     bool `json:"configs"`
}
