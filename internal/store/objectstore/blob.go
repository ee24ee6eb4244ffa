package objectstore

import (
	"encoding/json"

	"github.com/flowslide/synccore/internal/record"
)

// blobRecord is the JSON wire format for a single version blob
// (sync/<type>/<date>/<id>/<version>.blob).
type blobRecord struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Payload   []byte `json:"payload"`
	UpdatedAt int64  `json:"updated_at"`
	Deleted   bool   `json:"deleted"`
	Origin    string `json:"origin"`
	Version   int64  `json:"version"`
}

func encodeBlob(rec record.Record) []byte {
	b, _ := json.Marshal(blobRecord{
		Type: string(rec.Type), ID: rec.ID, Payload: rec.Payload,
		UpdatedAt: rec.UpdatedAt, Deleted: rec.Deleted,
		Origin: string(rec.Origin), Version: rec.Version,
	})

	return b
}

func decodeBlob(data []byte) (record.Record, error) {
	var b blobRecord
	if err := json.Unmarshal(data, &b); err != nil {
		return record.Record{}, err
	}

	return record.Record{
		Type: record.DataType(b.Type), ID: b.ID, Payload: b.Payload,
		UpdatedAt: b.UpdatedAt, Deleted: b.Deleted,
		Origin: record.Origin(b.Origin), Version: b.Version,
	}, nil
}
