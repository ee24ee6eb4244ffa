package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/record"
)

func TestEncodeDecodeBlobRoundTrip(t *testing.T) {
	rec := record.Record{
		Type: record.Projects, ID: "p1", Payload: []byte("hello"),
		UpdatedAt: 1234, Origin: record.OriginLocal, Version: 3,
	}

	data := encodeBlob(rec)

	got, err := decodeBlob(data)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestParseVersion(t *testing.T) {
	v, ok := parseVersion("sync/projects/19876/p1/3.blob")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok = parseVersion("sync/projects/19876/p1/manifest.json")
	assert.False(t, ok)
}

func TestDateFromMillis_IsStableForSameDay(t *testing.T) {
	const day = int64(86400000)

	a := dateFromMillis(10 * day)
	b := dateFromMillis(10*day + 1000)
	assert.Equal(t, a, b)

	c := dateFromMillis(11 * day)
	assert.NotEqual(t, a, c)
}
