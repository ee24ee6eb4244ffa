package configsync

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/clockid"
	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
)

type memAdapter struct {
	records map[string]record.Record
}

func newMemAdapter() *memAdapter {
	return &memAdapter{records: make(map[string]record.Record)}
}

func (m *memAdapter) Get(_ context.Context, t record.DataType, id string) (record.Record, bool, error) {
	rec, ok := m.records[record.Record{Type: t, ID: id}.Key()]
	return rec, ok, nil
}

func (m *memAdapter) Put(_ context.Context, rec record.Record) error {
	m.records[rec.Key()] = rec
	return nil
}

func (m *memAdapter) Delete(_ context.Context, t record.DataType, id string, at int64) error {
	rec := m.records[record.Record{Type: t, ID: id}.Key()]
	rec.Deleted = true
	rec.UpdatedAt = at
	m.records[rec.Key()] = rec

	return nil
}

func (m *memAdapter) PutResolved(ctx context.Context, rec record.Record) error {
	return m.Put(ctx, rec)
}

func (m *memAdapter) DeleteResolved(ctx context.Context, t record.DataType, id string, at int64) error {
	return m.Delete(ctx, t, id, at)
}

func (m *memAdapter) ListSince(_ context.Context, t record.DataType, cursor store.Cursor, limit int) ([]record.Record, store.Cursor, error) {
	var out []record.Record

	for _, rec := range m.records {
		if rec.Type == t && rec.UpdatedAt > cursor.AfterUpdatedAt {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt < out[j].UpdatedAt })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	next := cursor
	if len(out) > 0 {
		next.AfterUpdatedAt = out[len(out)-1].UpdatedAt
	}

	return out, next, nil
}

func (m *memAdapter) Ping(context.Context) error { return nil }

func (m *memAdapter) BeginBatch(context.Context) (store.Batch, error) { return nil, nil }

const testKey = "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE=" // 32 raw bytes, base64

func TestCodec_EncryptDecrypt_RoundTrips(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	sealed, err := codec.Encrypt([]byte(`{"jwt_secret":"topsecret"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "topsecret")

	plain, err := codec.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"jwt_secret":"topsecret"}`, string(plain))
}

func TestNewCodec_MissingKey(t *testing.T) {
	_, err := NewCodec("")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestEncryptingAdapter_PutThenGet_RoundTrips(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	inner := newMemAdapter()
	adapter := NewEncryptingAdapter(inner, codec)

	plain := []byte(`{"jwt_secret":"topsecret"}`)

	require.NoError(t, adapter.Put(context.Background(), record.Record{
		Type: record.SystemConfigs, ID: "singleton", Payload: plain, UpdatedAt: 1,
	}))

	storedRaw, ok, err := inner.Get(context.Background(), record.SystemConfigs, "singleton")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, plain, storedRaw.Payload)

	got, ok, err := adapter.Get(context.Background(), record.SystemConfigs, "singleton")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plain, got.Payload)
}

func TestEncryptingAdapter_NonSensitiveType_PassesThroughUnchanged(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	inner := newMemAdapter()
	adapter := NewEncryptingAdapter(inner, codec)

	plain := []byte(`{"name":"demo"}`)
	require.NoError(t, adapter.Put(context.Background(), record.Record{
		Type: record.Projects, ID: "p1", Payload: plain, UpdatedAt: 1,
	}))

	storedRaw, ok, err := inner.Get(context.Background(), record.Projects, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plain, storedRaw.Payload)
}

func TestEncryptingAdapter_ListSince_DecryptsEveryRecord(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	inner := newMemAdapter()
	adapter := NewEncryptingAdapter(inner, codec)

	require.NoError(t, adapter.Put(context.Background(), record.Record{
		Type: record.AIProviderConfigs, ID: "singleton", Payload: []byte(`{"ai_provider_keys":{"openai":"sk-1"}}`), UpdatedAt: 5,
	}))

	recs, _, err := adapter.ListSince(context.Background(), record.AIProviderConfigs, store.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].Payload), "sk-1")
}

func TestBootstrap_SeedsRecordsFromEnv_OnlyWhenAbsent(t *testing.T) {
	local := newMemAdapter()
	clock := clockid.New()

	getenv := func(k string) string {
		switch k {
		case "DATABASE_URL":
			return "postgres://example"
		case "OPENAI_API_KEY":
			return "sk-test"
		default:
			return ""
		}
	}

	require.NoError(t, Bootstrap(context.Background(), local, getenv, clock))

	sysRaw, ok, err := local.Get(context.Background(), record.SystemConfigs, settingsRecordID)
	require.NoError(t, err)
	require.True(t, ok)

	sys, err := Unmarshal(sysRaw.Payload)
	require.NoError(t, err)
	assert.Equal(t, "postgres://example", sys.DatabaseURL)

	aiRaw, ok, err := local.Get(context.Background(), record.AIProviderConfigs, settingsRecordID)
	require.NoError(t, err)
	require.True(t, ok)

	ai, err := Unmarshal(aiRaw.Payload)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", ai.AIProviderKeys["openai"])

	// Second call must not overwrite an existing record with fresh env.
	getenvOther := func(string) string { return "" }
	require.NoError(t, Bootstrap(context.Background(), local, getenvOther, clock))

	stillThere, ok, err := local.Get(context.Background(), record.SystemConfigs, settingsRecordID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sysRaw.Payload, stillThere.Payload)
}

func TestBootstrap_NoRecognizedEnv_NoOp(t *testing.T) {
	local := newMemAdapter()
	clock := clockid.New()

	require.NoError(t, Bootstrap(context.Background(), local, func(string) string { return "" }, clock))

	_, ok, err := local.Get(context.Background(), record.SystemConfigs, settingsRecordID)
	require.NoError(t, err)
	assert.False(t, ok)
}
