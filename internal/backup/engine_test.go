package backup

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowslide/synccore/internal/record"
)

type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) PutObject(_ context.Context, key string, data []byte) error {
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjectStore) GetObject(_ context.Context, key string) ([]byte, error) {
	d, ok := f.objects[key]
	if !ok {
		return nil, assert.AnError
	}

	return d, nil
}

func (f *fakeObjectStore) ListObjects(_ context.Context, prefix string) ([]string, error) {
	var keys []string

	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

func (f *fakeObjectStore) DeleteObject(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func newTestEngine(t *testing.T, obj *fakeObjectStore) *Engine {
	t.Helper()

	e, err := New(Config{
		Object: obj, Bucket: "test-bucket",
		ModeFn: func() record.DeploymentMode { return record.ModeLocalExternalR2 },
		Schedule: "0 0 1 1 *", RetentionDays: 7,
	})
	require.NoError(t, err)

	return e
}

func TestCreate_UploadsArchiveAndManifest(t *testing.T) {
	obj := newFakeObjectStore()
	e := newTestEngine(t, obj)
	e.nowFn = func() time.Time { return time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) }

	manifest, err := e.Create(context.Background(), []byte("fake database contents"))
	require.NoError(t, err)

	assert.Equal(t, "test-bucket", manifest.Bucket)
	assert.Equal(t, "backups/20260731_030000/", manifest.Prefix)
	assert.NotEmpty(t, manifest.ContentHash)
	assert.Contains(t, obj.objects, manifest.Prefix+archiveName)
	assert.Contains(t, obj.objects, manifest.Prefix+manifestName)
}

func TestList_ReturnsNewestFirst(t *testing.T) {
	obj := newFakeObjectStore()
	e := newTestEngine(t, obj)

	e.nowFn = func() time.Time { return time.Date(2026, 7, 29, 3, 0, 0, 0, time.UTC) }
	_, err := e.Create(context.Background(), []byte("old"))
	require.NoError(t, err)

	e.nowFn = func() time.Time { return time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) }
	_, err = e.Create(context.Background(), []byte("new"))
	require.NoError(t, err)

	manifests, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, "backups/20260731_030000/", manifests[0].Prefix)
}

func TestEnforceRetention_DeletesArchivesOlderThanWindow(t *testing.T) {
	obj := newFakeObjectStore()
	e := newTestEngine(t, obj)

	e.nowFn = func() time.Time { return time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC) }
	_, err := e.Create(context.Background(), []byte("ancient"))
	require.NoError(t, err)

	e.nowFn = func() time.Time { return time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) }
	_, err = e.Create(context.Background(), []byte("recent"))
	require.NoError(t, err)

	manifests, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "backups/20260731_030000/", manifests[0].Prefix)
}

func TestRestore_VerifiesHashAndReplacesFile(t *testing.T) {
	obj := newFakeObjectStore()
	e := newTestEngine(t, obj)
	e.nowFn = func() time.Time { return time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) }

	manifest, err := e.Create(context.Background(), []byte("the original database bytes"))
	require.NoError(t, err)

	dir := t.TempDir()
	target := dir + "/store.db"
	require.NoError(t, os.WriteFile(target, []byte("stale contents"), 0o600))

	require.NoError(t, e.Restore(context.Background(), manifest.Prefix, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "the original database bytes", string(got))
}

func TestRestore_RejectsTamperedArchive(t *testing.T) {
	obj := newFakeObjectStore()
	e := newTestEngine(t, obj)
	e.nowFn = func() time.Time { return time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) }

	manifest, err := e.Create(context.Background(), []byte("original"))
	require.NoError(t, err)

	obj.objects[manifest.Prefix+archiveName] = []byte("tampered bytes")

	dir := t.TempDir()
	target := dir + "/store.db"

	err = e.Restore(context.Background(), manifest.Prefix, target)
	require.Error(t, err)
}
