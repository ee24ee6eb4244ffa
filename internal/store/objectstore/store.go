// Package objectstore implements the S3-compatible object store adapter
// (spec §4.2) against Cloudflare R2 via aws-sdk-go-v2/service/s3 with a
// custom endpoint resolver. It backs both the Snapshot/Backup Engine
// (backups/<yyyymmdd_hhmmss>/ prefix) and record-level backup_only sync
// (sync/<type>/<date>/<id>/<version>.blob append-only log, spec §6).
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/flowslide/synccore/internal/record"
	"github.com/flowslide/synccore/internal/store"
	"github.com/flowslide/synccore/internal/syncerrs"
)

// Config bundles the four R2 settings spec §6 requires together ("all four
// must be set to enable R2").
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
}

// Store implements store.Adapter over an S3-compatible bucket. Record-level
// operations are backed by an append-only log keyed by
// sync/<type>/<date>/<id>/<version>.blob; Get/ListSince resolve the latest
// version by listing the type's prefix and picking each id's highest version. Snapshot archives are written and read
// through the lower-level Put/Get/List/DeleteObject methods directly (the
// Snapshot Engine does not go through the store.Adapter record model).
type Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// Open builds a Store from cfg. Connectivity is verified by the caller via
// Ping (the Mode Detector's reachability check), not at construction time,
// mirroring the external adapter's separation of "configured" from
// "reachable".
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, syncerrs.Wrap(syncerrs.ErrInvalidConfig, "store/objectstore.Open", "", "")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("store/objectstore: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Store{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Ping implements store.Adapter by issuing a lightweight HeadBucket call.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return syncerrs.Wrap(syncerrs.ErrPeerUnreachable, "store/objectstore.Ping", "", "")
	}

	return nil
}

// PutObject uploads data under key, used by the Snapshot Engine for
// archives/manifests (spec §4.6, §6).
func (s *Store) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})

	return classify("store/objectstore.PutObject", key, err)
}

// GetObject downloads the object at key.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("store/objectstore.GetObject", key, err)
	}

	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, syncerrs.Wrap(syncerrs.ErrRetryable, "store/objectstore.GetObject", "", key)
	}

	return data, nil
}

// ListObjects lists keys under prefix.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("store/objectstore.ListObjects", prefix, err)
		}

		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// DeleteObject removes the object at key.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	return classify("store/objectstore.DeleteObject", key, err)
}

// recordKey builds the sync/<type>/<date>/<id>/<version>.blob key for
// record-level backup_only sync (spec §6).
func recordKey(t record.DataType, id string, version int64, date string) string {
	return fmt.Sprintf("sync/%s/%s/%s/%d.blob", t, date, id, version)
}

// recordPrefix returns the prefix under which every version of every record
// of type t is stored, regardless of date or id; callers filter by id
// client-side.
func recordPrefix(t record.DataType) string {
	return fmt.Sprintf("sync/%s/", t)
}

// Get implements store.Adapter by locating the highest-version blob for
// (t, id) across all date partitions.
func (s *Store) Get(ctx context.Context, t record.DataType, id string) (record.Record, bool, error) {
	keys, err := s.ListObjects(ctx, recordPrefix(t))
	if err != nil {
		return record.Record{}, false, err
	}

	var (
		bestKey     string
		bestVersion int64 = -1
	)

	for _, k := range keys {
		if !strings.Contains(k, "/"+id+"/") {
			continue
		}

		v, ok := parseVersion(k)
		if ok && v > bestVersion {
			bestVersion = v
			bestKey = k
		}
	}

	if bestKey == "" {
		return record.Record{}, false, nil
	}

	data, err := s.GetObject(ctx, bestKey)
	if err != nil {
		return record.Record{}, false, err
	}

	rec, err := decodeBlob(data)
	if err != nil {
		return record.Record{}, false, syncerrs.Wrap(syncerrs.ErrInternal, "store/objectstore.Get", string(t), id)
	}

	return rec, true, nil
}

// Put implements store.Adapter: append-only, writes a new version blob.
// The object store never overwrites a version, so supersession is checked
// against the latest existing version before writing.
func (s *Store) Put(ctx context.Context, rec record.Record) error {
	existing, found, err := s.Get(ctx, rec.Type, rec.ID)
	if err != nil {
		return err
	}

	if found && rec.UpdatedAt <= existing.UpdatedAt {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/objectstore.Put", string(rec.Type), rec.ID)
	}

	data := encodeBlob(rec)
	date := dateFromMillis(rec.UpdatedAt)

	return s.PutObject(ctx, recordKey(rec.Type, rec.ID, rec.Version, date), data)
}

// Delete implements store.Adapter by writing a tombstone version blob.
func (s *Store) Delete(ctx context.Context, t record.DataType, id string, at int64) error {
	existing, found, err := s.Get(ctx, t, id)
	if err != nil {
		return err
	}

	version := int64(1)
	if found {
		if at <= existing.UpdatedAt {
			return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/objectstore.Delete", string(t), id)
		}

		version = existing.Version + 1
	}

	rec := record.Record{Type: t, ID: id, UpdatedAt: at, Deleted: true, Origin: record.OriginObject, Version: version}
	data := encodeBlob(rec)

	return s.PutObject(ctx, recordKey(t, id, version, dateFromMillis(at)), data)
}

// PutResolved implements store.Adapter. See the interface doc: it accepts a
// write whose UpdatedAt equals the latest existing version's, needed when
// conflict resolution deterministically picks the incoming record on a tie
// (the version/payload-hash fallback commonly ties on UpdatedAt alone).
func (s *Store) PutResolved(ctx context.Context, rec record.Record) error {
	existing, found, err := s.Get(ctx, rec.Type, rec.ID)
	if err != nil {
		return err
	}

	if found && rec.UpdatedAt < existing.UpdatedAt {
		return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/objectstore.PutResolved", string(rec.Type), rec.ID)
	}

	data := encodeBlob(rec)
	date := dateFromMillis(rec.UpdatedAt)

	return s.PutObject(ctx, recordKey(rec.Type, rec.ID, rec.Version, date), data)
}

// DeleteResolved implements store.Adapter, tombstoning (t, id) and accepting
// an equal-timestamp tie the same way PutResolved does.
func (s *Store) DeleteResolved(ctx context.Context, t record.DataType, id string, at int64) error {
	existing, found, err := s.Get(ctx, t, id)
	if err != nil {
		return err
	}

	version := int64(1)
	if found {
		if at < existing.UpdatedAt {
			return syncerrs.Wrap(syncerrs.ErrSuperseded, "store/objectstore.DeleteResolved", string(t), id)
		}

		version = existing.Version + 1
	}

	rec := record.Record{Type: t, ID: id, UpdatedAt: at, Deleted: true, Origin: record.OriginObject, Version: version}
	data := encodeBlob(rec)

	return s.PutObject(ctx, recordKey(t, id, version, dateFromMillis(at)), data)
}

// ListSince implements store.Adapter by scanning the type prefix client-side
// (the object store has no native range index): every call lists and
// downloads every blob under sync/<type>/, keeps the highest version per id,
// and returns up to limit of those newer than the cursor, ordered by
// UpdatedAt.
func (s *Store) ListSince(ctx context.Context, t record.DataType, cursor store.Cursor, limit int) ([]record.Record, store.Cursor, error) {
	keys, err := s.ListObjects(ctx, fmt.Sprintf("sync/%s/", t))
	if err != nil {
		return nil, cursor, err
	}

	latest := make(map[string]record.Record)

	for _, k := range keys {
		data, getErr := s.GetObject(ctx, k)
		if getErr != nil {
			continue
		}

		rec, decErr := decodeBlob(data)
		if decErr != nil {
			continue
		}

		if existing, ok := latest[rec.ID]; !ok || rec.Version > existing.Version {
			latest[rec.ID] = rec
		}
	}

	var out []record.Record

	for _, rec := range latest {
		if rec.UpdatedAt <= cursor.AfterUpdatedAt {
			continue
		}

		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt < out[j].UpdatedAt })

	if len(out) > limit {
		out = out[:limit]
	}

	next := cursor

	for _, rec := range out {
		if rec.UpdatedAt > next.AfterUpdatedAt {
			next.AfterUpdatedAt = rec.UpdatedAt
		}
	}

	return out, next, nil
}

// BeginBatch implements store.Adapter. The object store has no native
// transaction primitive; the batch simply buffers Put/Delete calls and
// issues them sequentially on Commit — acceptable because backup_only
// writers never require atomicity across records (spec §4.5).
func (s *Store) BeginBatch(_ context.Context) (store.Batch, error) {
	return &batch{store: s}, nil
}

func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return syncerrs.Wrap(syncerrs.ErrInternal, op, "", key)
		}
	}

	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return syncerrs.Wrap(syncerrs.ErrInternal, op, "", key)
	}

	return syncerrs.Wrap(syncerrs.ErrRetryable, op, "", key)
}

func parseVersion(key string) (int64, bool) {
	base := key[strings.LastIndex(key, "/")+1:]
	base = strings.TrimSuffix(base, ".blob")

	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func dateFromMillis(millis int64) string {
	const millisPerDay = 86400000

	t := millis / millisPerDay

	return strconv.FormatInt(t, 10)
}
