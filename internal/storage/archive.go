package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"rtaudio-pipeline/internal/pipeline"
)

// Archived describes one uploaded snapshot.
type Archived struct {
	Bucket string
	Key    string
	ETag   string
	Size   int64
}

// SnapshotKey returns the object key of a pipeline snapshot. Keys sort by
// time within a pipeline.
func SnapshotKey(prefix string, st pipeline.State) string {
	name := st.Name
	if name == "" {
		name = "unnamed"
	}
	return SafeObjectKey(
		prefix,
		fmt.Sprintf("%d-%s", st.ID, name),
		st.Time.UTC().Format("20060102T150405.000Z")+".json",
	)
}

// ArchiveSnapshot uploads st as JSON.
func (m *MinioClient) ArchiveSnapshot(ctx context.Context, st pipeline.State) (Archived, error) {
	if !m.Enabled() {
		return Archived{}, fmt.Errorf("minio disabled")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return Archived{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := SnapshotKey(m.prefix, st)
	etag, size, err := m.UploadBytes(ctx, key, data, "application/json")
	if err != nil {
		return Archived{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Archived{Bucket: m.bucket, Key: key, ETag: etag, Size: size}, nil
}
