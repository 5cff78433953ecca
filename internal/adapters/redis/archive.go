// Package redis implements snapshot and turn-result persistence on Redis for
// multi-node deployments.
package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// Archive implements ports.SnapshotArchive on Redis. Each scene carries a
// ZSET index scored by save time, so listings come back newest first without
// scanning keys.
type Archive struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

// ArchiveOption configures the Archive.
type ArchiveOption func(*Archive)

// WithArchivePrefix overrides the key prefix.
func WithArchivePrefix(prefix string) ArchiveOption {
	return func(a *Archive) { a.prefix = prefix }
}

// NewArchive creates an Archive on a dedicated client.
func NewArchive(address, password string, db int, opts ...ArchiveOption) *Archive {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewArchiveFromClient(client, opts...)
}

// NewArchiveFromClient creates an Archive from an existing client.
func NewArchiveFromClient(client *backend.Client, opts ...ArchiveOption) *Archive {
	a := &Archive{
		client: client,
		prefix: "opencommotion:snapshot:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ ports.SnapshotArchive = (*Archive)(nil)

func (a *Archive) key(sceneID, snapshotID string) string {
	return a.prefix + sceneID + ":" + snapshotID
}

func (a *Archive) indexKey(sceneID string) string {
	return a.prefix + "index:" + sceneID
}

// Save writes the blob and indexes it in one pipeline.
func (a *Archive) Save(ctx context.Context, sceneID, snapshotID string, blob []byte) error {
	pipe := a.client.Pipeline()
	pipe.Set(ctx, a.key(sceneID, snapshotID), blob, 0)
	pipe.ZAdd(ctx, a.indexKey(sceneID), backend.Z{
		Score:  float64(a.now().Unix()),
		Member: snapshotID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return nil
}

// Load reads a snapshot blob.
func (a *Archive) Load(ctx context.Context, sceneID, snapshotID string) ([]byte, error) {
	val, err := a.client.Get(ctx, a.key(sceneID, snapshotID)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, fmt.Errorf("scene %s snapshot %s: %w", sceneID, snapshotID, scene.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}
	return val, nil
}

// List reports the scene's snapshots, newest first.
func (a *Archive) List(ctx context.Context, sceneID string) ([]ports.SnapshotInfo, error) {
	members, err := a.client.ZRevRangeWithScores(ctx, a.indexKey(sceneID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots from redis: %w", err)
	}
	infos := make([]ports.SnapshotInfo, 0, len(members))
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			id = fmt.Sprint(m.Member)
		}
		infos = append(infos, ports.SnapshotInfo{
			SnapshotID: id,
			SavedAt:    time.Unix(int64(m.Score), 0).UTC(),
		})
	}
	return infos, nil
}

// Close closes the redis client.
func (a *Archive) Close() error {
	return a.client.Close()
}
