// Package memory provides in-process adapters for single-node deployments
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

type snapshotRecord struct {
	blob    []byte
	savedAt time.Time
}

// SnapshotArchive keeps snapshot blobs in a process-local map.
type SnapshotArchive struct {
	mu     sync.RWMutex
	scenes map[string]map[string]snapshotRecord
	now    func() time.Time
}

// NewSnapshotArchive creates an empty archive.
func NewSnapshotArchive() *SnapshotArchive {
	return &SnapshotArchive{
		scenes: make(map[string]map[string]snapshotRecord),
		now:    time.Now,
	}
}

var _ ports.SnapshotArchive = (*SnapshotArchive)(nil)

// Save stores the blob, overwriting any snapshot with the same id.
func (a *SnapshotArchive) Save(ctx context.Context, sceneID, snapshotID string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	snaps, ok := a.scenes[sceneID]
	if !ok {
		snaps = make(map[string]snapshotRecord)
		a.scenes[sceneID] = snaps
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	snaps[snapshotID] = snapshotRecord{blob: stored, savedAt: a.now().UTC()}
	return nil
}

// Load retrieves a stored blob.
func (a *SnapshotArchive) Load(ctx context.Context, sceneID, snapshotID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.scenes[sceneID][snapshotID]
	if !ok {
		return nil, fmt.Errorf("scene %s snapshot %s: %w", sceneID, snapshotID, scene.ErrSnapshotNotFound)
	}
	out := make([]byte, len(rec.blob))
	copy(out, rec.blob)
	return out, nil
}

// List reports the scene's snapshots, newest first.
func (a *SnapshotArchive) List(ctx context.Context, sceneID string) ([]ports.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	snaps := a.scenes[sceneID]
	infos := make([]ports.SnapshotInfo, 0, len(snaps))
	for id, rec := range snaps {
		infos = append(infos, ports.SnapshotInfo{SnapshotID: id, SavedAt: rec.savedAt})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SnapshotID < infos[j].SnapshotID
		}
		return infos[i].SavedAt.After(infos[j].SavedAt)
	})
	return infos, nil
}
