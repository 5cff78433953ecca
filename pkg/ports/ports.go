// Package ports defines the seams between the engine core and its
// infrastructure adapters.
package ports

import (
	"context"
	"time"

	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// SnapshotInfo describes one persisted snapshot of a scene.
type SnapshotInfo struct {
	SnapshotID string    `json:"snapshot_id"`
	SavedAt    time.Time `json:"saved_at"`
}

// SnapshotArchive persists opaque scene snapshot blobs. The revision store
// treats blobs as round-trip payloads; adapters must not interpret them.
type SnapshotArchive interface {
	// Save persists the blob under (sceneID, snapshotID), overwriting any
	// previous blob with the same ids.
	Save(ctx context.Context, sceneID, snapshotID string, blob []byte) error

	// Load retrieves a blob. Returns scene.ErrSnapshotNotFound when absent.
	Load(ctx context.Context, sceneID, snapshotID string) ([]byte, error)

	// List returns known snapshots for a scene, newest first.
	List(ctx context.Context, sceneID string) ([]SnapshotInfo, error)
}

// ResultCache stores committed turn results for idempotent resubmission.
// Entries are bounded: implementations may evict by count, age, or both, and
// a miss after eviction is an accepted trade-off.
type ResultCache interface {
	// Put records the result under its (session_id, turn_id) key.
	Put(ctx context.Context, result scene.TurnResult) error

	// Get returns the cached result and whether it was found.
	Get(ctx context.Context, sessionID, turnID string) (scene.TurnResult, bool, error)
}

// Publisher fans committed turn results out to a session's live subscribers.
// Publish must not block the caller on delivery.
type Publisher interface {
	Publish(sessionID string, result scene.TurnResult)
}
