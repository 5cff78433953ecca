// Package store holds the authoritative revisioned scene state. All writes to
// one scene serialize through a per-scene lock; commits are atomic and guarded
// by optimistic concurrency on the base revision.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/masltov-creations/opencommotion/internal/logging"
	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// AutosaveID is the snapshot id written after every commit when an archive is
// attached.
const AutosaveID = "autosave"

const defaultLockTimeout = 5 * time.Second

// lockEntry serializes writers on one scene. The semaphore channel supports
// timed acquisition; refs garbage-collects idle entries.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Store is the in-memory revision store. Snapshot persistence is delegated to
// an optional ports.SnapshotArchive.
type Store struct {
	mu     sync.Mutex
	scenes map[string]*scene.Scene
	locks  map[string]*lockEntry

	policy      scene.Policy
	archive     ports.SnapshotArchive
	autosave    bool
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithPolicy overrides the default mutation caps.
func WithPolicy(p scene.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithArchive attaches a snapshot archive and enables autosave after each
// commit.
func WithArchive(archive ports.SnapshotArchive) Option {
	return func(s *Store) {
		s.archive = archive
		s.autosave = true
	}
}

// WithoutAutosave keeps the archive for named snapshots but skips the
// per-commit autosave write.
func WithoutAutosave() Option {
	return func(s *Store) { s.autosave = false }
}

// WithLockTimeout bounds how long a commit waits for the per-scene lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithLogger configures a logger for deferred errors (autosave failures).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		scenes:      make(map[string]*scene.Scene),
		locks:       make(map[string]*lockEntry),
		policy:      scene.DefaultPolicy(),
		lockTimeout: defaultLockTimeout,
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) acquire(sceneID string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[sceneID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		s.locks[sceneID] = entry
	}
	entry.refs++
	return entry
}

func (s *Store) release(sceneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.locks[sceneID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.locks, sceneID)
	}
}

// withLock runs fn while holding the scene's write lock, giving up with
// scene.ErrLockTimeout when acquisition exceeds the configured window.
func (s *Store) withLock(ctx context.Context, sceneID string, fn func() error) error {
	entry := s.acquire(sceneID)
	defer s.release(sceneID)

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("scene %s: %w", sceneID, scene.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.sem }()

	return fn()
}

// Get returns a deep copy of the scene, creating an empty revision-0 scene on
// first access. Callers never share memory with the authoritative state.
func (s *Store) Get(ctx context.Context, sceneID string) (*scene.Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.scenes[sceneID]
	if !ok {
		current = scene.New(sceneID)
		s.scenes[sceneID] = current
	}
	return current.Clone(), nil
}

// CommitResult reports what a successful commit did.
type CommitResult struct {
	Revision int64
	Applied  []scene.PatchOp
	Warnings []string
}

type commitConfig struct {
	explicitRebuild bool
}

// CommitOption adjusts a single commit.
type CommitOption func(*commitConfig)

// WithExplicitRebuild waives the suspicious-rebuild guard for a turn that
// intentionally replaces most of the scene.
func WithExplicitRebuild() CommitOption {
	return func(c *commitConfig) { c.explicitRebuild = true }
}

// Commit applies a patch batch against the scene iff baseRevision still
// matches the authoritative revision. The batch runs against a clone and the
// clone is swapped in only on full success, so a mid-batch failure leaves the
// scene untouched. Returns *scene.ConflictError on a stale base revision, and
// rejects batches whose entity churn looks like an accidental full rebuild
// unless WithExplicitRebuild is passed.
func (s *Store) Commit(ctx context.Context, sceneID string, baseRevision int64, ops []scene.PatchOp, opts ...CommitOption) (CommitResult, error) {
	var cfg commitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var result CommitResult
	err := s.withLock(ctx, sceneID, func() error {
		s.mu.Lock()
		current, ok := s.scenes[sceneID]
		if !ok {
			current = scene.New(sceneID)
			s.scenes[sceneID] = current
		}
		s.mu.Unlock()

		if current.Revision != baseRevision {
			return &scene.ConflictError{
				SceneID:         sceneID,
				BaseRevision:    baseRevision,
				CurrentRevision: current.Revision,
				Summary:         current.Summarize(),
			}
		}

		if !cfg.explicitRebuild && current.LooksLikeRebuild(ops) {
			return &scene.ApplyError{
				Code:    scene.CodeSuspiciousRebuild,
				Message: "batch would rebuild most of the scene; resubmit with the rebuild flag set",
			}
		}

		next := current.Clone()
		applied, warnings, err := next.ApplyBatch(ops, s.policy)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.scenes[sceneID] = next
		s.mu.Unlock()

		result = CommitResult{Revision: next.Revision, Applied: applied, Warnings: warnings}

		if s.archive != nil && s.autosave {
			if err := s.saveSnapshot(ctx, next, AutosaveID); err != nil {
				// The commit already succeeded; losing an autosave only
				// shortens the recovery window.
				s.logger.Warn("autosave failed",
					"scene_id", sceneID,
					"revision", next.Revision,
					"err", err,
				)
			}
		}
		return nil
	})
	return result, err
}

// snapshotBlob is the persisted snapshot envelope.
type snapshotBlob struct {
	SavedAt time.Time    `json:"saved_at"`
	Scene   *scene.Scene `json:"scene"`
}

func (s *Store) saveSnapshot(ctx context.Context, sc *scene.Scene, snapshotID string) error {
	blob, err := json.Marshal(snapshotBlob{SavedAt: s.now().UTC(), Scene: sc})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.archive.Save(ctx, sc.ID, snapshotID, blob)
}

// Snapshot persists the scene's current state under snapshotID.
func (s *Store) Snapshot(ctx context.Context, sceneID, snapshotID string) (ports.SnapshotInfo, error) {
	if s.archive == nil {
		return ports.SnapshotInfo{}, fmt.Errorf("no snapshot archive configured")
	}
	var info ports.SnapshotInfo
	err := s.withLock(ctx, sceneID, func() error {
		s.mu.Lock()
		current, ok := s.scenes[sceneID]
		s.mu.Unlock()
		if !ok {
			return fmt.Errorf("scene %s: %w", sceneID, scene.ErrSceneNotFound)
		}
		if err := s.saveSnapshot(ctx, current, snapshotID); err != nil {
			return err
		}
		info = ports.SnapshotInfo{SnapshotID: snapshotID, SavedAt: s.now().UTC()}
		return nil
	})
	return info, err
}

// Restore replaces the scene with the snapshot's state, including its
// revision and applied-op history, and returns a copy of the restored scene.
func (s *Store) Restore(ctx context.Context, sceneID, snapshotID string) (*scene.Scene, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("no snapshot archive configured")
	}
	var restored *scene.Scene
	err := s.withLock(ctx, sceneID, func() error {
		blob, err := s.archive.Load(ctx, sceneID, snapshotID)
		if err != nil {
			return err
		}
		var decoded snapshotBlob
		if err := json.Unmarshal(blob, &decoded); err != nil {
			return fmt.Errorf("decode snapshot %s: %w", snapshotID, err)
		}
		if decoded.Scene == nil {
			return fmt.Errorf("snapshot %s has no scene payload", snapshotID)
		}
		decoded.Scene.ID = sceneID

		s.mu.Lock()
		s.scenes[sceneID] = decoded.Scene
		s.mu.Unlock()

		restored = decoded.Scene.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// ListSnapshots reports the scene's persisted snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, sceneID string) ([]ports.SnapshotInfo, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List(ctx, sceneID)
}
