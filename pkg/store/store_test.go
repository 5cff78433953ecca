package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masltov-creations/opencommotion/internal/adapters/memory"
	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
	"github.com/masltov-creations/opencommotion/pkg/store"
)

func addActorOp(opID, actorID string, atMs int) scene.PatchOp {
	return scene.PatchOp{
		OpID: opID,
		Op:   scene.OpAdd,
		Path: "/actors/" + actorID,
		Value: map[string]any{
			"kind": "character",
			"name": actorID,
		},
		AtMs: atMs,
	}
}

func TestStore_GetCreatesEmptyScene(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	sc, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", sc.ID)
	assert.Equal(t, int64(0), sc.Revision)
	assert.Empty(t, sc.AppliedOps)
}

func TestStore_GetReturnsIsolatedCopy(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	first, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	first.Collections[scene.CollectionActors]["rogue"] = scene.Entity{"kind": "character"}

	second, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, second.Collections[scene.CollectionActors],
		"mutating a returned copy must not touch authoritative state")
}

func TestStore_CommitAdvancesRevisionByOne(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	res, err := s.Commit(ctx, "demo", 0, []scene.PatchOp{addActorOp("t1#00", "guide", 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Revision)
	assert.Len(t, res.Applied, 1)

	res, err = s.Commit(ctx, "demo", 1, []scene.PatchOp{addActorOp("t2#00", "globe", 100)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Revision)
}

func TestStore_CommitStaleBaseRevision(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	_, err := s.Commit(ctx, "demo", 0, []scene.PatchOp{addActorOp("t1#00", "guide", 0)})
	require.NoError(t, err)

	_, err = s.Commit(ctx, "demo", 0, []scene.PatchOp{addActorOp("t2#00", "globe", 0)})
	var conflict *scene.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(0), conflict.BaseRevision)
	assert.Equal(t, int64(1), conflict.CurrentRevision)
	assert.Equal(t, int64(1), conflict.Summary.Revision)
	assert.Equal(t, 1, conflict.Summary.EntityCount)

	// Nothing from the rejected batch landed.
	sc, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.NotContains(t, sc.Collections[scene.CollectionActors], "globe")
}

func TestStore_CommitIsAtomic(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	batch := []scene.PatchOp{
		addActorOp("t1#00", "guide", 0),
		{OpID: "t1#01", Op: scene.OpAdd, Path: "/nowhere/x", Value: map[string]any{}, AtMs: 50},
	}
	_, err := s.Commit(ctx, "demo", 0, batch)
	var applyErr *scene.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, scene.CodeUnknownCollection, applyErr.Code)

	sc, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sc.Revision, "failed batch must not advance revision")
	assert.Empty(t, sc.Collections[scene.CollectionActors],
		"ops preceding the failure must roll back")
}

func TestStore_RedeliveredOpsAreSkipped(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	batch := []scene.PatchOp{addActorOp("t1#00", "guide", 0)}
	_, err := s.Commit(ctx, "demo", 0, batch)
	require.NoError(t, err)

	// Same op ids delivered again in a later turn: state stays put, the
	// revision still advances, and the skip is reported.
	res, err := s.Commit(ctx, "demo", 1, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Revision)
	assert.Empty(t, res.Applied)
	assert.Contains(t, res.Warnings, "op_duplicate_ignored:t1#00")
}

func TestStore_SuspiciousRebuildRejected(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	seed := make([]scene.PatchOp, 12)
	for i := range seed {
		seed[i] = addActorOp(fmt.Sprintf("seed#%02d", i), fmt.Sprintf("actor-%d", i), 0)
	}
	_, err := s.Commit(ctx, "demo", 0, seed)
	require.NoError(t, err)

	churn := make([]scene.PatchOp, 0, 10)
	for i := 0; i < 5; i++ {
		churn = append(churn, scene.PatchOp{
			OpID: fmt.Sprintf("churn#%02d", i),
			Op:   scene.OpRemove,
			Path: fmt.Sprintf("/actors/actor-%d", i),
		})
		churn = append(churn, addActorOp(fmt.Sprintf("churn#%02d", i+5), fmt.Sprintf("fresh-%d", i), 0))
	}

	_, err = s.Commit(ctx, "demo", 1, churn)
	var applyErr *scene.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, scene.CodeSuspiciousRebuild, applyErr.Code)

	sc, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sc.Revision, "rejected batch must not advance revision")
	assert.Contains(t, sc.Collections[scene.CollectionActors], "actor-0")

	// Declaring the rebuild lets the same batch through.
	res, err := s.Commit(ctx, "demo", 1, churn, store.WithExplicitRebuild())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Revision)
	assert.Len(t, res.Applied, len(churn))

	sc, err = s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.NotContains(t, sc.Collections[scene.CollectionActors], "actor-0")
	assert.Contains(t, sc.Collections[scene.CollectionActors], "fresh-0")
}

func TestStore_IncrementalChurnIsNotARebuild(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	seed := make([]scene.PatchOp, 12)
	for i := range seed {
		seed[i] = addActorOp(fmt.Sprintf("seed#%02d", i), fmt.Sprintf("actor-%d", i), 0)
	}
	_, err := s.Commit(ctx, "demo", 0, seed)
	require.NoError(t, err)

	// Two swaps plus a field tweak is normal follow-up churn.
	mild := []scene.PatchOp{
		{OpID: "t2#00", Op: scene.OpRemove, Path: "/actors/actor-0"},
		{OpID: "t2#01", Op: scene.OpRemove, Path: "/actors/actor-1"},
		addActorOp("t2#02", "newcomer-0", 0),
		addActorOp("t2#03", "newcomer-1", 0),
		{OpID: "t2#04", Op: scene.OpReplace, Path: "/actors/actor-2/x", Value: 42},
	}
	res, err := s.Commit(ctx, "demo", 1, mild)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Revision)
}

func TestStore_SnapshotRestoreRoundTrip(t *testing.T) {
	archive := memory.NewSnapshotArchive()
	s := store.New(store.WithArchive(archive), store.WithoutAutosave())
	ctx := context.Background()

	_, err := s.Commit(ctx, "demo", 0, []scene.PatchOp{addActorOp("t1#00", "guide", 0)})
	require.NoError(t, err)
	_, err = s.Snapshot(ctx, "demo", "before-globe")
	require.NoError(t, err)

	_, err = s.Commit(ctx, "demo", 1, []scene.PatchOp{addActorOp("t2#00", "globe", 0)})
	require.NoError(t, err)

	restored, err := s.Restore(ctx, "demo", "before-globe")
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored.Revision, "restore adopts the snapshot's revision")
	assert.Contains(t, restored.Collections[scene.CollectionActors], "guide")
	assert.NotContains(t, restored.Collections[scene.CollectionActors], "globe")

	// The restored revision is authoritative for subsequent commits.
	res, err := s.Commit(ctx, "demo", 1, []scene.PatchOp{addActorOp("t3#00", "ufo", 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Revision)
}

func TestStore_RestoreUnknownSnapshot(t *testing.T) {
	archive := memory.NewSnapshotArchive()
	s := store.New(store.WithArchive(archive))
	ctx := context.Background()

	_, err := s.Restore(ctx, "demo", "never-saved")
	assert.True(t, errors.Is(err, scene.ErrSnapshotNotFound))
}

func TestStore_SnapshotRequiresExistingScene(t *testing.T) {
	archive := memory.NewSnapshotArchive()
	s := store.New(store.WithArchive(archive))
	ctx := context.Background()

	_, err := s.Snapshot(ctx, "ghost", "snap")
	assert.True(t, errors.Is(err, scene.ErrSceneNotFound))
}

func TestStore_AutosaveAfterCommit(t *testing.T) {
	archive := memory.NewSnapshotArchive()
	s := store.New(store.WithArchive(archive))
	ctx := context.Background()

	_, err := s.Commit(ctx, "demo", 0, []scene.PatchOp{addActorOp("t1#00", "guide", 0)})
	require.NoError(t, err)

	restored, err := s.Restore(ctx, "demo", store.AutosaveID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored.Revision)
}

func TestStore_ConcurrentCommitsSerializePerScene(t *testing.T) {
	s := store.New()
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			op := addActorOp("race#00", "guide", 0)
			op.OpID = op.OpID + string(rune('a'+n))
			_, err := s.Commit(ctx, "demo", 0, []scene.PatchOp{op})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			var conflict *scene.ConflictError
			assert.ErrorAs(t, err, &conflict)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, committed, "exactly one writer may win base revision 0")

	sc, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sc.Revision)
}

func TestStore_LockTimeout(t *testing.T) {
	// The per-scene lock is held across the autosave write, so a slow archive
	// keeps the lock busy long enough for a second writer to time out.
	slow := &slowArchive{delay: 300 * time.Millisecond, inner: memory.NewSnapshotArchive()}
	s := store.New(store.WithArchive(slow), store.WithLockTimeout(30*time.Millisecond))
	ctx := context.Background()

	holding := make(chan struct{})
	slow.started = holding
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Commit(ctx, "demo", 0, []scene.PatchOp{addActorOp("slow#00", "guide", 0)})
	}()
	<-holding

	_, err := s.Commit(ctx, "demo", 1, []scene.PatchOp{addActorOp("late#00", "globe", 0)})
	assert.True(t, errors.Is(err, scene.ErrLockTimeout), "expected lock timeout, got %v", err)
	<-done
}

type slowArchive struct {
	started chan struct{}
	delay time.Duration
	inner *memory.SnapshotArchive
}

func (a *slowArchive) Save(ctx context.Context, sceneID, snapshotID string, blob []byte) error {
	if a.started != nil {
		close(a.started)
		a.started = nil
	}
	time.Sleep(a.delay)
	return a.inner.Save(ctx, sceneID, snapshotID, blob)
}

func (a *slowArchive) Load(ctx context.Context, sceneID, snapshotID string) ([]byte, error) {
	return a.inner.Load(ctx, sceneID, snapshotID)
}

func (a *slowArchive) List(ctx context.Context, sceneID string) ([]ports.SnapshotInfo, error) {
	return a.inner.List(ctx, sceneID)
}
