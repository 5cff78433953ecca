package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// SnapshotArchiveContractTest verifies an adapter complies with
// ports.SnapshotArchive.
func SnapshotArchiveContractTest(t *testing.T, archive ports.SnapshotArchive) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveLoad_RoundTrip", func(t *testing.T) {
		blob := []byte(`{"scene_id":"demo","revision":4}`)
		if err := archive.Save(ctx, "demo", "snap-1", blob); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}
		loaded, err := archive.Load(ctx, "demo", "snap-1")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if string(loaded) != string(blob) {
			t.Errorf("blob mismatch. got %q, want %q", loaded, blob)
		}
	})

	t.Run("Save_Overwrites", func(t *testing.T) {
		if err := archive.Save(ctx, "demo", "snap-2", []byte("first")); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}
		if err := archive.Save(ctx, "demo", "snap-2", []byte("second")); err != nil {
			t.Fatalf("unexpected overwrite error: %v", err)
		}
		loaded, err := archive.Load(ctx, "demo", "snap-2")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if string(loaded) != "second" {
			t.Errorf("expected overwritten blob, got %q", loaded)
		}
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := archive.Load(ctx, "demo", "missing")
		if !errors.Is(err, scene.ErrSnapshotNotFound) {
			t.Errorf("expected ErrSnapshotNotFound, got %v", err)
		}
	})

	t.Run("List_ScopedToScene", func(t *testing.T) {
		if err := archive.Save(ctx, "other-scene", "snap-a", []byte("x")); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}
		infos, err := archive.List(ctx, "other-scene")
		if err != nil {
			t.Fatalf("unexpected list error: %v", err)
		}
		if len(infos) != 1 || infos[0].SnapshotID != "snap-a" {
			t.Errorf("expected exactly snap-a for other-scene, got %+v", infos)
		}
	})
}

// ResultCacheContractTest verifies an adapter complies with ports.ResultCache.
func ResultCacheContractTest(t *testing.T, cache ports.ResultCache) {
	t.Helper()
	ctx := context.Background()

	result := scene.TurnResult{
		SessionID: "session-1",
		SceneID:   "scene-1",
		TurnID:    "turn-1",
		Revision:  7,
		PatchOps: []scene.PatchOp{
			{OpID: "turn-1#00", Op: scene.OpAdd, Path: "/actors/guide", Value: map[string]any{"kind": "character"}, AtMs: 0},
		},
		Warnings: []string{},
	}

	t.Run("PutGet_RoundTrip", func(t *testing.T) {
		if err := cache.Put(ctx, result); err != nil {
			t.Fatalf("unexpected put error: %v", err)
		}
		got, ok, err := cache.Get(ctx, "session-1", "turn-1")
		if err != nil {
			t.Fatalf("unexpected get error: %v", err)
		}
		if !ok {
			t.Fatal("expected a cache hit")
		}
		if got.Revision != result.Revision || got.TurnID != result.TurnID {
			t.Errorf("result mismatch. got %+v, want %+v", got, result)
		}
		if len(got.PatchOps) != 1 || got.PatchOps[0].OpID != "turn-1#00" {
			t.Errorf("patch ops not preserved: %+v", got.PatchOps)
		}
	})

	t.Run("Get_Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "session-1", "never-submitted")
		if err != nil {
			t.Fatalf("unexpected get error: %v", err)
		}
		if ok {
			t.Error("expected a cache miss")
		}
	})

	t.Run("Keys_ScopedToSession", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "session-2", "turn-1")
		if err != nil {
			t.Fatalf("unexpected get error: %v", err)
		}
		if ok {
			t.Error("turn ids must not leak across sessions")
		}
	})
}
