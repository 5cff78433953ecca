package scene_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masltov-creations/opencommotion/pkg/brush"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

func TestParsePath(t *testing.T) {
	p, err := scene.ParsePath("/actors/hero")
	require.NoError(t, err)
	assert.Equal(t, "actors", p.Collection)
	assert.Equal(t, "hero", p.EntityID)
	assert.Empty(t, p.Field)

	p, err = scene.ParsePath("/charts/sales/series")
	require.NoError(t, err)
	assert.Equal(t, "series", p.Field)
}

func TestParsePath_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing entity":     "/actors",
		"too many segments":  "/actors/hero/pos/x",
		"empty":              "",
		"unknown collection": "/wizards/gandalf",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := scene.ParsePath(raw)
			var applyErr *scene.ApplyError
			require.ErrorAs(t, err, &applyErr)
			if name == "unknown collection" {
				assert.Equal(t, scene.CodeUnknownCollection, applyErr.Code)
			} else {
				assert.Equal(t, scene.CodeInvalidPath, applyErr.Code)
			}
		})
	}
}

func TestNormalizeOps(t *testing.T) {
	ops := []scene.PatchOp{
		{OpID: "b", Op: scene.OpAdd, Path: "/actors/b", AtMs: 500},
		{Op: scene.OpAdd, Path: "/actors/a", AtMs: -40},
		{OpID: "c", Op: scene.OpAdd, Path: "/actors/c", AtMs: 500},
	}
	out := scene.NormalizeOps(ops)

	require.Len(t, out, 3)
	// Negative offsets clamp to zero and sort first.
	assert.Equal(t, "/actors/a", out[0].Path)
	assert.Equal(t, 0, out[0].AtMs)
	assert.Equal(t, "op-00001", out[0].OpID)
	// Stable sort keeps emission order on equal offsets.
	assert.Equal(t, "b", out[1].OpID)
	assert.Equal(t, "c", out[2].OpID)
	// Input slice untouched.
	assert.Equal(t, -40, ops[1].AtMs)
}

func TestApplyBatch_AddAndFieldOps(t *testing.T) {
	s := scene.New("demo")
	applied, warnings, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "t1#00", Op: scene.OpAdd, Path: "/actors/hero", Value: map[string]any{"kind": "character", "x": 10}, AtMs: 0},
		{OpID: "t1#01", Op: scene.OpReplace, Path: "/actors/hero/x", Value: 25, AtMs: 120},
	}, scene.DefaultPolicy())
	require.NoError(t, err)
	assert.Len(t, applied, 2)
	assert.Empty(t, warnings)

	hero := s.Collections[scene.CollectionActors]["hero"]
	require.NotNil(t, hero)
	assert.Equal(t, 25, hero["x"])
	assert.Equal(t, "character", hero["kind"])
	assert.Equal(t, 120, hero["updated_at_ms"])
	assert.Equal(t, int64(1), s.Revision)
	assert.Equal(t, []string{"t1#00", "t1#01"}, s.AppliedOps)
}

func TestApplyBatch_RemoveMissingIsNoOp(t *testing.T) {
	s := scene.New("demo")
	applied, _, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "t1#00", Op: scene.OpRemove, Path: "/actors/ghost"},
	}, scene.DefaultPolicy())
	require.NoError(t, err)
	assert.Len(t, applied, 1)
	assert.Equal(t, int64(1), s.Revision)
}

func TestApplyBatch_DuplicateOpIDSkipped(t *testing.T) {
	s := scene.New("demo")
	_, _, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "t1#00", Op: scene.OpAdd, Path: "/actors/hero", Value: map[string]any{"x": 1}},
	}, scene.DefaultPolicy())
	require.NoError(t, err)

	applied, warnings, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "t1#00", Op: scene.OpReplace, Path: "/actors/hero/x", Value: 99},
		{OpID: "t2#00", Op: scene.OpAdd, Path: "/actors/side", Value: map[string]any{"x": 2}},
	}, scene.DefaultPolicy())
	require.NoError(t, err)
	assert.Len(t, applied, 1)
	assert.Equal(t, []string{"op_duplicate_ignored:t1#00"}, warnings)
	assert.Equal(t, 1, s.Collections[scene.CollectionActors]["hero"]["x"])
	assert.Equal(t, int64(2), s.Revision)
}

func TestApplyBatch_OpsPerTurnCap(t *testing.T) {
	policy := scene.DefaultPolicy()
	policy.MaxOpsPerTurn = 2

	ops := make([]scene.PatchOp, 3)
	for i := range ops {
		ops[i] = scene.PatchOp{OpID: string(rune('a' + i)), Op: scene.OpAdd, Path: "/actors/x", Value: map[string]any{}}
	}

	s := scene.New("demo")
	_, _, err := s.ApplyBatch(ops, policy)
	var applyErr *scene.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, scene.CodeBudgetExceeded, applyErr.Code)
	assert.Equal(t, int64(0), s.Revision)
}

func TestApplyBatch_EntityCaps(t *testing.T) {
	policy := scene.DefaultPolicy()
	policy.MaxEntities3D = 1

	s := scene.New("demo")
	_, _, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "a", Op: scene.OpAdd, Path: "/environment/globe", Value: map[string]any{"kind": "mesh"}},
		{OpID: "b", Op: scene.OpAdd, Path: "/environment/moon", Value: map[string]any{"kind": "mesh"}},
	}, policy)
	var applyErr *scene.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, scene.CodeBudgetExceeded, applyErr.Code)
}

func TestApplyBatch_InvalidEntityValue(t *testing.T) {
	s := scene.New("demo")
	_, _, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "a", Op: scene.OpAdd, Path: "/actors/hero", Value: "not an object"},
	}, scene.DefaultPolicy())
	var applyErr *scene.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, scene.CodeInvalidValue, applyErr.Code)
}

func TestApplyBatch_WarningHistoryBounded(t *testing.T) {
	s := scene.New("demo")
	_, _, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "seed", Op: scene.OpAdd, Path: "/actors/hero", Value: map[string]any{}},
	}, scene.DefaultPolicy())
	require.NoError(t, err)

	// Re-deliver the same op far more times than the history keeps.
	for i := 0; i < 250; i++ {
		_, _, err := s.ApplyBatch([]scene.PatchOp{
			{OpID: "seed", Op: scene.OpAdd, Path: "/actors/hero", Value: map[string]any{}},
		}, scene.DefaultPolicy())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(s.Warnings), 200)
}

// stateKeys flattens a scene into a set of collection/entity/field keys so
// states can be compared for containment.
func stateKeys(s *scene.Scene) map[string]struct{} {
	keys := make(map[string]struct{})
	for name, col := range s.Collections {
		for id, entity := range col {
			keys[name+"/"+id] = struct{}{}
			for field := range entity {
				if field == "updated_at_ms" {
					continue
				}
				keys[name+"/"+id+"/"+field] = struct{}{}
			}
		}
	}
	return keys
}

func TestApplyBatch_TimedPrefixReplayOnlyExpands(t *testing.T) {
	// Replaying a committed batch up to successive presentation offsets must
	// only ever grow the scene; nothing visible at offset T may be gone at
	// T+1.
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "hero"}},
		{StrokeID: "s2", Kind: "setLyricsTrack",
			Params: map[string]any{"words": []any{"lift", "off", "now"}},
			Timing: scene.Timing{StartMs: 300}},
		{StrokeID: "s3", Kind: "orbitGlobe", Timing: scene.Timing{StartMs: 2000}},
	}, brush.Capabilities{Mode: "2d"})
	require.NoError(t, err)
	require.Greater(t, len(ops), 3)

	cutoffs := make([]int, 0, len(ops))
	seen := make(map[int]bool)
	for _, op := range ops {
		if !seen[op.AtMs] {
			seen[op.AtMs] = true
			cutoffs = append(cutoffs, op.AtMs)
		}
	}
	sort.Ints(cutoffs)

	prev := map[string]struct{}{}
	for _, cutoff := range cutoffs {
		prefix := make([]scene.PatchOp, 0, len(ops))
		for _, op := range ops {
			if op.AtMs <= cutoff {
				prefix = append(prefix, op)
			}
		}

		s := scene.New("demo")
		_, _, err := s.ApplyBatch(prefix, scene.DefaultPolicy())
		require.NoError(t, err)

		keys := stateKeys(s)
		for key := range prev {
			assert.Contains(t, keys, key,
				"state visible at an earlier cutoff vanished at %dms", cutoff)
		}
		assert.Greater(t, len(keys), len(prev),
			"each later cutoff must reveal strictly more of the scene")
		prev = keys
	}
}

func TestConflictErrorIsNotLockTimeout(t *testing.T) {
	err := &scene.ConflictError{SceneID: "demo", BaseRevision: 1, CurrentRevision: 3}
	assert.False(t, errors.Is(err, scene.ErrLockTimeout))
	assert.Contains(t, err.Error(), "demo")
}
