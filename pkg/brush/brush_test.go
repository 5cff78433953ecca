package brush_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masltov-creations/opencommotion/pkg/brush"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

func caps2D() brush.Capabilities { return brush.Capabilities{Mode: "2d"} }

func caps3D() brush.Capabilities {
	return brush.Capabilities{Mode: "3d", Materials: true, Camera3D: true}
}

func TestCompile_Deterministic(t *testing.T) {
	strokes := []scene.Stroke{
		{StrokeID: "s1", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "hero"}},
		{StrokeID: "s2", Kind: "setLyricsTrack", Params: map[string]any{"words": []any{"hello", "moon"}}},
		{StrokeID: "s3", Kind: "orbitGlobe", Timing: scene.Timing{StartMs: 200}},
	}

	first, warnings1, err := brush.New().Compile(strokes, caps2D())
	require.NoError(t, err)
	second, warnings2, err := brush.New().Compile(strokes, caps2D())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, warnings1, warnings2)
}

func TestCompile_OpIDsDeriveFromStrokeID(t *testing.T) {
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "turn-1-a", Kind: "orbitGlobe"},
	}, caps2D())
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "turn-1-a#00", ops[0].OpID)
	assert.Equal(t, "turn-1-a#01", ops[1].OpID)
}

func TestCompile_OrdersByOffset(t *testing.T) {
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "late", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "b"}, Timing: scene.Timing{StartMs: 900}},
		{StrokeID: "early", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "a"}, Timing: scene.Timing{StartMs: 100}},
	}, caps2D())
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "early#00", ops[0].OpID)
	assert.Equal(t, "late#00", ops[1].OpID)
}

func TestCompile_UnknownKindFailsBatch(t *testing.T) {
	_, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "ok", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "hero"}},
		{StrokeID: "bad", Kind: "teleportActor"},
	}, caps2D())

	var compileErr *scene.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, scene.CodeUnknownKind, compileErr.Code)
	assert.Equal(t, "bad", compileErr.StrokeID)
	assert.Equal(t, "teleportActor", compileErr.Kind)
}

func TestCompile_MissingParamFailsBatch(t *testing.T) {
	_, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "spawnCharacter"},
	}, caps2D())

	var compileErr *scene.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, scene.CodeMissingParam, compileErr.Code)
}

func TestCompile_NormalizesTiming(t *testing.T) {
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "animateMoonwalk",
			Params: map[string]any{"actor_id": "hero"},
			Timing: scene.Timing{StartMs: -200}},
	}, caps2D())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 0, ops[0].AtMs)

	value := ops[0].Value.(map[string]any)
	assert.Equal(t, 600, value["duration_ms"], "zero duration picks up the default")
}

func TestCompile_SpawnCharacterDefaults(t *testing.T) {
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "hero"}},
	}, caps2D())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "/actors/hero", ops[0].Path)
	value := ops[0].Value.(map[string]any)
	assert.Equal(t, "character", value["kind"])
	assert.Equal(t, float64(180), value["x"])
	assert.Equal(t, float64(190), value["y"])
}

func TestCompile_WeakNumericCoercion(t *testing.T) {
	// Agents serialize through JSON, so numbers often arrive as strings.
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "hero", "x": "42.5"}},
	}, caps2D())
	require.NoError(t, err)
	value := ops[0].Value.(map[string]any)
	assert.Equal(t, 42.5, value["x"])
}

func TestCompile_LyricsStagger(t *testing.T) {
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "setLyricsTrack",
			Params: map[string]any{"words": []any{"we", "are", "go"}},
			Timing: scene.Timing{StartMs: 100}},
	}, caps2D())
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "/captions/word-000", ops[0].Path)
	assert.Equal(t, 100, ops[0].AtMs)
	assert.Equal(t, 520, ops[1].AtMs)
	assert.Equal(t, 940, ops[2].AtMs)
	assert.Equal(t, "are", ops[1].Value.(map[string]any)["text"])
}

func TestCompile_SetRenderModeValidation(t *testing.T) {
	ops, _, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "setRenderMode", Params: map[string]any{"mode": "3d"}},
	}, caps2D())
	require.NoError(t, err)
	assert.Equal(t, "/render/mode", ops[0].Path)
	assert.Equal(t, map[string]any{"value": "3d"}, ops[0].Value)

	_, _, err = brush.New().Compile([]scene.Stroke{
		{StrokeID: "s2", Kind: "setRenderMode", Params: map[string]any{"mode": "vr"}},
	}, caps2D())
	var compileErr *scene.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, scene.CodeInvalidParam, compileErr.Code)
}

func TestCompile_MaterialFxIn3D(t *testing.T) {
	ops, warnings, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "applyMaterialFx", Params: map[string]any{
			"material_id": "hull",
			"shader_id":   "iridescent",
			"uniforms":    map[string]any{"intensity": 0.8},
		}},
	}, caps3D())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, ops, 1)
	assert.Equal(t, "/materials/hull", ops[0].Path)
	value := ops[0].Value.(map[string]any)
	assert.Equal(t, "iridescent", value["shader_id"])
}

func TestCapabilitiesFor(t *testing.T) {
	s := scene.New("demo")
	caps := brush.CapabilitiesFor(s)
	assert.Equal(t, "2d", caps.Mode)
	assert.False(t, caps.Materials)
	assert.False(t, caps.Camera3D)

	_, _, err := s.ApplyBatch([]scene.PatchOp{
		{OpID: "a", Op: scene.OpReplace, Path: "/render/mode", Value: map[string]any{"value": "3d"}},
	}, scene.DefaultPolicy())
	require.NoError(t, err)

	caps = brush.CapabilitiesFor(s)
	assert.Equal(t, "3d", caps.Mode)
	assert.True(t, caps.Materials)
	assert.True(t, caps.Camera3D)
}
