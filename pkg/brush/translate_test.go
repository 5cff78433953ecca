package brush_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masltov-creations/opencommotion/pkg/brush"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

func TestTranslate_MaterialDroppedIn2D(t *testing.T) {
	ops, warnings, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "applyMaterialFx", Params: map[string]any{
			"material_id": "hull", "shader_id": "iridescent",
		}},
		{StrokeID: "s2", Kind: "spawnCharacter", Params: map[string]any{"actor_id": "hero"}},
	}, caps2D())
	require.NoError(t, err)

	assert.Equal(t, []string{"translation_dropped:material_requires_3d:s1"}, warnings)
	require.Len(t, ops, 1, "the dropped stroke emits nothing, the rest of the turn survives")
	assert.Equal(t, "/actors/hero", ops[0].Path)
}

func TestTranslate_OrbitalCameraSubstitutedIn2D(t *testing.T) {
	for _, mode := range []string{"glide-orbit", "orbit", "dolly-orbit"} {
		ops, warnings, err := brush.New().Compile([]scene.Stroke{
			{StrokeID: "s1", Kind: "setCameraMove", Params: map[string]any{"mode": mode, "speed": 0.4}},
		}, caps2D())
		require.NoError(t, err)

		assert.Equal(t, []string{"translation_substituted:camera_orbit_requires_3d:s1"}, warnings)
		require.Len(t, ops, 1)
		value := ops[0].Value.(map[string]any)
		assert.Equal(t, "presentation-pan", value["mode"])
		assert.Equal(t, 0.4, value["speed"], "other params survive the rewrite")
	}
}

func TestTranslate_MalformedStrokeFailsRegardlessOfMode(t *testing.T) {
	// Missing material_id is a compile error on a 3d scene; a 2d scene must
	// reject it identically instead of hiding it behind the drop path.
	strokes := []scene.Stroke{
		{StrokeID: "s1", Kind: "applyMaterialFx", Params: map[string]any{"shader_id": "iridescent"}},
	}
	for _, caps := range []brush.Capabilities{caps2D(), caps3D()} {
		_, warnings, err := brush.New().Compile(strokes, caps)
		var compileErr *scene.CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, scene.CodeMissingParam, compileErr.Code)
		assert.Empty(t, warnings)
	}
}

func TestTranslate_NonOrbitalCameraPassesIn2D(t *testing.T) {
	ops, warnings, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "setCameraMove", Params: map[string]any{"mode": "push-in"}},
	}, caps2D())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "push-in", ops[0].Value.(map[string]any)["mode"])
}

func TestTranslate_VolumetricFxFallsBackIn2D(t *testing.T) {
	ops, warnings, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "emitFx", Params: map[string]any{"fx_id": "caustic_pattern"}},
		{StrokeID: "s2", Kind: "emitFx", Params: map[string]any{"fx_id": "volumetric_light"}},
		{StrokeID: "s3", Kind: "emitFx", Params: map[string]any{"fx_id": "confetti"}},
	}, caps2D())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"translation_substituted:volumetric_fx_requires_3d:s1",
		"translation_substituted:volumetric_fx_requires_3d:s2",
	}, warnings)
	require.Len(t, ops, 3)
	assert.Equal(t, "/effects/caustic_flat", ops[0].Path)
	assert.Equal(t, "/effects/glow_overlay", ops[1].Path)
	assert.Equal(t, "/effects/confetti", ops[2].Path)
}

func TestTranslate_NothingDegradesIn3D(t *testing.T) {
	_, warnings, err := brush.New().Compile([]scene.Stroke{
		{StrokeID: "s1", Kind: "applyMaterialFx", Params: map[string]any{"material_id": "hull", "shader_id": "x"}},
		{StrokeID: "s2", Kind: "setCameraMove", Params: map[string]any{"mode": "glide-orbit"}},
		{StrokeID: "s3", Kind: "emitFx", Params: map[string]any{"fx_id": "volumetric_light"}},
	}, caps3D())
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestTranslate_RewriteDoesNotMutateInput(t *testing.T) {
	stroke := scene.Stroke{StrokeID: "s1", Kind: "setCameraMove", Params: map[string]any{"mode": "orbit"}}
	_, _, err := brush.New().Compile([]scene.Stroke{stroke}, caps2D())
	require.NoError(t, err)
	assert.Equal(t, "orbit", stroke.Params["mode"])
}
