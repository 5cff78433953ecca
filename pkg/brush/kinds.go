package brush

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// handler emits zero or more patch ops for one validated stroke.
type handler func(st scene.Stroke) ([]scene.PatchOp, error)

func builtinHandlers() map[string]handler {
	return map[string]handler{
		"spawnCharacter":         compileSpawnCharacter,
		"spawnSceneActor":        compileSpawnSceneActor,
		"animateMoonwalk":        compileAnimateMoonwalk,
		"setActorMotion":         compileSetActorMotion,
		"setActorAnimation":      compileSetActorAnimation,
		"orbitGlobe":             compileOrbitGlobe,
		"ufoLandingBeat":         compileUfoLandingBeat,
		"drawAdoptionCurve":      compileAdoptionCurve,
		"drawPieSaturation":      compilePieSaturation,
		"drawSegmentedAttachBars": compileSegmentedAttachBars,
		"annotateInsight":        compileAnnotateInsight,
		"sceneMorph":             compileSceneMorph,
		"setRenderMode":          compileSetRenderMode,
		"setEnvironmentMood":     compileSetEnvironmentMood,
		"setCameraMove":          compileSetCameraMove,
		"setLyricsTrack":         compileSetLyricsTrack,
		"emitFx":                 compileEmitFx,
		"applyMaterialFx":        compileApplyMaterialFx,
	}
}

// decodeParams maps loose stroke params onto a typed schema. Numeric fields
// coerce weakly since agents serialize everything through JSON.
func decodeParams(st scene.Stroke, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(st.Params); err != nil {
		return &scene.CompileError{
			StrokeID: st.StrokeID,
			Kind:     st.Kind,
			Code:     scene.CodeInvalidParam,
			Message:  err.Error(),
		}
	}
	return nil
}

func missingParam(st scene.Stroke, field string) error {
	return &scene.CompileError{
		StrokeID: st.StrokeID,
		Kind:     st.Kind,
		Code:     scene.CodeMissingParam,
		Message:  fmt.Sprintf("required parameter %q is missing", field),
	}
}

type spawnCharacterParams struct {
	ActorID string  `json:"actor_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

func compileSpawnCharacter(st scene.Stroke) ([]scene.PatchOp, error) {
	params := spawnCharacterParams{X: 180, Y: 190}
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.ActorID == "" {
		return nil, missingParam(st, "actor_id")
	}
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpAdd,
		Path: "/actors/" + params.ActorID,
		Value: map[string]any{
			"kind": "character",
			"x":    params.X,
			"y":    params.Y,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type spawnSceneActorParams struct {
	ActorID   string         `json:"actor_id"`
	ActorType string         `json:"actor_type"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Style     map[string]any `json:"style"`
}

func compileSpawnSceneActor(st scene.Stroke) ([]scene.PatchOp, error) {
	var params spawnSceneActorParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.ActorID == "" {
		return nil, missingParam(st, "actor_id")
	}
	if params.ActorType == "" {
		return nil, missingParam(st, "actor_type")
	}
	value := map[string]any{
		"kind": params.ActorType,
		"x":    params.X,
		"y":    params.Y,
	}
	if len(params.Style) > 0 {
		value["style"] = params.Style
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpAdd,
		Path:  "/actors/" + params.ActorID,
		Value: value,
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type actorRefParams struct {
	ActorID string `json:"actor_id"`
}

func compileAnimateMoonwalk(st scene.Stroke) ([]scene.PatchOp, error) {
	var params actorRefParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.ActorID == "" {
		return nil, missingParam(st, "actor_id")
	}
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpReplace,
		Path: "/actors/" + params.ActorID + "/animation",
		Value: map[string]any{
			"name":        "moonwalk",
			"duration_ms": st.Timing.DurationMs,
			"easing":      st.Timing.Easing,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type actorMotionParams struct {
	ActorID string         `json:"actor_id"`
	Motion  map[string]any `json:"motion"`
}

func compileSetActorMotion(st scene.Stroke) ([]scene.PatchOp, error) {
	var params actorMotionParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.ActorID == "" {
		return nil, missingParam(st, "actor_id")
	}
	if len(params.Motion) == 0 {
		return nil, missingParam(st, "motion")
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpReplace,
		Path:  "/actors/" + params.ActorID + "/motion",
		Value: params.Motion,
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type actorAnimationParams struct {
	ActorID   string         `json:"actor_id"`
	Animation map[string]any `json:"animation"`
}

func compileSetActorAnimation(st scene.Stroke) ([]scene.PatchOp, error) {
	var params actorAnimationParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.ActorID == "" {
		return nil, missingParam(st, "actor_id")
	}
	if len(params.Animation) == 0 {
		return nil, missingParam(st, "animation")
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpReplace,
		Path:  "/actors/" + params.ActorID + "/animation",
		Value: params.Animation,
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type orbitGlobeParams struct {
	Radius float64 `json:"radius"`
}

func compileOrbitGlobe(st scene.Stroke) ([]scene.PatchOp, error) {
	params := orbitGlobeParams{Radius: 75}
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	return []scene.PatchOp{
		{
			OpID: opID(st.StrokeID, 0),
			Op:   scene.OpAdd,
			Path: "/actors/globe",
			Value: map[string]any{
				"kind": "globe",
				"x":    410,
				"y":    150,
			},
			AtMs: st.Timing.StartMs,
		},
		{
			OpID: opID(st.StrokeID, 1),
			Op:   scene.OpAdd,
			Path: "/actors/ufo",
			Value: map[string]any{
				"kind":   "ufo",
				"motion": "orbit",
				"radius": params.Radius,
			},
			AtMs: st.Timing.StartMs + 40,
		},
	}, nil
}

func compileUfoLandingBeat(st scene.Stroke) ([]scene.PatchOp, error) {
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpReplace,
		Path: "/actors/ufo/motion",
		Value: map[string]any{
			"name":        "landing",
			"duration_ms": st.Timing.DurationMs,
			"beam":        true,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type adoptionCurveParams struct {
	Points [][]float64 `json:"points"`
	Trend  string      `json:"trend"`
	Series string      `json:"series"`
	Label  string      `json:"label"`
}

func compileAdoptionCurve(st scene.Stroke) ([]scene.PatchOp, error) {
	params := adoptionCurveParams{Label: "Adoption"}
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if len(params.Points) == 0 {
		params.Points = [][]float64{{0, 90}, {20, 80}, {40, 61}, {60, 48}, {80, 30}, {100, 15}}
	}
	points, err := curvePoints(st, params.Points)
	if err != nil {
		return nil, err
	}
	if params.Trend == "growth" {
		// Smaller y is higher on screen, so growth means non-increasing y.
		coerceGrowthTrend(points)
	}
	value := map[string]any{
		"kind":        "line",
		"label":       params.Label,
		"points":      pointsValue(points),
		"duration_ms": st.Timing.DurationMs,
	}
	if params.Series != "" {
		value["series"] = params.Series
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpAdd,
		Path:  "/charts/adoption_curve",
		Value: value,
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type pieSlice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type pieSaturationParams struct {
	Slices []pieSlice `json:"slices"`
}

func compilePieSaturation(st scene.Stroke) ([]scene.PatchOp, error) {
	var params pieSaturationParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if len(params.Slices) == 0 {
		params.Slices = []pieSlice{{Label: "Adopted", Value: 68}, {Label: "Remaining", Value: 32}}
	}
	slices := renormalizeSlices(params.Slices)
	rows := make([]any, len(slices))
	for i, s := range slices {
		rows[i] = map[string]any{"label": s.Label, "value": s.Value}
	}
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpAdd,
		Path: "/charts/saturation_pie",
		Value: map[string]any{
			"kind":   "pie",
			"slices": rows,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type attachSegment struct {
	Label  string  `json:"label"`
	Target float64 `json:"target"`
	Color  string  `json:"color"`
}

type segmentedAttachParams struct {
	Segments []attachSegment `json:"segments"`
}

func compileSegmentedAttachBars(st scene.Stroke) ([]scene.PatchOp, error) {
	var params segmentedAttachParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if len(params.Segments) == 0 {
		return nil, missingParam(st, "segments")
	}
	rows := make([]any, len(params.Segments))
	for i, seg := range params.Segments {
		rows[i] = map[string]any{
			"label":  seg.Label,
			"target": clampPercent(seg.Target),
			"color":  seg.Color,
		}
	}
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpAdd,
		Path: "/charts/segmented_attach",
		Value: map[string]any{
			"kind":        "bars",
			"segments":    rows,
			"duration_ms": st.Timing.DurationMs,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type annotateParams struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

func compileAnnotateInsight(st scene.Stroke) ([]scene.PatchOp, error) {
	params := annotateParams{Style: "callout"}
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.Text == "" {
		return nil, missingParam(st, "text")
	}
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpAdd,
		Path: "/annotations/" + st.StrokeID,
		Value: map[string]any{
			"text":  params.Text,
			"style": params.Style,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

func compileSceneMorph(st scene.Stroke) ([]scene.PatchOp, error) {
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpReplace,
		Path: "/environment/transition",
		Value: map[string]any{
			"name":        "morph",
			"duration_ms": st.Timing.DurationMs,
			"easing":      st.Timing.Easing,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type renderModeParams struct {
	Mode string `json:"mode"`
}

func compileSetRenderMode(st scene.Stroke) ([]scene.PatchOp, error) {
	var params renderModeParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.Mode == "" {
		return nil, missingParam(st, "mode")
	}
	if params.Mode != "2d" && params.Mode != "3d" {
		return nil, &scene.CompileError{
			StrokeID: st.StrokeID,
			Kind:     st.Kind,
			Code:     scene.CodeInvalidParam,
			Message:  fmt.Sprintf("mode must be 2d or 3d, got %q", params.Mode),
		}
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpReplace,
		Path:  "/render/mode",
		Value: map[string]any{"value": params.Mode},
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type environmentMoodParams struct {
	Mood map[string]any `json:"mood"`
}

func compileSetEnvironmentMood(st scene.Stroke) ([]scene.PatchOp, error) {
	var params environmentMoodParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if len(params.Mood) == 0 {
		return nil, missingParam(st, "mood")
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpReplace,
		Path:  "/environment/mood",
		Value: params.Mood,
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type cameraMoveParams struct {
	Mode       string  `json:"mode"`
	Speed      float64 `json:"speed"`
	Stabilized bool    `json:"stabilized"`
}

func compileSetCameraMove(st scene.Stroke) ([]scene.PatchOp, error) {
	var params cameraMoveParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.Mode == "" {
		return nil, missingParam(st, "mode")
	}
	return []scene.PatchOp{{
		OpID: opID(st.StrokeID, 0),
		Op:   scene.OpReplace,
		Path: "/camera/move",
		Value: map[string]any{
			"mode":        params.Mode,
			"speed":       params.Speed,
			"stabilized":  params.Stabilized,
			"duration_ms": st.Timing.DurationMs,
		},
		AtMs: st.Timing.StartMs,
	}}, nil
}

type lyricsTrackParams struct {
	Words  []string `json:"words"`
	StepMs int      `json:"step_ms"`
}

// compileSetLyricsTrack emits one caption op per word, staggered across the
// stroke's duration.
func compileSetLyricsTrack(st scene.Stroke) ([]scene.PatchOp, error) {
	params := lyricsTrackParams{StepMs: 420}
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if len(params.Words) == 0 {
		return nil, missingParam(st, "words")
	}
	if params.StepMs <= 0 {
		params.StepMs = 420
	}
	ops := make([]scene.PatchOp, 0, len(params.Words))
	for i, word := range params.Words {
		ops = append(ops, scene.PatchOp{
			OpID: opID(st.StrokeID, i),
			Op:   scene.OpAdd,
			Path: fmt.Sprintf("/captions/word-%03d", i),
			Value: map[string]any{
				"text":  word,
				"index": i,
			},
			AtMs: st.Timing.StartMs + i*params.StepMs,
		})
	}
	return ops, nil
}

type emitFxParams struct {
	FxID string `json:"fx_id"`
}

func compileEmitFx(st scene.Stroke) ([]scene.PatchOp, error) {
	var params emitFxParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.FxID == "" {
		return nil, missingParam(st, "fx_id")
	}
	value := map[string]any{"kind": "fx"}
	for k, v := range st.Params {
		if k == "fx_id" {
			continue
		}
		value[k] = v
	}
	value["duration_ms"] = st.Timing.DurationMs
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpAdd,
		Path:  "/effects/" + params.FxID,
		Value: value,
		AtMs:  st.Timing.StartMs,
	}}, nil
}

type materialFxParams struct {
	MaterialID string         `json:"material_id"`
	ShaderID   string         `json:"shader_id"`
	Uniforms   map[string]any `json:"uniforms"`
}

func compileApplyMaterialFx(st scene.Stroke) ([]scene.PatchOp, error) {
	var params materialFxParams
	if err := decodeParams(st, &params); err != nil {
		return nil, err
	}
	if params.MaterialID == "" {
		return nil, missingParam(st, "material_id")
	}
	if params.ShaderID == "" {
		return nil, missingParam(st, "shader_id")
	}
	value := map[string]any{
		"kind":      "recipe",
		"shader_id": params.ShaderID,
	}
	if len(params.Uniforms) > 0 {
		value["uniforms"] = params.Uniforms
	}
	return []scene.PatchOp{{
		OpID:  opID(st.StrokeID, 0),
		Op:    scene.OpAdd,
		Path:  "/materials/" + params.MaterialID,
		Value: value,
		AtMs:  st.Timing.StartMs,
	}}, nil
}
