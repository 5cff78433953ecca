package scene

import "time"

// Timing positions a stroke on the turn's presentation timeline.
type Timing struct {
	StartMs    int    `json:"start_ms"`
	DurationMs int    `json:"duration_ms"`
	Easing     string `json:"easing,omitempty"`
}

// Stroke is a high-level visual intent produced by an agent. Kind must belong
// to the compiler's closed vocabulary.
type Stroke struct {
	StrokeID string         `json:"stroke_id"`
	Kind     string         `json:"kind"`
	Params   map[string]any `json:"params,omitempty"`
	Timing   Timing         `json:"timing"`
}

// TurnStatus tracks a turn through its lifecycle. A turn is immutable once it
// reaches a terminal status.
type TurnStatus string

const (
	TurnReceived             TurnStatus = "received"
	TurnCompiling            TurnStatus = "compiling"
	TurnApplying             TurnStatus = "applying"
	TurnCommitted            TurnStatus = "committed"
	TurnRejectedConflict     TurnStatus = "rejected_conflict"
	TurnRejectedCompileError TurnStatus = "rejected_compile_error"
)

// Turn is one submission against a scene.
type Turn struct {
	SessionID    string    `json:"session_id"`
	SceneID      string    `json:"scene_id"`
	TurnID       string    `json:"turn_id"`
	BaseRevision int64     `json:"base_revision"`
	RequestedAt  time.Time `json:"requested_at"`
}

// TurnResult is the committed outcome of a turn. The REST response and the
// realtime event carry byte-identical copies of this payload.
type TurnResult struct {
	SessionID string    `json:"session_id"`
	SceneID   string    `json:"scene_id"`
	TurnID    string    `json:"turn_id"`
	Revision  int64     `json:"revision"`
	PatchOps  []PatchOp `json:"patch_ops"`
	Warnings  []string  `json:"warnings"`
}
