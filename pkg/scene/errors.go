package scene

import (
	"errors"
	"fmt"
)

// ErrSceneNotFound is returned when a scene id has no state in the store.
var ErrSceneNotFound = errors.New("scene not found")

// ErrSnapshotNotFound is returned when a snapshot id cannot be resolved.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrLockTimeout is returned when the per-scene write lock cannot be acquired
// within the configured window. Safe to retry.
var ErrLockTimeout = errors.New("scene write lock timeout")

// ConflictError rejects a commit whose base revision no longer matches the
// authoritative revision. The caller must refetch and reconsider intent; the
// store never auto-merges.
type ConflictError struct {
	SceneID         string
	BaseRevision    int64
	CurrentRevision int64
	Summary         Summary
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on scene %s: base %d, current %d",
		e.SceneID, e.BaseRevision, e.CurrentRevision)
}

// CompileError rejects a turn whose strokes cannot be compiled. No state is
// mutated. StrokeID identifies the failing stroke.
type CompileError struct {
	StrokeID string
	Kind     string
	Code     string
	Message  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error on stroke %s (%s): %s", e.StrokeID, e.Kind, e.Message)
}

// Compile error codes.
const (
	CodeUnknownKind   = "unknown_stroke_kind"
	CodeMissingParam  = "missing_required_param"
	CodeInvalidParam  = "invalid_param"
	CodeInvalidTiming = "invalid_timing"
)

// ApplyError fails a batch during application; the store rolls the whole batch
// back.
type ApplyError struct {
	Code    string
	Message string
	Path    string
}

func (e *ApplyError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Apply error codes.
const (
	CodeUnknownCollection = "unknown_collection"
	CodeInvalidPath       = "invalid_path"
	CodeInvalidValue      = "invalid_value"
	CodeBudgetExceeded    = "patch_budget_exceeded"
	CodeSuspiciousRebuild = "suspicious_rebuild"
)
