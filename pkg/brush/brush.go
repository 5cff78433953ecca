// Package brush compiles agent-produced visual strokes into ordered scene
// patch batches. Compilation is a pure function of its input: no wall clock,
// no randomness, no shared state.
package brush

import (
	"fmt"

	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// Capabilities describes what the scene's negotiated schema can represent.
// The translator consults it when a recognized stroke cannot be expressed
// natively.
type Capabilities struct {
	Mode      string // "2d" or "3d"
	Materials bool   // shader-backed materials
	Camera3D  bool   // orbital camera moves
}

// CapabilitiesFor derives capabilities from a scene's committed render mode.
func CapabilitiesFor(s *scene.Scene) Capabilities {
	mode := s.RenderMode()
	return Capabilities{
		Mode:      mode,
		Materials: mode == "3d",
		Camera3D:  mode == "3d",
	}
}

// Compiler turns strokes into patch ops through a closed kind registry.
type Compiler struct {
	handlers   map[string]handler
	translator *Translator
}

// New creates a compiler with the full stroke vocabulary and the default
// compatibility table.
func New() *Compiler {
	return &Compiler{
		handlers:   builtinHandlers(),
		translator: NewTranslator(),
	}
}

// Kinds returns the closed stroke vocabulary, for introspection.
func (c *Compiler) Kinds() []string {
	kinds := make([]string, 0, len(c.handlers))
	for kind := range c.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Compile translates an ordered stroke list into an ordered patch batch.
// The same stroke list always yields the same ops in the same order; op ids
// derive from stroke ids so a re-delivered turn produces identical ids and the
// store can skip duplicates.
//
// A stroke the schema cannot represent degrades through the translator and
// appends a warning; an unknown kind or missing required parameter fails the
// whole batch with a CompileError.
func (c *Compiler) Compile(strokes []scene.Stroke, caps Capabilities) ([]scene.PatchOp, []string, error) {
	var ops []scene.PatchOp
	var warnings []string

	for _, stroke := range strokes {
		h, known := c.handlers[stroke.Kind]
		if !known {
			return nil, nil, &scene.CompileError{
				StrokeID: stroke.StrokeID,
				Kind:     stroke.Kind,
				Code:     scene.CodeUnknownKind,
				Message:  fmt.Sprintf("kind %q is not in the stroke vocabulary", stroke.Kind),
			}
		}

		normalized := stroke
		if normalized.Timing.StartMs < 0 {
			normalized.Timing.StartMs = 0
		}
		if normalized.Timing.DurationMs <= 0 {
			normalized.Timing.DurationMs = defaultDurationMs
		}

		if verdict := c.translator.Check(normalized, caps); verdict != nil {
			if verdict.Drop {
				// A malformed stroke fails the batch whether or not the
				// schema could have represented it; only a valid stroke is
				// quietly degraded away.
				if _, err := h(normalized); err != nil {
					return nil, nil, err
				}
				warnings = append(warnings, verdict.Warning(normalized.StrokeID))
				continue
			}
			warnings = append(warnings, verdict.Warning(normalized.StrokeID))
			normalized = verdict.Rewrite(normalized)
		}

		emitted, err := h(normalized)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, emitted...)
	}

	return scene.NormalizeOps(ops), warnings, nil
}

const defaultDurationMs = 600

// opID mints a deterministic op id from the stroke and its emission index.
func opID(strokeID string, index int) string {
	return fmt.Sprintf("%s#%02d", strokeID, index)
}
