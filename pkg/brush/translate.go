package brush

import (
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// Degradation reason codes carried in turn warnings.
const (
	ReasonMaterialRequires3D = "material_requires_3d"
	ReasonCameraOrbit2D      = "camera_orbit_requires_3d"
	ReasonVolumetricFx2D     = "volumetric_fx_requires_3d"
)

// Verdict is the translator's decision for one stroke the schema cannot
// represent natively: either drop it, or rewrite it to the nearest supported
// equivalent. Both record a machine-readable warning so callers can tell a
// degraded turn from a fully realized one.
type Verdict struct {
	Drop    bool
	Reason  string
	rewrite func(scene.Stroke) scene.Stroke
}

// Warning renders the reason code for the turn's warning list.
func (v *Verdict) Warning(strokeID string) string {
	if v.Drop {
		return "translation_dropped:" + v.Reason + ":" + strokeID
	}
	return "translation_substituted:" + v.Reason + ":" + strokeID
}

// Rewrite returns the substitute stroke. Only valid when Drop is false.
func (v *Verdict) Rewrite(st scene.Stroke) scene.Stroke {
	if v.rewrite == nil {
		return st
	}
	return v.rewrite(st)
}

type translationRule func(st scene.Stroke, caps Capabilities) *Verdict

// Translator is the compatibility side table consulted when a recognized
// stroke exceeds the negotiated scene schema. It keeps the happy-path
// compiler free of mode special-casing.
type Translator struct {
	rules map[string]translationRule
}

// NewTranslator builds the default table.
func NewTranslator() *Translator {
	return &Translator{rules: map[string]translationRule{
		// Shader-backed materials have no 2D analogue. Losing one costs
		// visual richness, never the turn.
		"applyMaterialFx": func(st scene.Stroke, caps Capabilities) *Verdict {
			if caps.Materials {
				return nil
			}
			return &Verdict{Drop: true, Reason: ReasonMaterialRequires3D}
		},
		// Orbital camera moves collapse to a stabilized pan on flat scenes.
		"setCameraMove": func(st scene.Stroke, caps Capabilities) *Verdict {
			mode, _ := st.Params["mode"].(string)
			if caps.Camera3D || !isOrbitalCamera(mode) {
				return nil
			}
			return &Verdict{
				Reason: ReasonCameraOrbit2D,
				rewrite: func(st scene.Stroke) scene.Stroke {
					params := make(map[string]any, len(st.Params))
					for k, v := range st.Params {
						params[k] = v
					}
					params["mode"] = "presentation-pan"
					st.Params = params
					return st
				},
			}
		},
		// Volumetric effects degrade to their flat overlay counterparts.
		"emitFx": func(st scene.Stroke, caps Capabilities) *Verdict {
			fxID, _ := st.Params["fx_id"].(string)
			substitute, volumetric := volumetricFxFallbacks[fxID]
			if caps.Mode == "3d" || !volumetric {
				return nil
			}
			return &Verdict{
				Reason: ReasonVolumetricFx2D,
				rewrite: func(st scene.Stroke) scene.Stroke {
					params := make(map[string]any, len(st.Params))
					for k, v := range st.Params {
						params[k] = v
					}
					params["fx_id"] = substitute
					st.Params = params
					return st
				},
			}
		},
	}}
}

var volumetricFxFallbacks = map[string]string{
	"caustic_pattern":  "caustic_flat",
	"volumetric_light": "glow_overlay",
}

func isOrbitalCamera(mode string) bool {
	switch mode {
	case "glide-orbit", "orbit", "dolly-orbit":
		return true
	}
	return false
}

// Check returns nil when the stroke is natively representable.
func (t *Translator) Check(st scene.Stroke, caps Capabilities) *Verdict {
	rule, ok := t.rules[st.Kind]
	if !ok {
		return nil
	}
	return rule(st, caps)
}
