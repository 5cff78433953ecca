package scene

// Collection names form a closed vocabulary. A patch addressing any other
// collection fails the whole batch.
const (
	CollectionActors      = "actors"
	CollectionCharts      = "charts"
	CollectionEffects     = "effects"
	CollectionMaterials   = "materials"
	CollectionEnvironment = "environment"
	CollectionCamera      = "camera"
	CollectionRender      = "render"
	CollectionCaptions    = "captions"
	CollectionAnnotations = "annotations"
)

// KnownCollections lists every collection a PatchOp may address, in the order
// they are reported by Summary.
var KnownCollections = []string{
	CollectionActors,
	CollectionCharts,
	CollectionEffects,
	CollectionMaterials,
	CollectionEnvironment,
	CollectionCamera,
	CollectionRender,
	CollectionCaptions,
	CollectionAnnotations,
}

// Entity is a bag of fields owned by one collection slot.
type Entity map[string]any

// Collection maps entity ids to entities.
type Collection map[string]Entity

// Scene is the authoritative, versioned state of one visual session.
// Revision starts at 0 and advances by exactly 1 per committed turn; restores
// set it explicitly from the snapshot blob.
type Scene struct {
	ID          string                `json:"scene_id"`
	Revision    int64                 `json:"revision"`
	Collections map[string]Collection `json:"collections"`
	AppliedOps  []string              `json:"applied_op_ids"`
	Warnings    []string              `json:"warnings,omitempty"`
}

// New creates an empty scene at revision 0 with all known collections present.
func New(sceneID string) *Scene {
	collections := make(map[string]Collection, len(KnownCollections))
	for _, name := range KnownCollections {
		collections[name] = Collection{}
	}
	return &Scene{
		ID:          sceneID,
		Collections: collections,
		AppliedOps:  []string{},
	}
}

// Clone returns a deep copy. Commit applies batches to a clone and swaps it in
// on success, so a failed batch never leaks partial state.
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	out := &Scene{
		ID:          s.ID,
		Revision:    s.Revision,
		Collections: make(map[string]Collection, len(s.Collections)),
		AppliedOps:  append([]string(nil), s.AppliedOps...),
		Warnings:    append([]string(nil), s.Warnings...),
	}
	for name, col := range s.Collections {
		copied := make(Collection, len(col))
		for id, entity := range col {
			copied[id] = cloneEntity(entity)
		}
		out.Collections[name] = copied
	}
	return out
}

func cloneEntity(e Entity) Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// RenderMode reports the negotiated render mode ("2d" or "3d"). Scenes default
// to 2d until a setRenderMode stroke commits.
func (s *Scene) RenderMode() string {
	render, ok := s.Collections[CollectionRender]
	if !ok {
		return "2d"
	}
	state, ok := render["mode"]
	if !ok {
		return "2d"
	}
	if mode, ok := state["value"].(string); ok && mode == "3d" {
		return "3d"
	}
	return "2d"
}

// Summary is the compact scene digest attached to conflict responses and
// snapshot listings.
type Summary struct {
	SceneID         string `json:"scene_id"`
	Revision        int64  `json:"revision"`
	EntityCount     int    `json:"entity_count"`
	ChartCount      int    `json:"chart_count"`
	AnnotationCount int    `json:"annotation_count"`
}

// Summarize builds the digest for the current state.
func (s *Scene) Summarize() Summary {
	total := 0
	for _, col := range s.Collections {
		total += len(col)
	}
	return Summary{
		SceneID:         s.ID,
		Revision:        s.Revision,
		EntityCount:     total,
		ChartCount:      len(s.Collections[CollectionCharts]),
		AnnotationCount: len(s.Collections[CollectionAnnotations]),
	}
}
