package scene

import "fmt"

// threeDKinds marks entity kinds that count against the 3D budget.
var threeDKinds = map[string]struct{}{
	"mesh":        {},
	"camera":      {},
	"light":       {},
	"environment": {},
}

// Policy caps the damage a single turn can do to a scene.
type Policy struct {
	MaxOpsPerTurn  int `yaml:"max_ops_per_turn" json:"max_ops_per_turn"`
	MaxEntities2D  int `yaml:"max_entities_2d" json:"max_entities_2d"`
	MaxEntities3D  int `yaml:"max_entities_3d" json:"max_entities_3d"`
	MaxAnnotations int `yaml:"max_annotations" json:"max_annotations"`
}

// DefaultPolicy mirrors the production caps.
func DefaultPolicy() Policy {
	return Policy{
		MaxOpsPerTurn:  120,
		MaxEntities2D:  400,
		MaxEntities3D:  250,
		MaxAnnotations: 200,
	}
}

// Rebuild detection thresholds. A follow-up turn that creates and destroys
// entities faster than these allow is treated as an accidental full rebuild.
const (
	rebuildMinCreates  = 3
	rebuildMinDestroys = 3
	rebuildChurnFloor  = 8
	rebuildChurnRatio  = 0.4
)

// LooksLikeRebuild reports whether the batch's entity churn against the
// current state resembles a wholesale scene rebuild: at least three entity
// creates and three destroys whose sum exceeds max(8, 40% of the existing
// entity count). An empty scene never trips it; an intentional rebuild
// declares itself through the turn's rebuild flag.
func (s *Scene) LooksLikeRebuild(ops []PatchOp) bool {
	existing := 0
	for _, col := range s.Collections {
		existing += len(col)
	}
	if existing == 0 {
		return false
	}

	var creates, destroys int
	for _, op := range ops {
		path, err := ParsePath(op.Path)
		if err != nil || path.Field != "" {
			continue
		}
		switch op.Op {
		case OpAdd:
			creates++
		case OpRemove:
			destroys++
		}
	}
	churn := creates + destroys
	threshold := rebuildChurnFloor
	if scaled := int(float64(existing) * rebuildChurnRatio); scaled > threshold {
		threshold = scaled
	}
	return destroys >= rebuildMinDestroys && creates >= rebuildMinCreates && churn > threshold
}

func (s *Scene) enforceCaps(policy Policy) error {
	var twoD, threeD int
	for _, col := range s.Collections {
		for _, entity := range col {
			kind, _ := entity["kind"].(string)
			if _, is3D := threeDKinds[kind]; is3D {
				threeD++
			} else {
				twoD++
			}
		}
	}
	if policy.MaxEntities2D > 0 && twoD > policy.MaxEntities2D {
		return &ApplyError{Code: CodeBudgetExceeded, Message: fmt.Sprintf("2D entity count %d exceeds cap %d", twoD, policy.MaxEntities2D)}
	}
	if policy.MaxEntities3D > 0 && threeD > policy.MaxEntities3D {
		return &ApplyError{Code: CodeBudgetExceeded, Message: fmt.Sprintf("3D entity count %d exceeds cap %d", threeD, policy.MaxEntities3D)}
	}
	if policy.MaxAnnotations > 0 && len(s.Collections[CollectionAnnotations]) > policy.MaxAnnotations {
		return &ApplyError{Code: CodeBudgetExceeded, Message: fmt.Sprintf("annotation count exceeds cap %d", policy.MaxAnnotations)}
	}
	return nil
}
