package scene

import (
	"fmt"
	"sort"
	"strings"
)

// Patch operations.
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// PatchOp is a single low-level scene mutation. AtMs is the presentation
// offset within the turn's timeline, not wall-clock time.
type PatchOp struct {
	OpID  string `json:"op_id"`
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	AtMs  int    `json:"at_ms"`
}

// Path addresses a location inside the scene's entity collections.
type Path struct {
	Collection string
	EntityID   string
	Field      string
}

// ParsePath splits a patch path of the form /collection/entity[/field].
func ParsePath(raw string) (Path, error) {
	parts := make([]string, 0, 3)
	for _, part := range strings.Split(raw, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) < 2 || len(parts) > 3 {
		return Path{}, &ApplyError{Code: CodeInvalidPath, Message: "path must be /collection/entity[/field]", Path: raw}
	}
	p := Path{Collection: parts[0], EntityID: parts[1]}
	if len(parts) == 3 {
		p.Field = parts[2]
	}
	if !knownCollection(p.Collection) {
		return Path{}, &ApplyError{Code: CodeUnknownCollection, Message: fmt.Sprintf("collection %q is not addressable", p.Collection), Path: raw}
	}
	return p, nil
}

func knownCollection(name string) bool {
	for _, known := range KnownCollections {
		if known == name {
			return true
		}
	}
	return false
}

// NormalizeOps clamps negative offsets to zero, mints op ids for ops that lack
// one, and orders the batch by non-decreasing at_ms. The sort is stable so
// ties keep compiler emission order.
func NormalizeOps(ops []PatchOp) []PatchOp {
	out := make([]PatchOp, len(ops))
	copy(out, ops)
	for i := range out {
		if out[i].AtMs < 0 {
			out[i].AtMs = 0
		}
		if out[i].OpID == "" {
			out[i].OpID = fmt.Sprintf("op-%05d", i)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AtMs < out[j].AtMs })
	return out
}

// applyOp mutates the scene in place. Callers apply batches against a clone so
// an error here never surfaces partial state.
func (s *Scene) applyOp(op PatchOp) error {
	path, err := ParsePath(op.Path)
	if err != nil {
		return err
	}

	col, ok := s.Collections[path.Collection]
	if !ok {
		col = Collection{}
		s.Collections[path.Collection] = col
	}

	switch op.Op {
	case OpAdd, OpReplace:
		entity, exists := col[path.EntityID]
		if !exists {
			entity = Entity{}
			col[path.EntityID] = entity
		}
		if path.Field == "" {
			fields, ok := op.Value.(map[string]any)
			if !ok {
				return &ApplyError{Code: CodeInvalidValue, Message: "entity value must be an object", Path: op.Path}
			}
			for k, v := range fields {
				entity[k] = cloneValue(v)
			}
		} else {
			entity[path.Field] = cloneValue(op.Value)
		}
		entity["updated_at_ms"] = op.AtMs
		return nil

	case OpRemove:
		// Removing something already gone is a no-op: repeated delivery of the
		// same logical op must not fail a commit.
		entity, exists := col[path.EntityID]
		if !exists {
			return nil
		}
		if path.Field == "" {
			delete(col, path.EntityID)
			return nil
		}
		delete(entity, path.Field)
		return nil

	default:
		return &ApplyError{Code: CodeInvalidValue, Message: fmt.Sprintf("unsupported op %q", op.Op), Path: op.Path}
	}
}

// ApplyBatch applies an ordered patch batch and advances the revision by 1.
// Ops whose id was already applied to this scene are skipped with a warning,
// keeping re-delivered batches from corrupting state. Callers must pass a
// clone when they need rollback on error.
func (s *Scene) ApplyBatch(ops []PatchOp, policy Policy) ([]PatchOp, []string, error) {
	if policy.MaxOpsPerTurn > 0 && len(ops) > policy.MaxOpsPerTurn {
		return nil, nil, &ApplyError{
			Code:    CodeBudgetExceeded,
			Message: fmt.Sprintf("batch of %d ops exceeds cap %d", len(ops), policy.MaxOpsPerTurn),
		}
	}

	seen := make(map[string]struct{}, len(s.AppliedOps)+len(ops))
	for _, id := range s.AppliedOps {
		seen[id] = struct{}{}
	}

	var warnings []string
	applied := make([]PatchOp, 0, len(ops))
	for _, op := range ops {
		if op.OpID == "" {
			continue
		}
		if _, dup := seen[op.OpID]; dup {
			warnings = append(warnings, "op_duplicate_ignored:"+op.OpID)
			continue
		}
		if err := s.applyOp(op); err != nil {
			return nil, nil, err
		}
		seen[op.OpID] = struct{}{}
		applied = append(applied, op)
	}

	if err := s.enforceCaps(policy); err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.AppliedOps = ids
	s.Revision++
	if len(warnings) > 0 {
		s.Warnings = append(s.Warnings, warnings...)
		if len(s.Warnings) > maxWarningHistory {
			s.Warnings = s.Warnings[len(s.Warnings)-maxWarningHistory:]
		}
	}
	return applied, warnings, nil
}

const maxWarningHistory = 200
