package condition

import (
	"errors"
	"fmt"
)

// Path addresses a node as the sequence of child indices walked down from
// the root group. The empty path addresses the root itself.
type Path []int

// Parent returns the path of the addressed node's parent group.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Editor errors. Invalid paths are a caller contract violation; the editor
// reports them as errors rather than validating trees defensively.
var (
	ErrInvalidPath      = errors.New("path does not resolve to an existing node")
	ErrNotGroup         = errors.New("path does not address a group")
	ErrNotLeaf          = errors.New("path does not address a leaf condition")
	ErrGroupDuplication = errors.New("duplicating a group is not supported")
	ErrRemoveRoot       = errors.New("the root group cannot be removed")
)

// OperandSide selects which operand of a leaf an update targets.
type OperandSide string

const (
	SideLeft  OperandSide = "left"
	SideRight OperandSide = "right"
)

// OperandPatch is a partial operand update. Nil fields are left untouched;
// Params entries are merged key-wise into the existing params map.
type OperandPatch struct {
	Type      *OperandType       `json:"type,omitempty"`
	Indicator *string            `json:"indicator,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
	Field     *CandleField       `json:"field,omitempty"`
	Offset    *int               `json:"offset,omitempty"`
	Timeframe *string            `json:"timeframe,omitempty"`
	Value     *float64           `json:"value,omitempty"`
	Value2    *float64           `json:"value2,omitempty"`
}

// Editor applies structural operations to condition trees. Every operation
// returns a new tree: groups along the path to the mutated node are
// replaced, untouched subtrees are shared with the input tree. The input
// tree is never modified.
type Editor struct {
	ids IDGenerator
}

// NewEditor creates an editor using the given id generator for new nodes.
func NewEditor(ids IDGenerator) *Editor {
	return &Editor{ids: ids}
}

// AddCondition appends a default leaf condition (price > EMA 20) to the
// group at groupPath.
func (e *Editor) AddCondition(root *Group, groupPath Path) (*Group, error) {
	return mutateGroup(root, groupPath, func(g *Group) error {
		g.Conditions = append(g.Conditions, e.newDefaultLeaf())
		return nil
	})
}

// AddGroup appends a new empty AND group to the group at groupPath.
func (e *Editor) AddGroup(root *Group, groupPath Path) (*Group, error) {
	return mutateGroup(root, groupPath, func(g *Group) error {
		g.Conditions = append(g.Conditions, &Group{
			ID:         e.ids.NewID(),
			Combinator: CombinatorAnd,
			Conditions: []Node{},
		})
		return nil
	})
}

// UpdateLeafOperand shallow-merges patch into the operand on the given side
// of the leaf at leafPath. Changing the operand's type resets all
// type-specific fields to that type's defaults before the rest of the patch
// applies; changing an indicator's name resets its params to the catalog
// defaults for the new name.
func (e *Editor) UpdateLeafOperand(root *Group, leafPath Path, side OperandSide, patch OperandPatch) (*Group, error) {
	if side != SideLeft && side != SideRight {
		return nil, fmt.Errorf("unknown operand side %q", side)
	}
	return mutateLeaf(root, leafPath, func(l *Leaf) error {
		op := &l.LeftOperand
		if side == SideRight {
			op = &l.RightOperand
		}
		applyOperandPatch(op, patch)
		return nil
	})
}

// UpdateLeafOperator sets the leaf's operator and reconciles the right
// operand's value2: range operators get a value2 (defaulting to 0) and all
// other operators drop it, so no caller can produce a mismatch.
func (e *Editor) UpdateLeafOperator(root *Group, leafPath Path, op Operator) (*Group, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	return mutateLeaf(root, leafPath, func(l *Leaf) error {
		l.Operator = op
		if op.IsRange() {
			if l.RightOperand.Value2 == nil {
				v2 := 0.0
				l.RightOperand.Value2 = &v2
			}
		} else {
			l.RightOperand.Value2 = nil
		}
		return nil
	})
}

// ToggleCombinator flips the group's combinator between AND and OR. The
// flip is well defined for any child count; it only changes semantics when
// the group has more than one child.
func (e *Editor) ToggleCombinator(root *Group, groupPath Path) (*Group, error) {
	return mutateGroup(root, groupPath, func(g *Group) error {
		g.Combinator = g.Combinator.Toggled()
		return nil
	})
}

// DuplicateLeaf clones the leaf at leafPath with a fresh id and inserts the
// clone immediately after the original. Groups cannot be duplicated.
func (e *Editor) DuplicateLeaf(root *Group, leafPath Path) (*Group, error) {
	if len(leafPath) == 0 {
		return nil, ErrGroupDuplication
	}
	idx := leafPath[len(leafPath)-1]
	return mutateGroup(root, leafPath.Parent(), func(g *Group) error {
		if idx < 0 || idx >= len(g.Conditions) {
			return ErrInvalidPath
		}
		leaf, ok := g.Conditions[idx].(*Leaf)
		if !ok {
			return ErrGroupDuplication
		}
		clone := leaf.Clone()
		clone.ID = e.ids.NewID()
		g.Conditions = append(g.Conditions, nil)
		copy(g.Conditions[idx+2:], g.Conditions[idx+1:])
		g.Conditions[idx+1] = clone
		return nil
	})
}

// RemoveNode splices the node at path out of its parent's children,
// dropping its entire subtree. Sibling ids are unaffected.
func (e *Editor) RemoveNode(root *Group, path Path) (*Group, error) {
	if len(path) == 0 {
		return nil, ErrRemoveRoot
	}
	idx := path[len(path)-1]
	return mutateGroup(root, path.Parent(), func(g *Group) error {
		if idx < 0 || idx >= len(g.Conditions) {
			return ErrInvalidPath
		}
		g.Conditions = append(g.Conditions[:idx:idx], g.Conditions[idx+1:]...)
		return nil
	})
}

// ToggleCollapsed flips the view-only collapsed flag of the group at
// groupPath. Evaluation semantics are unaffected.
func (e *Editor) ToggleCollapsed(root *Group, groupPath Path) (*Group, error) {
	return mutateGroup(root, groupPath, func(g *Group) error {
		g.Collapsed = !g.Collapsed
		return nil
	})
}

// NewTree creates an empty AND root group.
func (e *Editor) NewTree() *Group {
	return &Group{
		ID:         e.ids.NewID(),
		Combinator: CombinatorAnd,
		Conditions: []Node{},
	}
}

func (e *Editor) newDefaultLeaf() *Leaf {
	return &Leaf{
		ID:          e.ids.NewID(),
		Tag:         "simple",
		LeftOperand: Operand{Type: OperandPrice},
		Operator:    OpGreater,
		RightOperand: Operand{
			Type:      OperandIndicator,
			Indicator: IndEMA,
			Params:    IndicatorDefaults(IndEMA),
		},
	}
}

// shallowCopyGroup copies a group header and its children slice so the copy
// can be restructured without touching the original. Child subtrees are
// shared until themselves copied.
func shallowCopyGroup(g *Group) *Group {
	cp := *g
	cp.Conditions = make([]Node, len(g.Conditions))
	copy(cp.Conditions, g.Conditions)
	return &cp
}

// mutateGroup rebuilds the spine of groups from root down to path, hands
// the copied target group to fn, and returns the new root. Everything off
// the spine is shared with the input tree.
func mutateGroup(root *Group, path Path, fn func(*Group) error) (*Group, error) {
	newRoot := shallowCopyGroup(root)
	target := newRoot
	for _, idx := range path {
		if idx < 0 || idx >= len(target.Conditions) {
			return nil, ErrInvalidPath
		}
		child, ok := target.Conditions[idx].(*Group)
		if !ok {
			return nil, ErrNotGroup
		}
		childCopy := shallowCopyGroup(child)
		target.Conditions[idx] = childCopy
		target = childCopy
	}
	if err := fn(target); err != nil {
		return nil, err
	}
	return newRoot, nil
}

// mutateLeaf rebuilds the spine down to the leaf's parent, replaces the
// leaf with a deep copy, and hands the copy to fn.
func mutateLeaf(root *Group, leafPath Path, fn func(*Leaf) error) (*Group, error) {
	if len(leafPath) == 0 {
		return nil, ErrNotLeaf
	}
	idx := leafPath[len(leafPath)-1]
	return mutateGroup(root, leafPath.Parent(), func(g *Group) error {
		if idx < 0 || idx >= len(g.Conditions) {
			return ErrInvalidPath
		}
		leaf, ok := g.Conditions[idx].(*Leaf)
		if !ok {
			return ErrNotLeaf
		}
		leafCopy := leaf.Clone()
		if err := fn(leafCopy); err != nil {
			return err
		}
		g.Conditions[idx] = leafCopy
		return nil
	})
}

// applyOperandPatch merges patch into op per the update rules.
func applyOperandPatch(op *Operand, patch OperandPatch) {
	if patch.Type != nil && *patch.Type != op.Type {
		*op = defaultOperand(*patch.Type)
	}
	if patch.Indicator != nil && *patch.Indicator != op.Indicator {
		op.Indicator = *patch.Indicator
		op.Params = IndicatorDefaults(*patch.Indicator)
	}
	if patch.Params != nil {
		if op.Params == nil {
			op.Params = make(map[string]float64, len(patch.Params))
		}
		for k, v := range patch.Params {
			op.Params[k] = v
		}
	}
	if patch.Field != nil {
		op.Field = *patch.Field
	}
	if patch.Offset != nil {
		op.Offset = *patch.Offset
	}
	if patch.Timeframe != nil {
		op.Timeframe = *patch.Timeframe
	}
	if patch.Value != nil {
		op.Value = *patch.Value
	}
	if patch.Value2 != nil {
		v2 := *patch.Value2
		op.Value2 = &v2
	}
}

// defaultOperand returns the default operand for a type, used when an
// update switches an operand's type: previous type-specific fields are
// dropped rather than merged.
func defaultOperand(t OperandType) Operand {
	switch t {
	case OperandIndicator:
		return Operand{
			Type:      OperandIndicator,
			Indicator: IndRSI,
			Params:    IndicatorDefaults(IndRSI),
		}
	case OperandCandle:
		return Operand{Type: OperandCandle, Field: FieldClose, Offset: 0}
	case OperandValue:
		return Operand{Type: OperandValue, Value: 0}
	default:
		return Operand{Type: OperandPrice}
	}
}
