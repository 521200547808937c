package condition

import (
	"encoding/json"
	"fmt"
)

// The wire format uses the field names the dashboard exchanges:
// leftOperand/operator/rightOperand on a leaf, conditions/combinator/
// collapsed on a group. A group member is a group when it carries a
// "conditions" key, a leaf otherwise.

// UnmarshalJSON decodes a group, discriminating each child into a *Leaf or
// nested *Group and applying catalog defaults for omitted optional fields.
func (g *Group) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string            `json:"id"`
		Combinator Combinator        `json:"combinator"`
		Conditions []json.RawMessage `json:"conditions"`
		Collapsed  bool              `json:"collapsed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode group: %w", err)
	}

	g.ID = raw.ID
	g.Combinator = raw.Combinator
	if g.Combinator == "" {
		g.Combinator = CombinatorAnd
	}
	g.Collapsed = raw.Collapsed
	g.Conditions = make([]Node, 0, len(raw.Conditions))

	for i, childRaw := range raw.Conditions {
		child, err := decodeNode(childRaw)
		if err != nil {
			return fmt.Errorf("failed to decode child %d of group %s: %w", i, g.ID, err)
		}
		g.Conditions = append(g.Conditions, child)
	}

	return nil
}

// decodeNode decides whether raw is a group or a leaf by the presence of
// the "conditions" key.
func decodeNode(raw json.RawMessage) (Node, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	if _, isGroup := probe["conditions"]; isGroup {
		var group Group
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, err
		}
		return &group, nil
	}

	var leaf Leaf
	if err := json.Unmarshal(raw, &leaf); err != nil {
		return nil, err
	}
	applyOperandDefaults(&leaf.LeftOperand)
	applyOperandDefaults(&leaf.RightOperand)
	return &leaf, nil
}

// applyOperandDefaults fills in defaults for optional fields a persisted
// tree may omit: candle field, indicator params.
func applyOperandDefaults(op *Operand) {
	switch op.Type {
	case OperandIndicator:
		if op.Params == nil {
			op.Params = IndicatorDefaults(op.Indicator)
		}
	case OperandCandle:
		if op.Field == "" {
			op.Field = FieldClose
		}
	}
}

// ParseTree decodes a condition tree from its wire JSON.
func ParseTree(data []byte) (*Group, error) {
	var root Group
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// EncodeTree serializes a condition tree to its wire JSON.
func EncodeTree(root *Group) ([]byte, error) {
	return json.Marshal(root)
}
