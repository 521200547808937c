package condition

import "fmt"

// Validate checks the structural invariants of a tree: unique ids, known
// operand and operator kinds, value2 present exactly on range operators,
// non-negative candle offsets, catalog-known indicator names and param
// keys. It returns every violation found; a valid tree yields none.
//
// The editor assumes these invariants as a caller contract and does not
// re-check them; Validate belongs at the persistence and execution
// boundaries.
func Validate(root *Group) []string {
	var issues []string
	seen := make(map[string]string)

	root.Walk(func(n Node) bool {
		id := n.NodeID()
		if id == "" {
			issues = append(issues, fmt.Sprintf("%s node has an empty id", nodeName(n)))
		} else if prior, dup := seen[id]; dup {
			issues = append(issues, fmt.Sprintf("id %q used by both %s and %s", id, prior, nodeName(n)))
		} else {
			seen[id] = nodeName(n)
		}

		switch node := n.(type) {
		case *Group:
			if node.Combinator != CombinatorAnd && node.Combinator != CombinatorOr {
				issues = append(issues, fmt.Sprintf("group %s has unknown combinator %q", id, node.Combinator))
			}
		case *Leaf:
			issues = append(issues, validateLeaf(node)...)
		}
		return true
	})

	return issues
}

func validateLeaf(l *Leaf) []string {
	var issues []string

	if !l.Operator.Valid() {
		issues = append(issues, fmt.Sprintf("condition %s has unknown operator %q", l.ID, l.Operator))
	}

	hasValue2 := l.RightOperand.Value2 != nil
	if l.Operator.IsRange() && !hasValue2 {
		issues = append(issues, fmt.Sprintf("condition %s uses %s but its right operand has no value2", l.ID, l.Operator))
	}
	if !l.Operator.IsRange() && hasValue2 {
		issues = append(issues, fmt.Sprintf("condition %s carries value2 but %s is not a range operator", l.ID, l.Operator))
	}

	issues = append(issues, validateOperand(l.ID, "left", l.LeftOperand)...)
	issues = append(issues, validateOperand(l.ID, "right", l.RightOperand)...)
	return issues
}

func validateOperand(leafID, side string, op Operand) []string {
	var issues []string

	switch op.Type {
	case OperandPrice, OperandValue:
	case OperandIndicator:
		if !KnownIndicator(op.Indicator) {
			issues = append(issues, fmt.Sprintf("condition %s %s operand uses unknown indicator %q", leafID, side, op.Indicator))
		} else {
			defaults := indicatorCatalog[op.Indicator]
			for key := range op.Params {
				if _, ok := defaults[key]; !ok {
					issues = append(issues, fmt.Sprintf("condition %s %s operand has unknown %s param %q", leafID, side, op.Indicator, key))
				}
			}
		}
	case OperandCandle:
		switch op.Field {
		case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		default:
			issues = append(issues, fmt.Sprintf("condition %s %s operand has unknown candle field %q", leafID, side, op.Field))
		}
		if op.Offset < 0 {
			issues = append(issues, fmt.Sprintf("condition %s %s operand has negative offset %d", leafID, side, op.Offset))
		}
	default:
		issues = append(issues, fmt.Sprintf("condition %s %s operand has unknown type %q", leafID, side, op.Type))
	}

	return issues
}

func nodeName(n Node) string {
	if n.Kind() == KindGroup {
		return "group"
	}
	return "condition"
}
