package condition

import (
	"strings"
	"testing"
)

// TestValidateCleanTree tests that a well formed tree yields no issues.
func TestValidateCleanTree(t *testing.T) {
	if issues := Validate(buildTestTree()); len(issues) != 0 {
		t.Errorf("Expected no issues, got %v", issues)
	}
}

// TestValidateDuplicateIDs tests detection of id reuse across the tree.
func TestValidateDuplicateIDs(t *testing.T) {
	root := buildTestTree()
	root.Conditions[1].(*Group).Conditions[0].(*Leaf).ID = "leaf-a"

	issues := Validate(root)
	if !containsIssue(issues, "used by both") {
		t.Errorf("Expected a duplicate id issue, got %v", issues)
	}
}

// TestValidateEmptyID tests detection of nodes without an id.
func TestValidateEmptyID(t *testing.T) {
	root := buildTestTree()
	root.Conditions[0].(*Leaf).ID = ""

	issues := Validate(root)
	if !containsIssue(issues, "empty id") {
		t.Errorf("Expected an empty id issue, got %v", issues)
	}
}

// TestValidateValue2Contract tests that value2 must be present exactly on
// range operators.
func TestValidateValue2Contract(t *testing.T) {
	root := buildTestTree()
	leaf := root.Conditions[0].(*Leaf)

	leaf.Operator = OpBetween
	issues := Validate(root)
	if !containsIssue(issues, "no value2") {
		t.Errorf("Range operator without value2 should be flagged, got %v", issues)
	}

	v2 := 200.0
	leaf.RightOperand.Value2 = &v2
	if issues := Validate(root); len(issues) != 0 {
		t.Errorf("Range operator with value2 should pass, got %v", issues)
	}

	leaf.Operator = OpGreater
	issues = Validate(root)
	if !containsIssue(issues, "not a range operator") {
		t.Errorf("Stray value2 on a comparison should be flagged, got %v", issues)
	}
}

// TestValidateUnknownPieces tests detection of unknown operators, operand
// types, indicators, params and candle fields.
func TestValidateUnknownPieces(t *testing.T) {
	root := buildTestTree()
	leaf := root.Conditions[0].(*Leaf)

	leaf.Operator = Operator("~")
	if issues := Validate(root); !containsIssue(issues, "unknown operator") {
		t.Errorf("Expected an unknown operator issue, got %v", issues)
	}
	leaf.Operator = OpGreater

	leaf.LeftOperand = Operand{Type: OperandType("volume_profile")}
	if issues := Validate(root); !containsIssue(issues, "unknown type") {
		t.Errorf("Expected an unknown operand type issue, got %v", issues)
	}

	leaf.LeftOperand = Operand{Type: OperandIndicator, Indicator: "SUPERTREND"}
	if issues := Validate(root); !containsIssue(issues, "unknown indicator") {
		t.Errorf("Expected an unknown indicator issue, got %v", issues)
	}

	leaf.LeftOperand = Operand{
		Type:      OperandIndicator,
		Indicator: IndRSI,
		Params:    map[string]float64{"smoothing": 3},
	}
	if issues := Validate(root); !containsIssue(issues, "param") {
		t.Errorf("Expected an unknown param issue, got %v", issues)
	}

	leaf.LeftOperand = Operand{Type: OperandCandle, Field: CandleField("wick")}
	if issues := Validate(root); !containsIssue(issues, "candle field") {
		t.Errorf("Expected an unknown candle field issue, got %v", issues)
	}

	leaf.LeftOperand = Operand{Type: OperandCandle, Field: FieldClose, Offset: -1}
	if issues := Validate(root); !containsIssue(issues, "negative offset") {
		t.Errorf("Expected a negative offset issue, got %v", issues)
	}

	root.Conditions[1].(*Group).Combinator = Combinator("XOR")
	if issues := Validate(root); !containsIssue(issues, "unknown combinator") {
		t.Errorf("Expected an unknown combinator issue, got %v", issues)
	}
}

func containsIssue(issues []string, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}
