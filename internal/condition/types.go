// Package condition defines the nested trading-condition expression tree
// used by the advanced condition builder: operands that resolve to scalars
// against market data, leaf comparisons between two operands, and
// recursively nested AND/OR groups. The tree is an immutable value; all
// structural changes go through the Editor.
package condition

// OperandType identifies the kind of value source an operand resolves to.
type OperandType string

const (
	OperandPrice     OperandType = "price"     // current traded price
	OperandIndicator OperandType = "indicator" // technical indicator value
	OperandCandle    OperandType = "candle"    // raw candle field with offset
	OperandValue     OperandType = "value"     // literal constant
)

// CandleField is a raw OHLCV field of a candle operand.
type CandleField string

const (
	FieldOpen   CandleField = "open"
	FieldHigh   CandleField = "high"
	FieldLow    CandleField = "low"
	FieldClose  CandleField = "close"
	FieldVolume CandleField = "volume"
)

// Operand describes a value source resolved to a scalar at evaluation time.
// Only the fields relevant to its Type are populated:
//
//	price     - no extra fields
//	indicator - Indicator, Params, optional Timeframe
//	candle    - Field, Offset, optional Timeframe
//	value     - Value (and Value2 when the leaf operator is a range operator)
//
// Timeframe, when set, overrides the tree's ambient timeframe for resolving
// this operand only. Offset 0 is the most recent closed bar, n is n bars back.
type Operand struct {
	Type      OperandType        `json:"type"`
	Indicator string             `json:"indicator,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
	Field     CandleField        `json:"field,omitempty"`
	Offset    int                `json:"offset,omitempty"`
	Timeframe string             `json:"timeframe,omitempty"`
	Value     float64            `json:"value,omitempty"`
	Value2    *float64           `json:"value2,omitempty"`
}

// Clone returns a deep copy of the operand.
func (o Operand) Clone() Operand {
	cp := o
	if o.Params != nil {
		cp.Params = make(map[string]float64, len(o.Params))
		for k, v := range o.Params {
			cp.Params[k] = v
		}
	}
	if o.Value2 != nil {
		v2 := *o.Value2
		cp.Value2 = &v2
	}
	return cp
}

// Operator is the comparison applied between a leaf's two operands.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
	OpBetween      Operator = "between"
	OpOutside      Operator = "outside"
)

// IsComparison reports whether the operator is a plain arithmetic comparison.
func (op Operator) IsComparison() bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// IsCrossover reports whether the operator is stateful, requiring the
// previous evaluation's resolved values.
func (op Operator) IsCrossover() bool {
	return op == OpCrossesAbove || op == OpCrossesBelow
}

// IsRange reports whether the operator requires the right operand to carry
// a second bound in Value2.
func (op Operator) IsRange() bool {
	return op == OpBetween || op == OpOutside
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	return op.IsComparison() || op.IsCrossover() || op.IsRange()
}

// Combinator joins the children of a group.
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// Toggled returns the opposite combinator.
func (c Combinator) Toggled() Combinator {
	if c == CombinatorAnd {
		return CombinatorOr
	}
	return CombinatorAnd
}

// NodeKind discriminates the two node variants of the tree.
type NodeKind int

const (
	KindLeaf NodeKind = iota
	KindGroup
)

// Node is a member of a group's children: either a *Leaf or a *Group.
// Consumers must switch exhaustively on the concrete type.
type Node interface {
	Kind() NodeKind
	NodeID() string
}

// Leaf is a single comparison between two operands.
type Leaf struct {
	ID string `json:"id"`
	// Tag classifies the condition for display purposes only
	// (simple, crossover, threshold, pattern); it is never evaluated.
	Tag          string   `json:"type,omitempty"`
	LeftOperand  Operand  `json:"leftOperand"`
	Operator     Operator `json:"operator"`
	RightOperand Operand  `json:"rightOperand"`
}

// Kind implements Node.
func (l *Leaf) Kind() NodeKind { return KindLeaf }

// NodeID implements Node.
func (l *Leaf) NodeID() string { return l.ID }

// Clone returns a deep copy of the leaf, keeping its id.
func (l *Leaf) Clone() *Leaf {
	cp := *l
	cp.LeftOperand = l.LeftOperand.Clone()
	cp.RightOperand = l.RightOperand.Clone()
	return &cp
}

// Group is an ordered list of leaves and nested groups joined by a
// combinator. The group at depth 0 is the condition tree itself.
type Group struct {
	ID         string     `json:"id"`
	Combinator Combinator `json:"combinator"`
	Conditions []Node     `json:"conditions"`
	// Collapsed is a view-only flag carried in the persisted model;
	// it has no effect on evaluation.
	Collapsed bool `json:"collapsed,omitempty"`
}

// Kind implements Node.
func (g *Group) Kind() NodeKind { return KindGroup }

// NodeID implements Node.
func (g *Group) NodeID() string { return g.ID }

// Clone returns a deep copy of the group and its entire subtree.
func (g *Group) Clone() *Group {
	cp := *g
	cp.Conditions = make([]Node, len(g.Conditions))
	for i, child := range g.Conditions {
		switch n := child.(type) {
		case *Leaf:
			cp.Conditions[i] = n.Clone()
		case *Group:
			cp.Conditions[i] = n.Clone()
		}
	}
	return &cp
}

// Walk calls fn for every node in the subtree rooted at g, including g
// itself, in depth-first order. Walking stops when fn returns false.
func (g *Group) Walk(fn func(Node) bool) bool {
	if !fn(g) {
		return false
	}
	for _, child := range g.Conditions {
		switch n := child.(type) {
		case *Leaf:
			if !fn(n) {
				return false
			}
		case *Group:
			if !n.Walk(fn) {
				return false
			}
		}
	}
	return true
}

// FindByID returns the node with the given id, or nil if absent.
func (g *Group) FindByID(id string) Node {
	var found Node
	g.Walk(func(n Node) bool {
		if n.NodeID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// IDs returns the set of all node ids in the subtree rooted at g.
func (g *Group) IDs() map[string]struct{} {
	ids := make(map[string]struct{})
	g.Walk(func(n Node) bool {
		ids[n.NodeID()] = struct{}{}
		return true
	})
	return ids
}
