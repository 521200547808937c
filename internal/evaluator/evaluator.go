// Package evaluator executes condition trees against market data. It
// implements the contract the condition model promises to any consumer:
// comparisons resolve both operands at the same instant, range bounds are
// unordered, crossovers are stateful per leaf and fire only on an actual
// sign change of left minus right, and anything unresolved fails closed.
package evaluator

import (
	"fmt"

	"condition-engine/internal/condition"
)

// MarketDataProvider resolves price, indicator and candle operands to
// scalars. The timeframe passed in is already the effective one for the
// operand (its own override, or the evaluation's ambient timeframe). ok is
// false when the operand cannot be resolved, e.g. on insufficient history.
type MarketDataProvider interface {
	Resolve(symbol, timeframe string, op condition.Operand) (value float64, ok bool)
}

// Evaluator evaluates condition trees through a market data provider.
// Crossover memory lives in the StateStore handed to each call, so one
// evaluator can serve many (tree, symbol) streams.
type Evaluator struct {
	provider MarketDataProvider
}

// New creates an evaluator on top of the given provider.
func New(provider MarketDataProvider) *Evaluator {
	return &Evaluator{provider: provider}
}

// LeafResult is the outcome of one leaf condition in a cycle, kept for
// dashboard display of which conditions are met.
type LeafResult struct {
	LeafID   string  `json:"leaf_id"`
	Met      bool    `json:"met"`
	Resolved bool    `json:"resolved"`
	Left     float64 `json:"left"`
	Right    float64 `json:"right"`
	Reason   string  `json:"reason,omitempty"`
}

// Result is the outcome of evaluating a tree for one cycle.
type Result struct {
	Fired  bool         `json:"fired"`
	Leaves []LeafResult `json:"leaves"`
}

// Evaluate runs one evaluation cycle of the tree for a symbol. The ambient
// timeframe applies to every operand without its own override. Every leaf
// is visited every cycle, regardless of the boolean outcome of its
// siblings, so that crossover state stays current; AND/OR results are
// therefore order-independent.
func (e *Evaluator) Evaluate(root *condition.Group, symbol, timeframe string, state StateStore) Result {
	var result Result
	result.Fired = e.evalGroup(root, symbol, timeframe, state, &result.Leaves)
	return result
}

func (e *Evaluator) evalGroup(g *condition.Group, symbol, timeframe string, state StateStore, out *[]LeafResult) bool {
	anyTrue := false
	allTrue := true

	for _, child := range g.Conditions {
		var met bool
		switch n := child.(type) {
		case *condition.Leaf:
			met = e.evalLeaf(n, symbol, timeframe, state, out)
		case *condition.Group:
			met = e.evalGroup(n, symbol, timeframe, state, out)
		default:
			met = false
		}
		if met {
			anyTrue = true
		} else {
			allTrue = false
		}
	}

	// An empty group is vacuously true under AND and has no witness under
	// OR.
	if g.Combinator == condition.CombinatorOr {
		return anyTrue
	}
	return allTrue
}

func (e *Evaluator) evalLeaf(l *condition.Leaf, symbol, timeframe string, state StateStore, out *[]LeafResult) bool {
	left, leftOK := e.resolveOperand(symbol, timeframe, l.LeftOperand)
	right, rightOK := e.resolveOperand(symbol, timeframe, l.RightOperand)

	res := LeafResult{LeafID: l.ID, Left: left, Right: right}

	if !leftOK || !rightOK {
		// Fail closed, and forget crossover memory: after a gap in
		// resolution the next resolved bar starts a fresh stream.
		if l.Operator.IsCrossover() {
			state.Delete(l.ID)
		}
		res.Reason = "operand unresolved"
		*out = append(*out, res)
		return false
	}
	res.Resolved = true

	switch {
	case l.Operator.IsCrossover():
		res.Met = e.evalCrossover(l, left, right, state)
	case l.Operator.IsRange():
		res.Met = evalRange(l.Operator, left, l.RightOperand)
	default:
		res.Met = compareValues(left, l.Operator, right)
	}

	if res.Met {
		res.Reason = fmt.Sprintf("%s %s %s (%.4f %s %.4f)",
			describeOperand(l.LeftOperand), l.Operator, describeOperand(l.RightOperand),
			left, l.Operator, right)
	}

	*out = append(*out, res)
	return res.Met
}

// evalCrossover fires only when the sign of left-right flips across the
// previous sample: non-positive to positive for crosses_above, the mirror
// for crosses_below. With no prior sample nothing can cross, so the first
// cycle of a stream is always false.
func (e *Evaluator) evalCrossover(l *condition.Leaf, left, right float64, state StateStore) bool {
	prev, hasPrev := state.Get(l.ID)
	state.Put(l.ID, CrossState{Left: left, Right: right})

	if !hasPrev {
		return false
	}

	switch l.Operator {
	case condition.OpCrossesAbove:
		return prev.Left <= prev.Right && left > right
	case condition.OpCrossesBelow:
		return prev.Left >= prev.Right && left < right
	}
	return false
}

// evalRange treats value and value2 as unordered bounds.
func evalRange(op condition.Operator, left float64, right condition.Operand) bool {
	if right.Value2 == nil {
		return false
	}
	lo, hi := right.Value, *right.Value2
	if lo > hi {
		lo, hi = hi, lo
	}
	between := left >= lo && left <= hi
	if op == condition.OpOutside {
		return !between
	}
	return between
}

func (e *Evaluator) resolveOperand(symbol, ambient string, op condition.Operand) (float64, bool) {
	if op.Type == condition.OperandValue {
		return op.Value, true
	}
	timeframe := ambient
	if op.Timeframe != "" {
		timeframe = op.Timeframe
	}
	return e.provider.Resolve(symbol, timeframe, op)
}

func compareValues(a float64, op condition.Operator, b float64) bool {
	switch op {
	case condition.OpGreater:
		return a > b
	case condition.OpLess:
		return a < b
	case condition.OpGreaterEqual:
		return a >= b
	case condition.OpLessEqual:
		return a <= b
	case condition.OpEqual:
		return a == b
	case condition.OpNotEqual:
		return a != b
	}
	return false
}

func describeOperand(op condition.Operand) string {
	switch op.Type {
	case condition.OperandPrice:
		return "LTP"
	case condition.OperandValue:
		return fmt.Sprintf("%.2f", op.Value)
	case condition.OperandIndicator:
		if period, ok := op.Params["period"]; ok {
			return fmt.Sprintf("%s(%d)", op.Indicator, int(period))
		}
		return op.Indicator
	case condition.OperandCandle:
		if op.Offset > 0 {
			return fmt.Sprintf("%s[-%d]", op.Field, op.Offset)
		}
		return string(op.Field)
	}
	return "unknown"
}
