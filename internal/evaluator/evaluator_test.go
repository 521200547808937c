package evaluator

import (
	"testing"

	"condition-engine/internal/condition"
)

// stubProvider resolves operands from a fixed table keyed by a short
// description of the operand. Unknown operands are unresolved.
type stubProvider struct {
	values map[string]float64
}

func (p *stubProvider) Resolve(symbol, timeframe string, op condition.Operand) (float64, bool) {
	v, ok := p.values[providerKey(timeframe, op)]
	return v, ok
}

func providerKey(timeframe string, op condition.Operand) string {
	switch op.Type {
	case condition.OperandPrice:
		return timeframe + "/price"
	case condition.OperandIndicator:
		return timeframe + "/" + op.Indicator
	case condition.OperandCandle:
		return timeframe + "/" + string(op.Field)
	}
	return ""
}

func valueOperand(v float64) condition.Operand {
	return condition.Operand{Type: condition.OperandValue, Value: v}
}

func rangeOperand(v, v2 float64) condition.Operand {
	return condition.Operand{Type: condition.OperandValue, Value: v, Value2: &v2}
}

func singleLeafTree(leaf *condition.Leaf) *condition.Group {
	return &condition.Group{
		ID:         "root",
		Combinator: condition.CombinatorAnd,
		Conditions: []condition.Node{leaf},
	}
}

// TestComparisons tests the six plain comparison operators.
func TestComparisons(t *testing.T) {
	eval := New(&stubProvider{values: map[string]float64{"15m/price": 100}})
	state := NewMemoryStateStore()

	cases := []struct {
		op       condition.Operator
		right    float64
		expected bool
	}{
		{condition.OpGreater, 99, true},
		{condition.OpGreater, 100, false},
		{condition.OpLess, 101, true},
		{condition.OpLess, 100, false},
		{condition.OpGreaterEqual, 100, true},
		{condition.OpGreaterEqual, 101, false},
		{condition.OpLessEqual, 100, true},
		{condition.OpLessEqual, 99, false},
		{condition.OpEqual, 100, true},
		{condition.OpEqual, 99, false},
		{condition.OpNotEqual, 99, true},
		{condition.OpNotEqual, 100, false},
	}

	for _, tc := range cases {
		tree := singleLeafTree(&condition.Leaf{
			ID:           "c1",
			LeftOperand:  condition.Operand{Type: condition.OperandPrice},
			Operator:     tc.op,
			RightOperand: valueOperand(tc.right),
		})
		result := eval.Evaluate(tree, "BTCUSDT", "15m", state)
		if result.Fired != tc.expected {
			t.Errorf("100 %s %v: expected %v, got %v", tc.op, tc.right, tc.expected, result.Fired)
		}
	}
}

// TestRangeOperators tests between/outside with ordered and unordered
// bounds.
func TestRangeOperators(t *testing.T) {
	eval := New(&stubProvider{values: map[string]float64{"15m/RSI": 10}})
	state := NewMemoryStateStore()

	leaf := func(op condition.Operator, lo, hi float64) *condition.Group {
		return singleLeafTree(&condition.Leaf{
			ID:           "c1",
			LeftOperand:  condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndRSI},
			Operator:     op,
			RightOperand: rangeOperand(lo, hi),
		})
	}

	if !eval.Evaluate(leaf(condition.OpBetween, 5, 15), "BTCUSDT", "15m", state).Fired {
		t.Error("10 should be between 5 and 15")
	}
	if !eval.Evaluate(leaf(condition.OpBetween, 15, 5), "BTCUSDT", "15m", state).Fired {
		t.Error("Bounds are unordered: 10 should be between 15 and 5")
	}
	if !eval.Evaluate(leaf(condition.OpBetween, 10, 20), "BTCUSDT", "15m", state).Fired {
		t.Error("Bounds are inclusive: 10 should be between 10 and 20")
	}
	if eval.Evaluate(leaf(condition.OpBetween, 11, 20), "BTCUSDT", "15m", state).Fired {
		t.Error("10 should not be between 11 and 20")
	}
	if eval.Evaluate(leaf(condition.OpOutside, 5, 15), "BTCUSDT", "15m", state).Fired {
		t.Error("10 should not be outside 5..15")
	}
	if !eval.Evaluate(leaf(condition.OpOutside, 11, 20), "BTCUSDT", "15m", state).Fired {
		t.Error("10 should be outside 11..20")
	}
}

// TestRangeMissingValue2 tests that a range operator without value2 is
// false rather than an error.
func TestRangeMissingValue2(t *testing.T) {
	eval := New(&stubProvider{values: map[string]float64{"15m/price": 10}})
	tree := singleLeafTree(&condition.Leaf{
		ID:           "c1",
		LeftOperand:  condition.Operand{Type: condition.OperandPrice},
		Operator:     condition.OpBetween,
		RightOperand: valueOperand(5),
	})

	result := eval.Evaluate(tree, "BTCUSDT", "15m", NewMemoryStateStore())
	if result.Fired {
		t.Error("Range without value2 should evaluate false")
	}
}

// TestCrossesAbove tests the stateful crossover lifecycle: first cycle
// false, fire exactly on the sign flip, no refire while still above.
func TestCrossesAbove(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := singleLeafTree(&condition.Leaf{
		ID:           "x1",
		LeftOperand:  condition.Operand{Type: condition.OperandCandle, Field: condition.FieldClose},
		Operator:     condition.OpCrossesAbove,
		RightOperand: condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndEMA},
	})

	step := func(left, right float64) bool {
		provider.values["15m/close"] = left
		provider.values["15m/EMA"] = right
		return eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired
	}

	if step(25, 30) {
		t.Error("First cycle should never fire")
	}
	if step(28, 30) {
		t.Error("Still below: should not fire")
	}
	if !step(32, 30) {
		t.Error("Crossing from below to above should fire")
	}
	if step(40, 30) {
		t.Error("Staying above should not refire")
	}
	if step(29, 30) {
		t.Error("Dropping back below should not fire crosses_above")
	}
	if !step(31, 30) {
		t.Error("A second cross should fire again")
	}
}

// TestCrossesAboveFromEqual tests that touching the reference then
// breaking above counts as a cross.
func TestCrossesAboveFromEqual(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := singleLeafTree(&condition.Leaf{
		ID:           "x1",
		LeftOperand:  condition.Operand{Type: condition.OperandPrice},
		Operator:     condition.OpCrossesAbove,
		RightOperand: valueOperand(0),
	})

	step := func(left, right float64) bool {
		provider.values["15m/price"] = left
		tree.Conditions[0].(*condition.Leaf).RightOperand = valueOperand(right)
		return eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired
	}

	if step(30, 30) {
		t.Error("First cycle should never fire")
	}
	if !step(31, 30) {
		t.Error("Equal then above is a cross")
	}
}

// TestCrossesBelow tests the mirror operator.
func TestCrossesBelow(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := singleLeafTree(&condition.Leaf{
		ID:           "x1",
		LeftOperand:  condition.Operand{Type: condition.OperandPrice},
		Operator:     condition.OpCrossesBelow,
		RightOperand: condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndSMA},
	})

	step := func(left, right float64) bool {
		provider.values["15m/price"] = left
		provider.values["15m/SMA"] = right
		return eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired
	}

	if step(35, 30) {
		t.Error("First cycle should never fire")
	}
	if !step(28, 30) {
		t.Error("Crossing from above to below should fire")
	}
	if step(25, 30) {
		t.Error("Staying below should not refire")
	}
}

// TestCrossoverSameBarIdempotent tests that re-evaluating identical values
// does not refire after a cross.
func TestCrossoverSameBarIdempotent(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := singleLeafTree(&condition.Leaf{
		ID:           "x1",
		LeftOperand:  condition.Operand{Type: condition.OperandPrice},
		Operator:     condition.OpCrossesAbove,
		RightOperand: valueOperand(30),
	})

	provider.values["15m/price"] = 25
	eval.Evaluate(tree, "BTCUSDT", "15m", state)
	provider.values["15m/price"] = 32
	if !eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired {
		t.Fatal("Cross should fire")
	}
	if eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired {
		t.Error("Re-evaluating the same values should not refire")
	}
}

// TestCrossoverStateResetOnGap tests that an unresolved cycle clears the
// crossover memory so the next resolved cycle starts a fresh stream.
func TestCrossoverStateResetOnGap(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := singleLeafTree(&condition.Leaf{
		ID:           "x1",
		LeftOperand:  condition.Operand{Type: condition.OperandPrice},
		Operator:     condition.OpCrossesAbove,
		RightOperand: valueOperand(30),
	})

	provider.values["15m/price"] = 25
	eval.Evaluate(tree, "BTCUSDT", "15m", state)

	delete(provider.values, "15m/price")
	if eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired {
		t.Error("Unresolved cycle should fail closed")
	}
	if _, ok := state.Get("x1"); ok {
		t.Error("Unresolved cycle should clear crossover state")
	}

	// Fresh stream: the next resolved cycle is a first cycle again.
	provider.values["15m/price"] = 32
	if eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired {
		t.Error("First resolved cycle after a gap should not fire")
	}
}

// TestFailClosed tests that unresolved operands make their leaf false but
// leave siblings unaffected.
func TestFailClosed(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{"15m/price": 100}}
	eval := New(provider)

	tree := &condition.Group{
		ID:         "root",
		Combinator: condition.CombinatorOr,
		Conditions: []condition.Node{
			&condition.Leaf{
				ID:           "broken",
				LeftOperand:  condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndADX},
				Operator:     condition.OpGreater,
				RightOperand: valueOperand(25),
			},
			&condition.Leaf{
				ID:           "ok",
				LeftOperand:  condition.Operand{Type: condition.OperandPrice},
				Operator:     condition.OpGreater,
				RightOperand: valueOperand(50),
			},
		},
	}

	result := eval.Evaluate(tree, "BTCUSDT", "15m", NewMemoryStateStore())
	if !result.Fired {
		t.Error("OR group should fire on the resolved sibling")
	}
	if len(result.Leaves) != 2 {
		t.Fatalf("Expected 2 leaf results, got %d", len(result.Leaves))
	}
	broken := result.Leaves[0]
	if broken.Met || broken.Resolved {
		t.Error("Unresolved leaf should be unmet and unresolved")
	}
	if broken.Reason != "operand unresolved" {
		t.Errorf("Expected unresolved reason, got %q", broken.Reason)
	}

	tree.Combinator = condition.CombinatorAnd
	if eval.Evaluate(tree, "BTCUSDT", "15m", NewMemoryStateStore()).Fired {
		t.Error("AND group with an unresolved leaf should not fire")
	}
}

// TestEmptyGroups tests the vacuous truth rules.
func TestEmptyGroups(t *testing.T) {
	eval := New(&stubProvider{values: map[string]float64{}})
	state := NewMemoryStateStore()

	empty := &condition.Group{ID: "root", Combinator: condition.CombinatorAnd, Conditions: []condition.Node{}}
	if !eval.Evaluate(empty, "BTCUSDT", "15m", state).Fired {
		t.Error("Empty AND group should be true")
	}

	empty.Combinator = condition.CombinatorOr
	if eval.Evaluate(empty, "BTCUSDT", "15m", state).Fired {
		t.Error("Empty OR group should be false")
	}
}

// TestNestedCombination tests AND over a nested OR and that every leaf is
// reported even when the outcome is already decided.
func TestNestedCombination(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{
		"15m/price": 100,
		"15m/RSI":   25,
		"1h/EMA":    90,
	}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := &condition.Group{
		ID:         "root",
		Combinator: condition.CombinatorAnd,
		Conditions: []condition.Node{
			&condition.Leaf{
				ID:           "price-floor",
				LeftOperand:  condition.Operand{Type: condition.OperandPrice},
				Operator:     condition.OpGreater,
				RightOperand: valueOperand(200),
			},
			&condition.Group{
				ID:         "either",
				Combinator: condition.CombinatorOr,
				Conditions: []condition.Node{
					&condition.Leaf{
						ID:           "oversold",
						LeftOperand:  condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndRSI},
						Operator:     condition.OpLess,
						RightOperand: valueOperand(30),
					},
					&condition.Leaf{
						ID: "above-trend",
						LeftOperand: condition.Operand{
							Type:      condition.OperandIndicator,
							Indicator: condition.IndEMA,
							Timeframe: "1h",
						},
						Operator:     condition.OpGreater,
						RightOperand: valueOperand(95),
					},
				},
			},
		},
	}

	result := eval.Evaluate(tree, "BTCUSDT", "15m", state)
	if result.Fired {
		t.Error("AND should fail: price is below the floor")
	}
	if len(result.Leaves) != 3 {
		t.Errorf("Every leaf should be evaluated every cycle, got %d results", len(result.Leaves))
	}

	met := make(map[string]bool)
	for _, leaf := range result.Leaves {
		met[leaf.LeafID] = leaf.Met
	}
	if !met["oversold"] {
		t.Error("RSI 25 < 30 should be met")
	}
	if met["above-trend"] {
		t.Error("1h EMA 90 > 95 should not be met: the override timeframe must be used")
	}
	if met["price-floor"] {
		t.Error("Price 100 > 200 should not be met")
	}
}

// TestTimeframeOverride tests that an operand's timeframe wins over the
// ambient one only for that operand.
func TestTimeframeOverride(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{
		"15m/EMA": 100,
		"4h/EMA":  200,
	}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := singleLeafTree(&condition.Leaf{
		ID:           "c1",
		LeftOperand:  condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndEMA, Timeframe: "4h"},
		Operator:     condition.OpGreater,
		RightOperand: condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndEMA},
	})

	result := eval.Evaluate(tree, "BTCUSDT", "15m", state)
	if !result.Fired {
		t.Error("4h EMA 200 should be greater than ambient 15m EMA 100")
	}
	if result.Leaves[0].Left != 200 || result.Leaves[0].Right != 100 {
		t.Errorf("Expected left=200 right=100, got left=%v right=%v",
			result.Leaves[0].Left, result.Leaves[0].Right)
	}
}

// TestSignalScenario tests the end-to-end long setup: RSI oversold AND
// close crossing above the EMA, fired exactly on the crossing cycle.
func TestSignalScenario(t *testing.T) {
	provider := &stubProvider{values: map[string]float64{}}
	eval := New(provider)
	state := NewMemoryStateStore()

	tree := &condition.Group{
		ID:         "root",
		Combinator: condition.CombinatorAnd,
		Conditions: []condition.Node{
			&condition.Leaf{
				ID:           "oversold",
				LeftOperand:  condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndRSI},
				Operator:     condition.OpLess,
				RightOperand: valueOperand(35),
			},
			&condition.Leaf{
				ID:           "cross",
				LeftOperand:  condition.Operand{Type: condition.OperandCandle, Field: condition.FieldClose},
				Operator:     condition.OpCrossesAbove,
				RightOperand: condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndEMA},
			},
		},
	}

	step := func(rsi, close, ema float64) bool {
		provider.values["15m/RSI"] = rsi
		provider.values["15m/close"] = close
		provider.values["15m/EMA"] = ema
		return eval.Evaluate(tree, "BTCUSDT", "15m", state).Fired
	}

	if step(32, 98, 100) {
		t.Error("Cycle 1: below the EMA, nothing to fire")
	}
	if step(33, 99, 100) {
		t.Error("Cycle 2: still below")
	}
	if !step(34, 101, 100) {
		t.Error("Cycle 3: oversold and crossing above should fire")
	}
	if step(34, 103, 100) {
		t.Error("Cycle 4: still above, the cross already fired")
	}
	// RSI leaves the oversold zone while a fresh cross happens: AND fails.
	step(40, 99, 100)
	if step(40, 101, 100) {
		t.Error("Cycle 6: cross without oversold RSI should not fire the rule")
	}
}

// TestMemoryStateStoreSnapshotRestore tests the persistence handoff.
func TestMemoryStateStoreSnapshotRestore(t *testing.T) {
	store := NewMemoryStateStore()
	store.Put("a", CrossState{Left: 1, Right: 2})
	store.Put("b", CrossState{Left: 3, Right: 4})
	store.Delete("b")

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 entry in the snapshot, got %d", len(snap))
	}

	restored := NewMemoryStateStore()
	restored.Restore(snap)
	got, ok := restored.Get("a")
	if !ok || got.Left != 1 || got.Right != 2 {
		t.Errorf("Restored state mismatch: %v ok=%v", got, ok)
	}
}
