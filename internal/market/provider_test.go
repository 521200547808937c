package market

import (
	"errors"
	"testing"
	"time"

	"condition-engine/internal/condition"
)

// fakeFetcher serves a canned series and counts fetches.
type fakeFetcher struct {
	klines []Kline
	err    error
	calls  int
}

func (f *fakeFetcher) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	f.calls++
	return f.klines, f.err
}

func newTestProvider(fetcher *fakeFetcher, ttl time.Duration) *Provider {
	return &Provider{
		fetcher: fetcher,
		limit:   defaultSeriesLimit,
		ttl:     ttl,
		cache:   make(map[string]cachedSeries),
	}
}

func testKlines(n int) []Kline {
	klines := make([]Kline, n)
	now := time.Now().UnixMilli()
	for i := range klines {
		c := 100 + float64(i)
		klines[i] = Kline{
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    50,
			CloseTime: now - int64(n-i)*60_000,
		}
	}
	return klines
}

// TestResolveOperandCandle tests candle field and offset addressing.
func TestResolveOperandCandle(t *testing.T) {
	klines := testKlines(10)

	v, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandCandle, Field: condition.FieldClose})
	if !ok || v != 109 {
		t.Errorf("Offset 0 should address the most recent bar close 109, got %v ok=%v", v, ok)
	}

	v, ok = ResolveOperand(klines, condition.Operand{Type: condition.OperandCandle, Field: condition.FieldClose, Offset: 3})
	if !ok || v != 106 {
		t.Errorf("Offset 3 should address close 106, got %v ok=%v", v, ok)
	}

	v, ok = ResolveOperand(klines, condition.Operand{Type: condition.OperandCandle, Field: condition.FieldHigh, Offset: 1})
	if !ok || v != 109 {
		t.Errorf("Expected high 109 at offset 1, got %v ok=%v", v, ok)
	}

	if _, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandCandle, Field: condition.FieldClose, Offset: 10}); ok {
		t.Error("Offset beyond the window should not resolve")
	}
	if _, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandCandle, Field: condition.FieldClose, Offset: -1}); ok {
		t.Error("Negative offset should not resolve")
	}
	if _, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandCandle, Field: "wick"}); ok {
		t.Error("Unknown candle field should not resolve")
	}
}

// TestResolveOperandPrice tests that the price operand is the last close.
func TestResolveOperandPrice(t *testing.T) {
	klines := testKlines(5)

	v, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandPrice})
	if !ok || v != 104 {
		t.Errorf("Price should resolve to the last close 104, got %v ok=%v", v, ok)
	}

	if _, ok := ResolveOperand(nil, condition.Operand{Type: condition.OperandPrice}); ok {
		t.Error("Empty window should not resolve")
	}
}

// TestResolveOperandIndicator tests catalog default merging and explicit
// param overrides.
func TestResolveOperandIndicator(t *testing.T) {
	klines := testKlines(30)

	// Omitted params fall back to the catalog default period 20.
	v, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndSMA})
	if !ok {
		t.Fatal("SMA with default params should resolve over 30 bars")
	}
	want, _ := SMA(klines, 20)
	if v != want {
		t.Errorf("Expected catalog default period 20, got value %v want %v", v, want)
	}

	// Explicit params win.
	v, ok = ResolveOperand(klines, condition.Operand{
		Type:      condition.OperandIndicator,
		Indicator: condition.IndSMA,
		Params:    map[string]float64{"period": 5},
	})
	if !ok {
		t.Fatal("SMA(5) should resolve")
	}
	want, _ = SMA(klines, 5)
	if v != want {
		t.Errorf("Explicit period should win, got %v want %v", v, want)
	}

	if _, ok := ResolveOperand(klines[:3], condition.Operand{Type: condition.OperandIndicator, Indicator: condition.IndSMA}); ok {
		t.Error("Insufficient history should not resolve")
	}
	if _, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandIndicator, Indicator: "SUPERTREND"}); ok {
		t.Error("Unknown indicator should not resolve")
	}
}

// TestResolveOperandMACDOutputs tests that the three MACD catalog names
// select the matching output.
func TestResolveOperandMACDOutputs(t *testing.T) {
	klines := testKlines(60)
	macd, ok := MACD(klines, 12, 26, 9)
	if !ok {
		t.Fatal("MACD should resolve over 60 bars")
	}

	cases := map[string]float64{
		condition.IndMACD:       macd.Histogram,
		condition.IndMACDSignal: macd.Signal,
		condition.IndMACDLine:   macd.Line,
	}
	for name, want := range cases {
		v, ok := ResolveOperand(klines, condition.Operand{Type: condition.OperandIndicator, Indicator: name})
		if !ok || v != want {
			t.Errorf("%s: expected %v, got %v ok=%v", name, want, v, ok)
		}
	}
}

// TestProviderCaching tests that one series fetch serves repeated resolves
// within the ttl and is refetched after it expires.
func TestProviderCaching(t *testing.T) {
	fetcher := &fakeFetcher{klines: testKlines(30)}
	provider := newTestProvider(fetcher, time.Minute)

	op := condition.Operand{Type: condition.OperandPrice}
	for i := 0; i < 5; i++ {
		if _, ok := provider.Resolve("BTCUSDT", "15m", op); !ok {
			t.Fatal("Resolve should succeed")
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("Expected 1 fetch within the ttl, got %d", fetcher.calls)
	}

	// Another timeframe is its own series.
	provider.Resolve("BTCUSDT", "1h", op)
	if fetcher.calls != 2 {
		t.Errorf("Expected a separate fetch per timeframe, got %d", fetcher.calls)
	}

	// Expired entries are refetched.
	expired := newTestProvider(fetcher, -time.Second)
	expired.Resolve("BTCUSDT", "15m", op)
	expired.Resolve("BTCUSDT", "15m", op)
	if fetcher.calls != 4 {
		t.Errorf("Expected a fetch per resolve once expired, got %d", fetcher.calls)
	}
}

// TestProviderFetchError tests that fetch failures surface as unresolved.
func TestProviderFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("rate limited")}
	provider := newTestProvider(fetcher, time.Minute)

	if _, ok := provider.Resolve("BTCUSDT", "15m", condition.Operand{Type: condition.OperandPrice}); ok {
		t.Error("A failed fetch should leave the operand unresolved")
	}
}

// TestClosedKlines tests that a still-open trailing bar is dropped.
func TestClosedKlines(t *testing.T) {
	now := time.Now()
	klines := []Kline{
		{Close: 100, CloseTime: now.Add(-2 * time.Minute).UnixMilli()},
		{Close: 101, CloseTime: now.Add(-1 * time.Minute).UnixMilli()},
		{Close: 102, CloseTime: now.Add(5 * time.Minute).UnixMilli()},
	}

	closed := ClosedKlines(klines, now)
	if len(closed) != 2 {
		t.Fatalf("Expected the open bar to be trimmed, got %d bars", len(closed))
	}
	if closed[len(closed)-1].Close != 101 {
		t.Errorf("Last closed bar should be 101, got %v", closed[len(closed)-1].Close)
	}

	allClosed := ClosedKlines(klines[:2], now)
	if len(allClosed) != 2 {
		t.Errorf("Fully closed series should be untouched, got %d bars", len(allClosed))
	}
	if len(ClosedKlines(nil, now)) != 0 {
		t.Error("Empty series should stay empty")
	}
}
