package market

import (
	"sync"
	"time"

	"condition-engine/internal/condition"
)

const defaultSeriesLimit = 200

// klineFetcher is the part of Client the provider needs; split out so
// tests can substitute canned series.
type klineFetcher interface {
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
}

// Provider resolves condition operands against kline series, caching each
// (symbol, timeframe) series for a short window so one evaluation cycle
// hits the API at most once per series.
type Provider struct {
	fetcher klineFetcher
	limit   int
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cachedSeries
}

type cachedSeries struct {
	klines    []Kline
	fetchedAt time.Time
}

// NewProvider creates a provider on top of a kline client. ttl bounds how
// long a fetched series is reused.
func NewProvider(client *Client, ttl time.Duration) *Provider {
	return &Provider{
		fetcher: client,
		limit:   defaultSeriesLimit,
		ttl:     ttl,
		cache:   make(map[string]cachedSeries),
	}
}

// Resolve implements evaluator.MarketDataProvider. The timeframe is the
// effective one for the operand; ok is false when the series cannot be
// fetched or is too short for the requested indicator or offset.
func (p *Provider) Resolve(symbol, timeframe string, op condition.Operand) (float64, bool) {
	klines, err := p.series(symbol, timeframe)
	if err != nil || len(klines) == 0 {
		return 0, false
	}

	return ResolveOperand(klines, op)
}

// ResolveOperand resolves an operand against a fixed window of closed
// klines. The backtesting CLI uses it directly on historical slices.
func ResolveOperand(klines []Kline, op condition.Operand) (float64, bool) {
	if len(klines) == 0 {
		return 0, false
	}
	switch op.Type {
	case condition.OperandPrice:
		return klines[len(klines)-1].Close, true
	case condition.OperandCandle:
		return resolveCandle(klines, op)
	case condition.OperandIndicator:
		return resolveIndicator(klines, op)
	}
	return 0, false
}

func (p *Provider) series(symbol, timeframe string) ([]Kline, error) {
	key := symbol + "|" + timeframe
	now := time.Now()

	p.mu.Lock()
	entry, ok := p.cache[key]
	p.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < p.ttl {
		return entry.klines, nil
	}

	klines, err := p.fetcher.GetKlines(symbol, timeframe, p.limit)
	if err != nil {
		return nil, err
	}
	klines = ClosedKlines(klines, now)

	p.mu.Lock()
	p.cache[key] = cachedSeries{klines: klines, fetchedAt: now}
	p.mu.Unlock()

	return klines, nil
}

func resolveCandle(klines []Kline, op condition.Operand) (float64, bool) {
	idx := len(klines) - 1 - op.Offset
	if op.Offset < 0 || idx < 0 {
		return 0, false
	}

	k := klines[idx]
	switch op.Field {
	case condition.FieldOpen:
		return k.Open, true
	case condition.FieldHigh:
		return k.High, true
	case condition.FieldLow:
		return k.Low, true
	case condition.FieldClose:
		return k.Close, true
	case condition.FieldVolume:
		return k.Volume, true
	}
	return 0, false
}

func resolveIndicator(klines []Kline, op condition.Operand) (float64, bool) {
	params := condition.IndicatorDefaults(op.Indicator)
	for k, v := range op.Params {
		params[k] = v
	}
	period := intParam(params, "period")

	switch op.Indicator {
	case condition.IndRSI:
		return RSI(klines, period)
	case condition.IndSMA:
		return SMA(klines, period)
	case condition.IndEMA:
		return EMA(klines, period)
	case condition.IndMACD, condition.IndMACDSignal, condition.IndMACDLine:
		macd, ok := MACD(klines, intParam(params, "fastPeriod"), intParam(params, "slowPeriod"), intParam(params, "signalPeriod"))
		if !ok {
			return 0, false
		}
		switch op.Indicator {
		case condition.IndMACDSignal:
			return macd.Signal, true
		case condition.IndMACDLine:
			return macd.Line, true
		default:
			return macd.Histogram, true
		}
	case condition.IndBBUpper, condition.IndBBMiddle, condition.IndBBLower:
		bb, ok := BollingerBands(klines, period, params["stdDev"])
		if !ok {
			return 0, false
		}
		switch op.Indicator {
		case condition.IndBBUpper:
			return bb.Upper, true
		case condition.IndBBLower:
			return bb.Lower, true
		default:
			return bb.Middle, true
		}
	case condition.IndStochK, condition.IndStochD:
		stoch, ok := Stochastic(klines, intParam(params, "kPeriod"), intParam(params, "dPeriod"))
		if !ok {
			return 0, false
		}
		if op.Indicator == condition.IndStochD {
			return stoch.D, true
		}
		return stoch.K, true
	case condition.IndATR:
		return ATR(klines, period)
	case condition.IndADX:
		return ADX(klines, period)
	case condition.IndVolumeSMA:
		return VolumeSMA(klines, period)
	case condition.IndVWAP:
		return VWAP(klines)
	case condition.IndOBV:
		return OBV(klines)
	}
	return 0, false
}

func intParam(params map[string]float64, key string) int {
	return int(params[key])
}
