package market

import "math"

// Indicator calculators over closed klines. Each returns ok=false when the
// series is too short to produce a value, which the evaluator treats as an
// unresolved operand (fails closed).

// SMA calculates the Simple Moving Average of closes.
func SMA(klines []Kline, period int) (float64, bool) {
	if period <= 0 || len(klines) < period {
		return 0, false
	}

	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		sum += klines[i].Close
	}
	return sum / float64(period), true
}

// EMA calculates the Exponential Moving Average of closes, seeded with the
// SMA of the first period bars.
func EMA(klines []Kline, period int) (float64, bool) {
	if period <= 0 || len(klines) < period {
		return 0, false
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	series := emaSeries(closes, period)
	return series[len(series)-1], true
}

// emaSeries returns the EMA series for values, aligned so element i is the
// EMA at values[i+period-1]. Callers must guarantee len(values) >= period.
func emaSeries(values []float64, period int) []float64 {
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	multiplier := 2.0 / float64(period+1)

	series := make([]float64, 0, len(values)-period+1)
	series = append(series, ema)
	for _, v := range values[period:] {
		ema = (v * multiplier) + (ema * (1 - multiplier))
		series = append(series, ema)
	}
	return series
}

// RSI calculates the Relative Strength Index over closes.
func RSI(klines []Kline, period int) (float64, bool) {
	if period <= 0 || len(klines) < period+1 {
		return 0, false
	}

	gains := 0.0
	losses := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// MACDResult holds the three MACD outputs.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the MACD line, its signal line (EMA of the MACD series)
// and the histogram.
func MACD(klines []Kline, fastPeriod, slowPeriod, signalPeriod int) (MACDResult, bool) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return MACDResult{}, false
	}
	if len(klines) < slowPeriod+signalPeriod {
		return MACDResult{}, false
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	// Align both series on the last len(slow) bars and build the MACD
	// line series.
	offset := len(fast) - len(slow)
	macd := make([]float64, len(slow))
	for i := range slow {
		macd[i] = fast[i+offset] - slow[i]
	}

	if len(macd) < signalPeriod {
		return MACDResult{}, false
	}
	signal := emaSeries(macd, signalPeriod)

	line := macd[len(macd)-1]
	sig := signal[len(signal)-1]
	return MACDResult{Line: line, Signal: sig, Histogram: line - sig}, true
}

// BollingerResult holds the three Bollinger band values.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands calculates the bands as SMA +/- stdDevMultiplier standard
// deviations of closes.
func BollingerBands(klines []Kline, period int, stdDevMultiplier float64) (BollingerResult, bool) {
	middle, ok := SMA(klines, period)
	if !ok {
		return BollingerResult{}, false
	}

	variance := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		diff := klines[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return BollingerResult{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}, true
}

// StochasticResult holds the %K and %D oscillator values.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic calculates the stochastic oscillator, with %D the SMA of the
// last dPeriod %K values.
func Stochastic(klines []Kline, kPeriod, dPeriod int) (StochasticResult, bool) {
	if kPeriod <= 0 || dPeriod <= 0 || len(klines) < kPeriod+dPeriod-1 {
		return StochasticResult{}, false
	}

	kSum := 0.0
	var kLast float64
	for j := dPeriod - 1; j >= 0; j-- {
		window := klines[:len(klines)-j]
		k := percentK(window, kPeriod)
		kSum += k
		if j == 0 {
			kLast = k
		}
	}

	return StochasticResult{K: kLast, D: kSum / float64(dPeriod)}, true
}

func percentK(klines []Kline, kPeriod int) float64 {
	start := len(klines) - kPeriod
	highest := klines[start].High
	lowest := klines[start].Low
	for i := start; i < len(klines); i++ {
		if klines[i].High > highest {
			highest = klines[i].High
		}
		if klines[i].Low < lowest {
			lowest = klines[i].Low
		}
	}

	if highest == lowest {
		return 0
	}
	return ((klines[len(klines)-1].Close - lowest) / (highest - lowest)) * 100
}

// ATR calculates the Average True Range.
func ATR(klines []Kline, period int) (float64, bool) {
	if period <= 0 || len(klines) < period+1 {
		return 0, false
	}

	trSum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		trSum += trueRange(klines[i], klines[i-1])
	}
	return trSum / float64(period), true
}

func trueRange(current, previous Kline) float64 {
	return math.Max(
		current.High-current.Low,
		math.Max(
			math.Abs(current.High-previous.Close),
			math.Abs(current.Low-previous.Close),
		),
	)
}

// ADX calculates the Average Directional Index from Wilder's +DI/-DI over
// the most recent 2*period bars.
func ADX(klines []Kline, period int) (float64, bool) {
	if period <= 0 || len(klines) < 2*period+1 {
		return 0, false
	}

	dxSum := 0.0
	for j := period - 1; j >= 0; j-- {
		window := klines[:len(klines)-j]
		dxSum += directionalIndex(window, period)
	}
	return dxSum / float64(period), true
}

// directionalIndex computes DX over the last period bars of the window.
func directionalIndex(klines []Kline, period int) float64 {
	plusDM := 0.0
	minusDM := 0.0
	trSum := 0.0

	for i := len(klines) - period; i < len(klines); i++ {
		upMove := klines[i].High - klines[i-1].High
		downMove := klines[i-1].Low - klines[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM += upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM += downMove
		}
		trSum += trueRange(klines[i], klines[i-1])
	}

	if trSum == 0 {
		return 0
	}
	plusDI := (plusDM / trSum) * 100
	minusDI := (minusDM / trSum) * 100
	if plusDI+minusDI == 0 {
		return 0
	}
	return math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
}

// VolumeSMA calculates the average volume over a period.
func VolumeSMA(klines []Kline, period int) (float64, bool) {
	if period <= 0 || len(klines) < period {
		return 0, false
	}

	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		sum += klines[i].Volume
	}
	return sum / float64(period), true
}

// VWAP calculates the volume-weighted average price over the whole window,
// using the typical price of each bar.
func VWAP(klines []Kline) (float64, bool) {
	if len(klines) == 0 {
		return 0, false
	}

	pvSum := 0.0
	volSum := 0.0
	for _, k := range klines {
		typical := (k.High + k.Low + k.Close) / 3
		pvSum += typical * k.Volume
		volSum += k.Volume
	}

	if volSum == 0 {
		return 0, false
	}
	return pvSum / volSum, true
}

// OBV calculates On-Balance Volume cumulatively over the window.
func OBV(klines []Kline) (float64, bool) {
	if len(klines) < 2 {
		return 0, false
	}

	obv := 0.0
	for i := 1; i < len(klines); i++ {
		switch {
		case klines[i].Close > klines[i-1].Close:
			obv += klines[i].Volume
		case klines[i].Close < klines[i-1].Close:
			obv -= klines[i].Volume
		}
	}
	return obv, true
}
