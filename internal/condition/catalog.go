package condition

// Indicator names accepted in an indicator operand.
const (
	IndRSI        = "RSI"
	IndSMA        = "SMA"
	IndEMA        = "EMA"
	IndMACD       = "MACD" // histogram output
	IndMACDSignal = "MACD_SIGNAL"
	IndMACDLine   = "MACD_LINE"
	IndBBUpper    = "BB_UPPER"
	IndBBMiddle   = "BB_MIDDLE"
	IndBBLower    = "BB_LOWER"
	IndStochK     = "STOCH_K"
	IndStochD     = "STOCH_D"
	IndATR        = "ATR"
	IndADX        = "ADX"
	IndVolumeSMA  = "VOLUME_SMA"
	IndVWAP       = "VWAP"
	IndOBV        = "OBV"
)

// indicatorCatalog maps each indicator name to its default parameters.
// An indicator operand's params keys must stay in sync with this catalog
// unless the user explicitly overrides a value.
var indicatorCatalog = map[string]map[string]float64{
	IndRSI:        {"period": 14},
	IndSMA:        {"period": 20},
	IndEMA:        {"period": 20},
	IndMACD:       {"fastPeriod": 12, "slowPeriod": 26, "signalPeriod": 9},
	IndMACDSignal: {"fastPeriod": 12, "slowPeriod": 26, "signalPeriod": 9},
	IndMACDLine:   {"fastPeriod": 12, "slowPeriod": 26, "signalPeriod": 9},
	IndBBUpper:    {"period": 20, "stdDev": 2},
	IndBBMiddle:   {"period": 20, "stdDev": 2},
	IndBBLower:    {"period": 20, "stdDev": 2},
	IndStochK:     {"kPeriod": 14, "dPeriod": 3},
	IndStochD:     {"kPeriod": 14, "dPeriod": 3},
	IndATR:        {"period": 14},
	IndADX:        {"period": 14},
	IndVolumeSMA:  {"period": 20},
	IndVWAP:       {},
	IndOBV:        {},
}

// KnownIndicator reports whether name is in the catalog.
func KnownIndicator(name string) bool {
	_, ok := indicatorCatalog[name]
	return ok
}

// IndicatorDefaults returns a fresh copy of the default params for name.
// Unknown names get an empty map.
func IndicatorDefaults(name string) map[string]float64 {
	defaults := indicatorCatalog[name]
	params := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		params[k] = v
	}
	return params
}

// IndicatorNames returns all catalog names. Order is not specified.
func IndicatorNames() []string {
	names := make([]string, 0, len(indicatorCatalog))
	for name := range indicatorCatalog {
		names = append(names, name)
	}
	return names
}
