// Package market supplies the market data behind operand resolution: a
// Binance futures kline client, a short-lived series cache, the indicator
// calculators, and a Provider tying them together.
package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Kline represents a single closed candlestick.
type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// Client fetches klines from the Binance futures REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a market data client. An empty baseURL targets the
// production futures API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKlines fetches up to limit most recent klines for a symbol and
// interval. The last element may be the still-open bar; ClosedKlines trims
// it.
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/fapi/v1/klines?%s", c.baseURL, params.Encode())

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline row %d", i)
		}
		klines[i] = Kline{
			OpenTime:  int64(raw[0].(float64)),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(raw[6].(float64)),
		}
	}

	return klines, nil
}

// ClosedKlines drops the trailing bar when it has not closed yet, so
// evaluation only ever sees completed bars.
func ClosedKlines(klines []Kline, now time.Time) []Kline {
	if len(klines) == 0 {
		return klines
	}
	last := klines[len(klines)-1]
	if last.CloseTime > now.UnixMilli() {
		return klines[:len(klines)-1]
	}
	return klines
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	}
	return 0
}
