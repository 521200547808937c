package database

import (
	"encoding/json"
	"time"
)

// Rule is a persisted condition rule: a condition tree bound to a symbol
// and ambient timeframe. The tree is stored as the builder's wire JSON.
type Rule struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Tree      json.RawMessage `json:"tree"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
