package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRuleNotFound is returned when a rule id does not exist.
var ErrRuleNotFound = errors.New("rule not found")

// CreateRule inserts a new rule, assigning an id when absent.
func (db *DB) CreateRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO rules (id, user_id, name, symbol, timeframe, tree, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID, rule.UserID, rule.Name, rule.Symbol, rule.Timeframe,
		rule.Tree, rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	return err
}

// GetRule retrieves a rule by id.
func (db *DB) GetRule(ctx context.Context, id string) (*Rule, error) {
	var rule Rule
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, name, symbol, timeframe, tree, enabled, created_at, updated_at
		 FROM rules WHERE id = $1`, id).Scan(
		&rule.ID, &rule.UserID, &rule.Name, &rule.Symbol, &rule.Timeframe,
		&rule.Tree, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules retrieves all rules of a user, newest first.
func (db *DB) ListRules(ctx context.Context, userID string) ([]Rule, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, name, symbol, timeframe, tree, enabled, created_at, updated_at
		 FROM rules WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListEnabledRules retrieves every enabled rule across users, for the
// evaluation runner.
func (db *DB) ListEnabledRules(ctx context.Context) ([]Rule, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, name, symbol, timeframe, tree, enabled, created_at, updated_at
		 FROM rules WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

// UpdateRule updates a rule's mutable fields.
func (db *DB) UpdateRule(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()
	tag, err := db.Pool.Exec(ctx,
		`UPDATE rules SET name = $2, symbol = $3, timeframe = $4, tree = $5, enabled = $6, updated_at = $7
		 WHERE id = $1`,
		rule.ID, rule.Name, rule.Symbol, rule.Timeframe, rule.Tree, rule.Enabled, rule.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule by id.
func (db *DB) DeleteRule(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.Name, &rule.Symbol, &rule.Timeframe,
			&rule.Tree, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
