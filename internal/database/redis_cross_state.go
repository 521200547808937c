package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"condition-engine/internal/evaluator"
)

const (
	// CrossStateKeyPrefix is the prefix for crossover state hashes.
	// Format: cond:cross:{ruleID}:{symbol}, one hash field per leaf id.
	CrossStateKeyPrefix = "cond:cross"

	// CrossStateTTL bounds how long stale crossover memory survives. A
	// stream that has not evaluated for this long starts fresh, which is
	// the documented behavior after state loss.
	CrossStateTTL = 7 * 24 * time.Hour

	redisOpTimeout = 2 * time.Second
)

// RedisCrossStateStore persists crossover memory for one (rule, symbol)
// evaluation stream in a Redis hash, so crossovers survive process
// restarts. When Redis is unreachable it falls back to in-memory state and
// keeps evaluating; state written during the outage is lost on restart,
// which degrades to a fresh stream rather than an error.
type RedisCrossStateStore struct {
	client      *redis.Client
	key         string
	fallback    *evaluator.MemoryStateStore
	redisDown   atomic.Bool
	loggedError atomic.Bool
}

// NewRedisCrossStateStore creates a store scoped to one rule and symbol.
// A nil client runs purely in memory.
func NewRedisCrossStateStore(client *redis.Client, ruleID, symbol string) *RedisCrossStateStore {
	return &RedisCrossStateStore{
		client:   client,
		key:      fmt.Sprintf("%s:%s:%s", CrossStateKeyPrefix, ruleID, symbol),
		fallback: evaluator.NewMemoryStateStore(),
	}
}

// Get implements evaluator.StateStore.
func (s *RedisCrossStateStore) Get(leafID string) (evaluator.CrossState, bool) {
	if s.client == nil || s.redisDown.Load() {
		return s.fallback.Get(leafID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.HGet(ctx, s.key, leafID).Result()
	if err == redis.Nil {
		return evaluator.CrossState{}, false
	}
	if err != nil {
		s.markDown(err)
		return s.fallback.Get(leafID)
	}

	var state evaluator.CrossState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return evaluator.CrossState{}, false
	}
	return state, true
}

// Put implements evaluator.StateStore. Every write also lands in the
// in-memory fallback so a Redis outage mid-stream keeps prior samples.
func (s *RedisCrossStateStore) Put(leafID string, state evaluator.CrossState) {
	s.fallback.Put(leafID, state)

	if s.client == nil || s.redisDown.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.key, leafID, data)
	pipe.Expire(ctx, s.key, CrossStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markDown(err)
	}
}

// Delete implements evaluator.StateStore.
func (s *RedisCrossStateStore) Delete(leafID string) {
	s.fallback.Delete(leafID)

	if s.client == nil || s.redisDown.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.HDel(ctx, s.key, leafID).Err(); err != nil {
		s.markDown(err)
	}
}

// Clear drops all crossover memory for the stream, e.g. when its rule is
// deleted or its tree replaced.
func (s *RedisCrossStateStore) Clear() {
	s.fallback.Restore(nil)

	if s.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key).Err(); err != nil && err != redis.Nil {
		s.markDown(err)
	}
}

// Recover re-enables Redis after an outage, typically from a periodic
// health check.
func (s *RedisCrossStateStore) Recover() {
	s.redisDown.Store(false)
	s.loggedError.Store(false)
}

func (s *RedisCrossStateStore) markDown(err error) {
	s.redisDown.Store(true)
	if s.loggedError.CompareAndSwap(false, true) {
		log.Printf("Redis unavailable for %s, falling back to in-memory crossover state: %v", s.key, err)
	}
}

// NewRedisClient creates a Redis client from address and credentials and
// verifies connectivity. Callers may pass the client to
// NewRedisCrossStateStore per stream.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}
