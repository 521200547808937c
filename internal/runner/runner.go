// Package runner schedules rule evaluation: each enabled rule is evaluated
// against the latest closed bars of its symbol on a fixed poll interval,
// with crossover state carried per (rule, symbol) stream across cycles.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"condition-engine/internal/condition"
	"condition-engine/internal/database"
	"condition-engine/internal/evaluator"
	"condition-engine/internal/events"
)

// RuleSource lists the rules to evaluate. *database.DB satisfies it.
type RuleSource interface {
	ListEnabledRules(ctx context.Context) ([]database.Rule, error)
}

// Runner drives the evaluation loop.
type Runner struct {
	rules    RuleSource
	eval     *evaluator.Evaluator
	provider evaluator.MarketDataProvider
	redis    *redis.Client
	bus      *events.EventBus
	logger   zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	streams map[string]*stream
}

// stream is the retained per-rule evaluation context.
type stream struct {
	state     evaluator.StateStore
	clearable interface{ Clear() }
	lastFired bool
	treeSeen  time.Time
}

// New creates a runner. redisClient may be nil, in which case crossover
// state lives in memory only and restarts begin fresh streams.
func New(rules RuleSource, provider evaluator.MarketDataProvider, redisClient *redis.Client, bus *events.EventBus, logger zerolog.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		rules:    rules,
		eval:     evaluator.New(provider),
		provider: provider,
		redis:    redisClient,
		bus:      bus,
		logger:   logger.With().Str("component", "runner").Logger(),
		interval: interval,
		streams:  make(map[string]*stream),
	}
}

// Run polls until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("evaluation runner started")
	r.bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{}})

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("evaluation runner stopped")
			r.bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{}})
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	rules, err := r.rules.ListEnabledRules(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list enabled rules")
		r.bus.PublishError("runner", "failed to list enabled rules: "+err.Error())
		return
	}

	active := make(map[string]struct{}, len(rules))
	for i := range rules {
		rule := &rules[i]
		active[rule.ID] = struct{}{}
		r.evaluateRule(rule)
	}
	r.dropStaleStreams(active)
}

// evaluateRule runs one cycle for a rule. Re-evaluating the same closed
// bar is harmless: crossover state converges after the first cycle on a
// bar, so a cross still fires at most once.
func (r *Runner) evaluateRule(rule *database.Rule) {
	root, err := condition.ParseTree(rule.Tree)
	if err != nil {
		r.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("rule has malformed tree")
		r.bus.PublishError("runner", "rule "+rule.ID+" has malformed tree")
		return
	}

	st := r.streamFor(rule)
	result := r.eval.Evaluate(root, rule.Symbol, rule.Timeframe, st.state)

	price, _ := r.provider.Resolve(rule.Symbol, rule.Timeframe, condition.Operand{Type: condition.OperandPrice})

	r.bus.Publish(events.Event{
		Type: events.EventEvaluationUpdate,
		Data: map[string]interface{}{
			"rule_id":   rule.ID,
			"rule_name": rule.Name,
			"symbol":    rule.Symbol,
			"timeframe": rule.Timeframe,
			"fired":     result.Fired,
			"leaves":    result.Leaves,
			"price":     price,
		},
	})

	if result.Fired && !st.lastFired {
		r.logger.Info().
			Str("rule_id", rule.ID).
			Str("symbol", rule.Symbol).
			Float64("price", price).
			Msg("rule fired")
		r.bus.PublishSignal(rule.ID, rule.Name, rule.Symbol, rule.Timeframe, price)
	}
	st.lastFired = result.Fired
}

// streamFor returns the retained stream for a rule, resetting its
// crossover memory when the rule's tree has changed since the last cycle.
func (r *Runner) streamFor(rule *database.Rule) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[rule.ID]
	if !ok {
		store := database.NewRedisCrossStateStore(r.redis, rule.ID, rule.Symbol)
		st = &stream{state: store, clearable: store, treeSeen: rule.UpdatedAt}
		r.streams[rule.ID] = st
		return st
	}

	if rule.UpdatedAt.After(st.treeSeen) {
		st.clearable.Clear()
		st.lastFired = false
		st.treeSeen = rule.UpdatedAt
	}
	return st
}

func (r *Runner) dropStaleStreams(active map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, st := range r.streams {
		if _, ok := active[id]; !ok {
			st.clearable.Clear()
			delete(r.streams, id)
		}
	}
}
