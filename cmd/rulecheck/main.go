// rulecheck validates a condition tree JSON file and optionally replays it
// bar-by-bar against live-fetched klines, printing every bar where the
// tree fires. Crossover state is carried across bars exactly as the
// runner carries it across cycles.
//
// Usage:
//
//	rulecheck -file rule.json [-symbol BTCUSDT -interval 15m -bars 200]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"condition-engine/internal/condition"
	"condition-engine/internal/evaluator"
	"condition-engine/internal/market"
)

func main() {
	var (
		file     = flag.String("file", "", "path to condition tree JSON (required)")
		symbol   = flag.String("symbol", "", "replay symbol, e.g. BTCUSDT (omit to only validate)")
		interval = flag.String("interval", "15m", "ambient timeframe for the replay")
		bars     = flag.Int("bars", 200, "number of klines to fetch for the replay")
		baseURL  = flag.String("base-url", "", "market data base URL (default Binance futures)")
	)
	flag.Parse()

	if *file == "" {
		fmt.Println("rulecheck: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Printf("rulecheck: cannot read %s: %v\n", *file, err)
		os.Exit(1)
	}

	root, err := condition.ParseTree(data)
	if err != nil {
		fmt.Printf("INVALID: malformed tree: %v\n", err)
		os.Exit(1)
	}

	issues := condition.Validate(root)
	if len(issues) > 0 {
		fmt.Printf("INVALID: %d issue(s)\n", len(issues))
		for _, issue := range issues {
			fmt.Println("  -", issue)
		}
		os.Exit(1)
	}

	leaves := 0
	groups := 0
	root.Walk(func(n condition.Node) bool {
		if n.Kind() == condition.KindLeaf {
			leaves++
		} else {
			groups++
		}
		return true
	})
	fmt.Printf("VALID: %d group(s), %d condition(s)\n", groups, leaves)

	if *symbol == "" {
		return
	}

	client := market.NewClient(*baseURL)
	klines, err := client.GetKlines(*symbol, *interval, *bars)
	if err != nil {
		fmt.Printf("rulecheck: failed to fetch klines: %v\n", err)
		os.Exit(1)
	}
	klines = market.ClosedKlines(klines, time.Now())
	fmt.Printf("replaying %d closed bars of %s %s\n", len(klines), *symbol, *interval)

	// The replay resolves every timeframe, overrides included, against
	// the single fetched series; multi-timeframe trees need the live
	// runner.
	provider := &replayProvider{}
	eval := evaluator.New(provider)
	state := evaluator.NewMemoryStateStore()
	fired := 0

	for i := 1; i <= len(klines); i++ {
		provider.window = klines[:i]
		result := eval.Evaluate(root, *symbol, *interval, state)
		if result.Fired {
			fired++
			bar := provider.window[len(provider.window)-1]
			fmt.Printf("  FIRE at %s close=%.4f\n",
				time.UnixMilli(bar.CloseTime).UTC().Format(time.RFC3339), bar.Close)
		}
	}

	fmt.Printf("done: fired on %d of %d bars\n", fired, len(klines))
}

// replayProvider resolves operands against the kline prefix visible to
// the current replay step.
type replayProvider struct {
	window []market.Kline
}

func (p *replayProvider) Resolve(symbol, timeframe string, op condition.Operand) (float64, bool) {
	return market.ResolveOperand(p.window, op)
}
