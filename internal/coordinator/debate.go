package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// DebateParticipant is implemented by agents that can revise their
// verdict once shown a summary of the other agents' reasoning
// (spec.md §4.3 debate mode). Agents that don't implement it keep
// their first-round AgentOutput across every debate round.
type DebateParticipant interface {
	Agent
	Revise(ctx context.Context, state domain.MarketState, previous domain.AgentOutput, dissentSummary string) (domain.AgentOutput, error)
}

// DebateEngine refines agent outputs across at most maxRounds rounds.
// It never changes the aggregation math (aggregate is unaware a debate
// happened); it only replaces the inputs the final weighted vote sees.
type DebateEngine struct {
	maxRounds int
}

func NewDebateEngine(maxRounds int) *DebateEngine {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &DebateEngine{maxRounds: maxRounds}
}

// Run repeatedly identifies agents whose score sign disagrees with the
// majority and, for those implementing DebateParticipant, asks them to
// revise given a summary of the majority's reasons. Stops early once
// every sign agrees (consensus) or positions stop changing between
// rounds.
func (d *DebateEngine) Run(ctx context.Context, agents []Agent, state domain.MarketState, outputs map[string]domain.AgentOutput, log zerolog.Logger) map[string]domain.AgentOutput {
	participants := make(map[string]DebateParticipant, len(agents))
	for _, a := range agents {
		if dp, ok := a.(DebateParticipant); ok {
			participants[a.Name()] = dp
		}
	}

	for round := 1; round <= d.maxRounds; round++ {
		majoritySign := majoritySign(outputs)
		dissenters := dissentingAgents(outputs, majoritySign)
		if len(dissenters) == 0 {
			log.Debug().Int("round", round).Msg("debate consensus reached")
			break
		}

		summary := dissentSummary(outputs, majoritySign)
		changed := false
		for _, name := range dissenters {
			dp, ok := participants[name]
			if !ok {
				continue
			}
			revised, err := dp.Revise(ctx, state, outputs[name], summary)
			if err != nil {
				log.Warn().Err(err).Str("agent", name).Msg("debate revision failed, keeping prior output")
				continue
			}
			if revised.Score != outputs[name].Score {
				changed = true
			}
			outputs[name] = revised
		}

		if !changed {
			log.Debug().Int("round", round).Msg("debate positions stabilised")
			break
		}
	}

	return outputs
}

func majoritySign(outputs map[string]domain.AgentOutput) int {
	positive, negative := 0, 0
	for _, out := range outputs {
		switch {
		case out.Score > 0:
			positive++
		case out.Score < 0:
			negative++
		}
	}
	if positive >= negative {
		return 1
	}
	return -1
}

func dissentingAgents(outputs map[string]domain.AgentOutput, majoritySign int) []string {
	var names []string
	for name, out := range outputs {
		sign := 0
		switch {
		case out.Score > 0:
			sign = 1
		case out.Score < 0:
			sign = -1
		}
		if sign != 0 && sign != majoritySign {
			names = append(names, name)
		}
	}
	return names
}

func dissentSummary(outputs map[string]domain.AgentOutput, majoritySign int) string {
	var parts []string
	for name, out := range outputs {
		sign := 0
		switch {
		case out.Score > 0:
			sign = 1
		case out.Score < 0:
			sign = -1
		}
		if sign == majoritySign {
			parts = append(parts, fmt.Sprintf("%s (score %.2f): %s", name, out.Score, strings.Join(out.Reasons, "; ")))
		}
	}
	return strings.Join(parts, " | ")
}
