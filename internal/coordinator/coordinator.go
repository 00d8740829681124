package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

// Coordinator fans out to a fixed analyst panel, optionally runs a
// debate refinement round, then aggregates into one TradeDecision
// (spec.md §4.3).
type Coordinator struct {
	agents       []Agent
	weights      config.AgentWeights
	risk         config.RiskConfig
	deadline     time.Duration
	debate       *DebateEngine
	debateRounds int
	log          zerolog.Logger
}

// New builds a Coordinator over the given analyst panel. deadline is the
// per-agent fan-out timeout (spec.md §4.3 default 2s); debateMaxRounds
// <= 0 disables the debate stage.
func New(agents []Agent, weights config.AgentWeights, risk config.RiskConfig, deadline time.Duration, debateMaxRounds int, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		agents:       agents,
		weights:      weights,
		risk:         risk,
		deadline:     deadline,
		debateRounds: debateMaxRounds,
		log:          log.With().Str("component", "coordinator").Logger(),
	}
	if debateMaxRounds > 0 {
		c.debate = NewDebateEngine(debateMaxRounds)
	}
	return c
}

// Decide produces one TradeDecision for symbol from state, given the
// account's current exposure/position state and the strategy currently
// assigned to the symbol.
func (c *Coordinator) Decide(ctx context.Context, state domain.MarketState, account domain.AccountState, symbol, strategyID, traceID string) domain.TradeDecision {
	outputs := c.fanOut(ctx, state)

	if c.debate != nil {
		outputs = c.debate.Run(ctx, c.agents, state, outputs, c.log)
	}

	return aggregate(outputs, c.weights, c.risk, account, symbol, strategyID, traceID)
}

// fanOut invokes every agent concurrently with a per-agent deadline. A
// missed deadline or agent error produces a neutral AgentOutput rather
// than failing the tick (spec.md §4.3).
func (c *Coordinator) fanOut(ctx context.Context, state domain.MarketState) map[string]domain.AgentOutput {
	outputs := make(map[string]domain.AgentOutput, len(c.agents))
	var mu sync.Mutex

	var g errgroup.Group
	for _, agent := range c.agents {
		agent := agent
		g.Go(func() error {
			out := c.runOne(ctx, agent, state)
			mu.Lock()
			outputs[agent.Name()] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outputs
}

// runOne enforces the per-agent deadline and converts panics-as-errors
// (via recover in a wrapped goroutine) and plain errors into the
// neutral AgentOutput the spec mandates instead of propagating them.
func (c *Coordinator) runOne(ctx context.Context, agent Agent, state domain.MarketState) domain.AgentOutput {
	deadline := c.deadline
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	agentCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct {
		out domain.AgentOutput
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: errAgentPanic}
			}
		}()
		out, err := agent.Analyse(agentCtx, state)
		resultCh <- result{out: out, err: err}
	}()

	select {
	case <-agentCtx.Done():
		c.log.Warn().Str("agent", agent.Name()).Msg("agent deadline exceeded")
		return domain.AgentOutput{AgentName: agent.Name(), Reasons: []string{"timeout"}}
	case r := <-resultCh:
		if r.err != nil {
			c.log.Warn().Err(r.err).Str("agent", agent.Name()).Msg("agent returned error")
			return domain.AgentOutput{AgentName: agent.Name(), Reasons: []string{"error"}}
		}
		return r.out
	}
}

type errAgentPanicType string

func (e errAgentPanicType) Error() string { return string(e) }

const errAgentPanic = errAgentPanicType("agent panicked")
