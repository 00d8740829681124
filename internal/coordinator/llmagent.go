package coordinator

import (
	"context"
	"fmt"

	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/llm"
	"github.com/cryptoctl/tradeengine/internal/resilience"
)

// llmServiceName is the resilience.ServiceBreakers key the LLM bridge
// trips independently of the exchange/database breakers (SPEC_FULL.md
// domain-stack table: gobreaker covers "exchange/LLM/db").
const llmServiceName = "llm"

// llmRevision is the structured reply an LLM-backed agent asks for.
type llmRevision struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// LLMAgent wraps a rule-based Agent with an optional LLM second opinion
// (spec.md §6 `ai` section). When client is nil (no `ai.base_url`
// configured), it is a pure pass-through to base; when the LLM call
// fails or its circuit breaker is open, it also falls back to base's
// output rather than failing the tick.
type LLMAgent struct {
	base         Agent
	client       *llm.Client
	breakers     *resilience.ServiceBreakers
	systemPrompt string
}

// NewLLMAgent wraps base. breakers may be nil, in which case the LLM
// call runs without circuit-breaker protection (only safe for tests).
func NewLLMAgent(base Agent, client *llm.Client, breakers *resilience.ServiceBreakers) *LLMAgent {
	return &LLMAgent{
		base:     base,
		client:   client,
		breakers: breakers,
		systemPrompt: "You are a crypto derivatives trading analyst. Given the market " +
			"summary and a rule-based analyst's verdict, return a JSON object " +
			`{"score": -1..1, "confidence": 0..1, "reasons": ["..."]} ` +
			"reflecting your own assessment. Do not include any text outside the JSON object.",
	}
}

func (a *LLMAgent) Name() string { return a.base.Name() }

func (a *LLMAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	baseOut, err := a.base.Analyse(ctx, state)
	if err != nil || a.client == nil {
		return baseOut, err
	}

	prompt := promptFor(state, baseOut)

	call := func() (any, error) {
		content, err := a.client.CompleteWithSystem(ctx, a.systemPrompt, prompt)
		if err != nil {
			return nil, err
		}
		var rev llmRevision
		if err := a.client.ParseJSONResponse(content, &rev); err != nil {
			return nil, err
		}
		return rev, nil
	}

	var raw any
	if a.breakers != nil {
		raw, err = a.breakers.Call(llmServiceName, call)
	} else {
		raw, err = call()
	}
	if err != nil {
		return baseOut, nil
	}

	rev, ok := raw.(llmRevision)
	if !ok || len(rev.Reasons) == 0 {
		return baseOut, nil
	}

	return domain.AgentOutput{
		AgentName:     a.Name(),
		Score:         clamp(rev.Score, -1, 1),
		Confidence:    clamp(rev.Confidence, 0, 1),
		Reasons:       rev.Reasons,
		SubIndicators: baseOut.SubIndicators,
	}, nil
}

func promptFor(state domain.MarketState, baseOut domain.AgentOutput) string {
	return fmt.Sprintf(
		"Symbol: %s\nPrice: %.2f\nIndicators: %+v\nRule-based %s verdict: score=%.2f confidence=%.2f reasons=%v",
		state.Symbol, state.Price, state.Indicators, baseOut.AgentName, baseOut.Score, baseOut.Confidence, baseOut.Reasons,
	)
}
