package coordinator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

type fakeDebater struct {
	fakeAgent
	revisions []domain.AgentOutput // popped front-to-back on each Revise call
	calls     int
}

func (f *fakeDebater) Revise(ctx context.Context, state domain.MarketState, previous domain.AgentOutput, dissentSummary string) (domain.AgentOutput, error) {
	f.calls++
	if f.calls-1 < len(f.revisions) {
		return f.revisions[f.calls-1], nil
	}
	return previous, nil
}

func TestDebateEngine_ConsensusStopsImmediately(t *testing.T) {
	outputs := map[string]domain.AgentOutput{
		"a": {AgentName: "a", Score: 0.5},
		"b": {AgentName: "b", Score: 0.4},
	}
	engine := NewDebateEngine(3)
	result := engine.Run(context.Background(), panelOf(&fakeAgent{name: "a"}, &fakeAgent{name: "b"}), domain.MarketState{}, outputs, zerolog.Nop())
	assert.Equal(t, 0.5, result["a"].Score)
	assert.Equal(t, 0.4, result["b"].Score)
}

func TestDebateEngine_DissenterWithoutReviseKeepsOriginalOutput(t *testing.T) {
	outputs := map[string]domain.AgentOutput{
		"a": {AgentName: "a", Score: 0.5},
		"b": {AgentName: "b", Score: 0.4},
		"c": {AgentName: "c", Score: -0.6},
	}
	agents := panelOf(&fakeAgent{name: "a"}, &fakeAgent{name: "b"}, &fakeAgent{name: "c"})
	engine := NewDebateEngine(2)
	result := engine.Run(context.Background(), agents, domain.MarketState{}, outputs, zerolog.Nop())
	assert.Equal(t, -0.6, result["c"].Score)
}

func TestDebateEngine_DissenterWithReviseIsUpdated(t *testing.T) {
	dissenter := &fakeDebater{
		fakeAgent: fakeAgent{name: "c"},
		revisions: []domain.AgentOutput{{AgentName: "c", Score: 0.1, Reasons: []string{"reconsidered"}}},
	}
	outputs := map[string]domain.AgentOutput{
		"a": {AgentName: "a", Score: 0.5},
		"b": {AgentName: "b", Score: 0.4},
		"c": {AgentName: "c", Score: -0.6},
	}
	agents := panelOf(&fakeAgent{name: "a"}, &fakeAgent{name: "b"}, dissenter)
	engine := NewDebateEngine(3)
	result := engine.Run(context.Background(), agents, domain.MarketState{}, outputs, zerolog.Nop())
	assert.Equal(t, 0.1, result["c"].Score)
	assert.GreaterOrEqual(t, dissenter.calls, 1)
}

func TestDebateEngine_StopsWhenPositionsStabilise(t *testing.T) {
	dissenter := &fakeDebater{
		fakeAgent: fakeAgent{name: "c"},
		revisions: []domain.AgentOutput{
			{AgentName: "c", Score: -0.6}, // same as before: no change
		},
	}
	outputs := map[string]domain.AgentOutput{
		"a": {AgentName: "a", Score: 0.5},
		"b": {AgentName: "b", Score: 0.4},
		"c": {AgentName: "c", Score: -0.6},
	}
	agents := panelOf(&fakeAgent{name: "a"}, &fakeAgent{name: "b"}, dissenter)
	engine := NewDebateEngine(5)
	engine.Run(context.Background(), agents, domain.MarketState{}, outputs, zerolog.Nop())
	assert.Equal(t, 1, dissenter.calls, "debate should stop after the first no-op revision")
}

func TestMajoritySign_TiesFavourPositive(t *testing.T) {
	outputs := map[string]domain.AgentOutput{
		"a": {Score: 0.5},
		"b": {Score: -0.5},
	}
	assert.Equal(t, 1, majoritySign(outputs))
}

func TestDissentSummary_OnlyIncludesMajorityAlignedAgents(t *testing.T) {
	outputs := map[string]domain.AgentOutput{
		"a": {AgentName: "a", Score: 0.5, Reasons: []string{"bullish macro"}},
		"b": {AgentName: "b", Score: -0.5, Reasons: []string{"bearish rsi"}},
	}
	summary := dissentSummary(outputs, 1)
	assert.Contains(t, summary, "bullish macro")
	assert.NotContains(t, summary, "bearish rsi")
}
