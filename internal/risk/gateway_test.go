package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/apperr"
	"github.com/cryptoctl/tradeengine/internal/breaker"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/idempotency"
)

// fakeBreakerStore satisfies breaker.Store with no persistence.
type fakeBreakerStore struct{}

func (fakeBreakerStore) Save(ctx context.Context, state domain.CircuitBreakerState) error { return nil }
func (fakeBreakerStore) LoadAll(ctx context.Context) ([]domain.CircuitBreakerState, error) {
	return nil, nil
}

// fakeAuditStore records every Append call, optionally failing.
type fakeAuditStore struct {
	records []domain.AuditRecord
	err     error
}

func (f *fakeAuditStore) Append(ctx context.Context, record domain.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

// fakeAdapter implements adapter.Adapter and records call order.
type fakeAdapter struct {
	calls        []string
	createResult *domain.Order
	queryResult  *domain.Order
}

func (f *fakeAdapter) Connect(ctx context.Context) error    { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

func (f *fakeAdapter) CreateOrder(ctx context.Context, req domain.OrderRequest, clientOrderID string) (*domain.Order, error) {
	f.calls = append(f.calls, "CreateOrder")
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &domain.Order{OrderRequest: req, ClientOrderID: clientOrderID, Status: domain.StatusOpen}, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, nil
}
func (f *fakeAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, nil
}
func (f *fakeAdapter) ListOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeAdapter) ListPositions(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeAdapter) GetBalance(ctx context.Context) (domain.AccountState, error) {
	return domain.AccountState{}, nil
}
func (f *fakeAdapter) GetTicker(ctx context.Context, symbol string) (domain.OrderBookTop, error) {
	return domain.OrderBookTop{}, nil
}
func (f *fakeAdapter) SubscribeTicker(ctx context.Context, symbol string, out chan<- domain.OrderBookTop) error {
	return nil
}
func (f *fakeAdapter) QueryByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	f.calls = append(f.calls, "QueryByClientOrderID")
	return f.queryResult, nil
}
func (f *fakeAdapter) CancelByClientOrderID(ctx context.Context, clientOrderID string) error {
	return nil
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxLeverage:             10,
		MaxPositionPct:          0.5,
		MaxSingleSymbolExposure: 50000,
		MaxTotalExposure:        200000,
		MaxOpenPositions:        5,
		MinStopLossPct:          0.01,
		MaxStopLossPct:          0.1,
		MaxTakeProfitPct:        0.5,
		MaxDailyLossPct:         0.1,
		MaxDailyTrades:          50,
		DrawdownTriggerPct:      0.25,
		DustNotional:            10,
		DenyList:                []string{"BANNEDUSDT"},
	}
}

func testAccount() domain.AccountState {
	return domain.AccountState{
		TotalEquity:      100000,
		AvailableBalance: 50000,
		Exposure:         map[string]float64{},
	}
}

func newTestGateway(t *testing.T, cfg config.RiskConfig, exec *fakeAdapter, audit *fakeAuditStore) *Gateway {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	idemStore := idempotency.NewStore(client, 24, 5*time.Second)

	mgr := breaker.NewManager(breaker.Thresholds{}, fakeBreakerStore{}, zerolog.Nop())

	return NewGateway(cfg, mgr, idemStore, exec, audit, zerolog.Nop())
}

func baseRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeMarket,
		Quantity: 1,
		Price:    100,
		Leverage: 2,
	}
}

func TestGateway_Check_Rule1_SystemBreakerTriggeredRejectsEverything(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	ctx := context.Background()
	gw.breakerMgr.EvaluateSystem(ctx, breaker.SystemMetrics{APIFailureCount: 9999})

	result := gw.Check(baseRequest(), testAccount())
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.RiskCheckFailed), result.RejectCode)
}

func TestGateway_Check_Rule1_AccountBreakerAllowsReduceOnly(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	ctx := context.Background()
	gw.breakerMgr.EvaluateAccount(ctx, breaker.AccountMetrics{Drawdown: 0.99})

	req := baseRequest()
	req.ReduceOnly = true
	result := gw.Check(req, testAccount())
	assert.True(t, result.Approved)
}

func TestGateway_Check_Rule1_AccountBreakerBlocksOpeningOrder(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	ctx := context.Background()
	gw.breakerMgr.EvaluateAccount(ctx, breaker.AccountMetrics{Drawdown: 0.99})

	result := gw.Check(baseRequest(), testAccount())
	assert.False(t, result.Approved)
}

func TestGateway_Check_Rule2_NoAvailableBalanceIsInsufficientMargin(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.AvailableBalance = 0

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.InsufficientMargin), result.RejectCode)
}

func TestGateway_Check_Rule3_DenyListRejects(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.Symbol = "BANNEDUSDT"

	result := gw.Check(req, testAccount())
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.RiskCheckFailed), result.RejectCode)
}

func TestGateway_Check_Rule3_BlackoutHourRejectsNonReduceOnly(t *testing.T) {
	cfg := testRiskConfig()
	cfg.BlackoutHoursUTC = []int{3}
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	gw.now = func() time.Time { return time.Date(2026, 1, 1, 3, 30, 0, 0, time.UTC) }

	result := gw.Check(baseRequest(), testAccount())
	assert.False(t, result.Approved)
}

func TestGateway_Check_Rule3_BlackoutHourAllowsReduceOnly(t *testing.T) {
	cfg := testRiskConfig()
	cfg.BlackoutHoursUTC = []int{3}
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	gw.now = func() time.Time { return time.Date(2026, 1, 1, 3, 30, 0, 0, time.UTC) }

	req := baseRequest()
	req.ReduceOnly = true
	result := gw.Check(req, testAccount())
	assert.True(t, result.Approved)
}

func TestGateway_Check_Rule4_LeverageExceededRejectsInHardMode(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.Leverage = 20

	result := gw.Check(req, testAccount())
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.LeverageExceeded), result.RejectCode)
}

func TestGateway_Check_Rule4_LeverageClampsInSoftMode(t *testing.T) {
	cfg := testRiskConfig()
	cfg.SoftMode = true
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.Leverage = 20

	result := gw.Check(req, testAccount())
	require.True(t, result.Approved)
	assert.Equal(t, 10.0, result.Request.Leverage)
}

func TestGateway_Check_Rule5_MaxPositionPctReducesSize(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxPositionPct = 0.001
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.Quantity = 1000

	result := gw.Check(req, testAccount())
	require.True(t, result.Approved)
	assert.Less(t, result.Request.Quantity, req.Quantity)
}

func TestGateway_Check_Rule6_SingleSymbolExposureRejectsBelowDust(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxSingleSymbolExposure = 1000
	cfg.DustNotional = 500
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.Exposure["BTCUSDT"] = 950

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.PositionLimitExceeded), result.RejectCode)
}

func TestGateway_Check_Rule6_SingleSymbolExposureReducesAboveDust(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxSingleSymbolExposure = 1000
	cfg.DustNotional = 10
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.Exposure["BTCUSDT"] = 950

	result := gw.Check(baseRequest(), account)
	require.True(t, result.Approved)
	assert.Less(t, result.Request.Quantity, baseRequest().Quantity)
}

func TestGateway_Check_Rule7_TotalExposureRejects(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxTotalExposure = 1000
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.Exposure["ETHUSDT"] = 950

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.PositionLimitExceeded), result.RejectCode)
}

func TestGateway_Check_Rule8_OpenPositionCountRejectsNewSymbol(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxOpenPositions = 1
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.Positions = []domain.Position{{Symbol: "ETHUSDT", Side: domain.PositionLong}}

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.PositionLimitExceeded), result.RejectCode)
}

func TestGateway_Check_Rule8_OpenPositionCountAllowsExistingSymbol(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxOpenPositions = 1
	gw := newTestGateway(t, cfg, &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.Positions = []domain.Position{{Symbol: "BTCUSDT", Side: domain.PositionLong}}

	result := gw.Check(baseRequest(), account)
	assert.True(t, result.Approved)
}

func TestGateway_Check_Rule9_StopLossBelowMinimumRejects(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.StopLossPct = 0.001

	result := gw.Check(req, testAccount())
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.RiskCheckFailed), result.RejectCode)
}

func TestGateway_Check_Rule9_StopLossAboveMaxClamps(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.StopLossPct = 0.5

	result := gw.Check(req, testAccount())
	require.True(t, result.Approved)
	assert.Equal(t, 0.1, result.Request.StopLossPct)
}

func TestGateway_Check_Rule10_TakeProfitClamps(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	req := baseRequest()
	req.TakeProfitPct = 0.9

	result := gw.Check(req, testAccount())
	require.True(t, result.Approved)
	assert.Equal(t, 0.5, result.Request.TakeProfitPct)
}

func TestGateway_Check_Rule11_DailyLossRejects(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.DailyLossPct = 0.2

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.RiskCheckFailed), result.RejectCode)
}

func TestGateway_Check_Rule12_DailyTradeCountRejects(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.DailyTradeCount = 100

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.RiskCheckFailed), result.RejectCode)
}

func TestGateway_Check_Rule13_DrawdownRejectsButDoesNotTriggerBreaker(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	account := testAccount()
	account.Drawdown = 0.3

	result := gw.Check(baseRequest(), account)
	assert.False(t, result.Approved)
	assert.Equal(t, string(apperr.RiskCheckFailed), result.RejectCode)
	assert.Equal(t, domain.BreakerNormal, gw.breakerMgr.GetStatus().Account.Status, "Check must stay pure and never trip the breaker itself")
}

func TestGateway_Check_Approved_RecordsAllAppliedRulesInOrder(t *testing.T) {
	gw := newTestGateway(t, testRiskConfig(), &fakeAdapter{}, &fakeAuditStore{})
	result := gw.Check(baseRequest(), testAccount())
	require.True(t, result.Approved)
	assert.Equal(t, []string{
		"circuit_breaker", "available_balance", "deny_list",
		"leverage", "max_position_pct", "single_symbol_exposure", "total_exposure", "open_position_count",
		"stop_loss_pct", "take_profit_pct", "daily_loss_pct", "daily_trade_count", "drawdown",
	}, result.AppliedRules)
}

func TestGateway_Submit_WritesAuditRecordBeforeCallingAdapter(t *testing.T) {
	audit := &fakeAuditStore{}
	exec := &fakeAdapter{}
	gw := newTestGateway(t, testRiskConfig(), exec, audit)

	_, err := gw.Submit(context.Background(), baseRequest(), testAccount())
	require.NoError(t, err)

	require.Len(t, audit.records, 1)
	require.Contains(t, exec.calls, "CreateOrder")
	assert.True(t, audit.records[0].RiskCheckPassed)
}

func TestGateway_Submit_AuditFailureIsFailClosed(t *testing.T) {
	exec := &fakeAdapter{}
	audit := &fakeAuditStore{err: errors.New("disk full")}
	gw := newTestGateway(t, testRiskConfig(), exec, audit)

	order, err := gw.Submit(context.Background(), baseRequest(), testAccount())
	require.Error(t, err)
	assert.Nil(t, order)
	assert.Empty(t, exec.calls, "adapter must never be called when the audit write fails")
}

func TestGateway_Submit_RejectedOrderStillWritesAuditAndNeverCallsAdapter(t *testing.T) {
	exec := &fakeAdapter{}
	audit := &fakeAuditStore{}
	gw := newTestGateway(t, testRiskConfig(), exec, audit)

	account := testAccount()
	account.AvailableBalance = 0

	order, err := gw.Submit(context.Background(), baseRequest(), account)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.StatusRejected, order.Status)
	assert.Empty(t, exec.calls)
	require.Len(t, audit.records, 1)
	assert.False(t, audit.records[0].RiskCheckPassed)
}

func TestGateway_Submit_DrawdownRejectionTripsAccountBreaker(t *testing.T) {
	exec := &fakeAdapter{}
	audit := &fakeAuditStore{}
	gw := newTestGateway(t, testRiskConfig(), exec, audit)

	account := testAccount()
	account.Drawdown = 0.3

	_, err := gw.Submit(context.Background(), baseRequest(), account)
	require.NoError(t, err)
	assert.Equal(t, domain.BreakerTriggered, gw.breakerMgr.GetStatus().Account.Status)
}

func TestGateway_Submit_DuplicateSubmissionReturnsOriginalOrderWithoutCreatingANewOne(t *testing.T) {
	exec := &fakeAdapter{queryResult: &domain.Order{OrderID: "orig-1", Status: domain.StatusOpen}}
	audit := &fakeAuditStore{}
	gw := newTestGateway(t, testRiskConfig(), exec, audit)
	gw.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	req := baseRequest()

	first, err := gw.Submit(ctx, req, testAccount())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := gw.Submit(ctx, req, testAccount())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "orig-1", second.OrderID)

	createCount := 0
	for _, c := range exec.calls {
		if c == "CreateOrder" {
			createCount++
		}
	}
	assert.Equal(t, 1, createCount, "the duplicate submission must not call CreateOrder a second time")
}
