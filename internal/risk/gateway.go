// Package risk implements the Risk Gateway (spec.md §4.1): the single
// mandatory ingress between any decision source (the Decision
// Coordinator, a manual override, a backtest driver) and the Execution
// Adapter. Every OrderRequest is admitted, clamped, or rejected by an
// ordered hard-limit rule set before it can reach an exchange call.
package risk

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/adapter"
	"github.com/cryptoctl/tradeengine/internal/apperr"
	"github.com/cryptoctl/tradeengine/internal/breaker"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/idempotency"
)

// AuditStore persists one AuditRecord per Submit call, before any
// adapter call and independent of outcome (spec.md §4.1 Audit
// contract). internal/audit provides the Postgres-backed
// implementation.
type AuditStore interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

// Gateway is the Risk Gateway. It owns no exchange connection itself;
// Submit delegates to adapter only after every rule has cleared and
// the audit record has been durably written.
type Gateway struct {
	config      config.RiskConfig
	breakerMgr  *breaker.Manager
	idempotency *idempotency.Store
	adapter     adapter.Adapter
	audit       AuditStore
	log         zerolog.Logger
	now         func() time.Time
}

// NewGateway builds a Gateway. breakerMgr, idempotencyStore and
// adapter must all be non-nil in production; tests may pass a fake
// adapter.Adapter.
func NewGateway(cfg config.RiskConfig, breakerMgr *breaker.Manager, idempotencyStore *idempotency.Store, exec adapter.Adapter, audit AuditStore, log zerolog.Logger) *Gateway {
	return &Gateway{
		config:      cfg,
		breakerMgr:  breakerMgr,
		idempotency: idempotencyStore,
		adapter:     exec,
		audit:       audit,
		log:         log.With().Str("component", "risk_gateway").Logger(),
		now:         time.Now,
	}
}

// Check runs the ordered hard-limit rule set against req and account,
// without consulting or mutating any external store. It is exposed
// directly for tests and dry-runs (spec.md §4.1).
func (g *Gateway) Check(req domain.OrderRequest, account domain.AccountState) domain.ValidationResult {
	modified := req
	var applied []string

	// Rule 1: circuit-breaker state. A system-tier trip halts
	// everything; an account-tier trip only blocks orders that would
	// increase risk, letting reduce-only orders flatten positions.
	applied = append(applied, "circuit_breaker")
	status := g.breakerMgr.GetStatus()
	if status.System.Status == domain.BreakerTriggered {
		return reject(modified, apperr.RiskCheckFailed, "system circuit breaker triggered", applied)
	}
	if status.Account.Status == domain.BreakerTriggered && !req.ReduceOnly {
		return reject(modified, apperr.RiskCheckFailed, "account circuit breaker triggered", applied)
	}

	// Rule 2: available balance.
	applied = append(applied, "available_balance")
	if account.AvailableBalance <= 0 {
		return reject(modified, apperr.InsufficientMargin, "no available balance", applied)
	}

	// Rule 3: deny list, plus the blackout-hours supplement folded into
	// the same "environment says no" static admission check.
	applied = append(applied, "deny_list")
	if slices.Contains(g.config.DenyList, req.Symbol) {
		return reject(modified, apperr.RiskCheckFailed, fmt.Sprintf("%s is in the deny list", req.Symbol), applied)
	}
	if !req.ReduceOnly && g.inBlackoutHour(g.now()) {
		return reject(modified, apperr.RiskCheckFailed, "order submitted during a configured blackout hour", applied)
	}

	// Rules 4-8 bound how much new risk an opening order may add;
	// reduce-only orders only ever shrink exposure, so they skip them.
	if !req.ReduceOnly {
		applied = append(applied, "leverage")
		if modified.Leverage > g.config.MaxLeverage {
			if !g.config.SoftMode {
				return reject(modified, apperr.LeverageExceeded, fmt.Sprintf("leverage %.2fx exceeds max %.2fx", req.Leverage, g.config.MaxLeverage), applied)
			}
			modified.Leverage = g.config.MaxLeverage
		}
		if modified.Leverage <= 0 {
			modified.Leverage = 1
		}

		notional := modified.Notional(modified.Price)

		applied = append(applied, "max_position_pct")
		if account.TotalEquity > 0 && g.config.MaxPositionPct > 0 && notional/account.TotalEquity > g.config.MaxPositionPct {
			limitNotional := account.TotalEquity * g.config.MaxPositionPct
			modified.Quantity = limitNotional / refPrice(modified)
			notional = limitNotional
		}

		applied = append(applied, "single_symbol_exposure")
		existingExposure := account.Exposure[modified.Symbol]
		if g.config.MaxSingleSymbolExposure > 0 && existingExposure+notional > g.config.MaxSingleSymbolExposure {
			reducible := g.config.MaxSingleSymbolExposure - existingExposure
			if reducible < g.config.DustNotional {
				return reject(modified, apperr.PositionLimitExceeded, "single-symbol exposure limit exceeded", applied)
			}
			modified.Quantity = reducible / refPrice(modified)
			notional = reducible
		}

		applied = append(applied, "total_exposure")
		if g.config.MaxTotalExposure > 0 && account.TotalExposure()+notional > g.config.MaxTotalExposure {
			return reject(modified, apperr.PositionLimitExceeded, "total exposure limit exceeded", applied)
		}

		applied = append(applied, "open_position_count")
		if g.config.MaxOpenPositions > 0 && !hasPosition(account, modified.Symbol) && len(account.Positions) >= g.config.MaxOpenPositions {
			return reject(modified, apperr.PositionLimitExceeded, "max open position count reached", applied)
		}
	}

	// Rule 9: stop-loss band.
	applied = append(applied, "stop_loss_pct")
	if modified.StopLossPct > 0 {
		if g.config.MinStopLossPct > 0 && modified.StopLossPct < g.config.MinStopLossPct {
			return reject(modified, apperr.RiskCheckFailed, "stop-loss below configured minimum", applied)
		}
		if g.config.MaxStopLossPct > 0 && modified.StopLossPct > g.config.MaxStopLossPct {
			modified.StopLossPct = g.config.MaxStopLossPct
		}
	}

	// Rule 10: take-profit ceiling.
	applied = append(applied, "take_profit_pct")
	if g.config.MaxTakeProfitPct > 0 && modified.TakeProfitPct > g.config.MaxTakeProfitPct {
		modified.TakeProfitPct = g.config.MaxTakeProfitPct
	}

	// Rule 11: daily loss.
	applied = append(applied, "daily_loss_pct")
	if g.config.MaxDailyLossPct > 0 && account.DailyLossPct >= g.config.MaxDailyLossPct {
		return reject(modified, apperr.RiskCheckFailed, "daily loss limit reached", applied)
	}

	// Rule 12: daily trade count.
	applied = append(applied, "daily_trade_count")
	if g.config.MaxDailyTrades > 0 && account.DailyTradeCount >= g.config.MaxDailyTrades {
		return reject(modified, apperr.RiskCheckFailed, "daily trade count limit reached", applied)
	}

	// Rule 13: drawdown. Check itself stays pure: it reports the
	// violation but leaves tripping the account breaker to Submit.
	applied = append(applied, "drawdown")
	if g.config.DrawdownTriggerPct > 0 && account.Drawdown >= g.config.DrawdownTriggerPct {
		return reject(modified, apperr.RiskCheckFailed, "drawdown trigger breached", applied)
	}

	return domain.ValidationResult{
		Approved:     true,
		Request:      modified,
		AppliedRules: applied,
		RiskScore:    g.continuousRiskScore(modified, account),
	}
}

// Submit is the single mandatory ingress: it runs Check, writes
// exactly one AuditRecord regardless of outcome, then — only on
// approval — assigns a client-order-id and delegates to the adapter.
// A persistence failure of the audit write is fatal to the request
// (fail-closed, spec.md §4.1).
func (g *Gateway) Submit(ctx context.Context, req domain.OrderRequest, account domain.AccountState) (*domain.Order, error) {
	result := g.Check(req, account)

	record := domain.AuditRecord{
		ID:               uuid.New().String(),
		TraceID:          req.TraceID,
		OriginalDecision: req,
		ModifiedDecision: result.Request,
		RiskCheckPassed:  result.Approved,
		AppliedRules:     result.AppliedRules,
		AccountSnapshot:  account,
		Timestamp:        g.now(),
	}
	if !result.Approved {
		record.BlockedReason = result.Reason
	}

	if err := g.audit.Append(ctx, record); err != nil {
		return nil, apperr.WrapMsg(apperr.APIError, "audit persist failed, rejecting order fail-closed", err)
	}

	if !result.Approved {
		if result.RejectCode == string(apperr.RiskCheckFailed) && result.Reason == "drawdown trigger breached" {
			g.breakerMgr.EvaluateAccount(ctx, breaker.AccountMetrics{
				DailyPnL:    account.DailyPnL,
				TotalEquity: account.TotalEquity,
				Drawdown:    account.Drawdown,
			})
		}
		now := g.now()
		return &domain.Order{
			OrderRequest: result.Request,
			Status:       domain.StatusRejected,
			RejectReason: result.RejectCode,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	}

	action := idempotency.ActionForRequest(result.Request)
	now := g.now()
	clientOrderID, err := idempotency.GenerateClientOrderID(action, result.Request.Symbol, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.APIError, err)
	}

	dedupKey := idempotency.ComputeKey(action, result.Request.Symbol, result.Request.Price, result.Request.Quantity, now)
	idemResult, existingID, err := g.idempotency.Check(ctx, dedupKey, clientOrderID)
	if err != nil {
		return nil, err
	}
	if idemResult == idempotency.ResultDuplicate {
		g.log.Info().Str("client_order_id", existingID).Msg("duplicate submission suppressed, returning original order")
		return g.adapter.QueryByClientOrderID(ctx, existingID)
	}

	return g.adapter.CreateOrder(ctx, result.Request, clientOrderID)
}

func reject(req domain.OrderRequest, code apperr.Code, reason string, applied []string) domain.ValidationResult {
	return domain.ValidationResult{
		Approved:     false,
		Request:      req,
		RejectCode:   string(code),
		Reason:       reason,
		AppliedRules: applied,
	}
}

func hasPosition(account domain.AccountState, symbol string) bool {
	return account.HasLong(symbol) || account.HasShort(symbol)
}

// refPrice returns the request's price, falling back to 1 only to
// avoid a division by zero on malformed input; a real request always
// carries a reference price by the time it reaches the gateway.
func refPrice(req domain.OrderRequest) float64 {
	if req.Price > 0 {
		return req.Price
	}
	return 1
}

func (g *Gateway) inBlackoutHour(at time.Time) bool {
	if len(g.config.BlackoutHoursUTC) == 0 {
		return false
	}
	return slices.Contains(g.config.BlackoutHoursUTC, at.UTC().Hour())
}

// continuousRiskScore is the spec.md §6 diagnostic supplement: a
// [0,100] score from leverage headroom and single-symbol
// concentration, exposed on /api/v1/status. It augments, never
// replaces, the ordered rule set above.
func (g *Gateway) continuousRiskScore(req domain.OrderRequest, account domain.AccountState) float64 {
	var leverageRatio float64
	if g.config.MaxLeverage > 0 {
		leverageRatio = clamp(req.Leverage/g.config.MaxLeverage, 0, 1)
	}
	var concentrationRatio float64
	if g.config.MaxSingleSymbolExposure > 0 {
		concentrationRatio = clamp((account.Exposure[req.Symbol]+req.Notional(req.Price))/g.config.MaxSingleSymbolExposure, 0, 1)
	}
	return clamp((leverageRatio*0.6+concentrationRatio*0.4)*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
