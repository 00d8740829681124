package api

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/apperr"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

// httpStatusForCode maps the spec.md §7 error taxonomy onto the HTTP
// status the REST surface returns alongside the {error:{code,
// message, retry_after}} envelope.
func httpStatusForCode(code apperr.Code) int {
	switch code {
	case apperr.InsufficientMargin, apperr.LeverageExceeded, apperr.PositionLimitExceeded,
		apperr.RiskCheckFailed, apperr.PriceDeviation, apperr.MarketSuspended:
		return http.StatusUnprocessableEntity
	case apperr.RateLimit:
		return http.StatusTooManyRequests
	case apperr.BreakerTriggered:
		return http.StatusServiceUnavailable
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeAppError renders an *apperr.Error as the spec.md §7 error
// envelope.
func writeAppError(c *gin.Context, err *apperr.Error) {
	body := gin.H{
		"error": gin.H{
			"code":    string(err.Code),
			"message": err.Error(),
		},
	}
	if err.RetryAfter > 0 {
		body["error"].(gin.H)["retry_after"] = err.RetryAfter
	}
	c.JSON(httpStatusForCode(err.Code), body)
}

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "CryptoFunk API",
		"version": "1.0.0",
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// T152: Status endpoints

// handleGetStatus returns comprehensive system status
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Check database connection
	dbStatus := "healthy"
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("Database health check failed")
		}
	} else {
		dbStatus = "not_configured"
	}

	// Determine overall system status
	systemStatus := "healthy"
	if dbStatus != "healthy" {
		systemStatus = "degraded"
	}

	status := gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   "1.0.0",
		"components": gin.H{
			"database": gin.H{
				"status": dbStatus,
			},
			"execution_adapter": gin.H{
				"status": func() string {
					if s.execAdapter != nil {
						return "configured"
					}
					return "not_configured"
				}(),
			},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	}

	c.JSON(http.StatusOK, status)
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	// Quick health check - just verify database connectivity
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// T153: Agent endpoints

func (s *Server) handleListAgents(c *gin.Context) {
	// Return mock data for now - agent system not fully integrated yet
	agents := []gin.H{
		{
			"name":        "technical-agent",
			"type":        "analysis",
			"status":      "active",
			"last_signal": time.Now().Add(-5 * time.Minute).UTC(),
			"confidence":  0.75,
		},
		{
			"name":        "trend-agent",
			"type":        "strategy",
			"status":      "active",
			"last_signal": time.Now().Add(-2 * time.Minute).UTC(),
			"confidence":  0.82,
		},
		{
			"name":        "risk-agent",
			"type":        "risk",
			"status":      "active",
			"last_signal": time.Now().Add(-1 * time.Minute).UTC(),
			"confidence":  0.90,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"total":  len(agents),
	})
}

func (s *Server) handleGetAgent(c *gin.Context) {
	name := c.Param("name")

	// Mock agent data
	agent := gin.H{
		"name":        name,
		"type":        "analysis",
		"status":      "active",
		"uptime":      3600.0,
		"last_signal": time.Now().Add(-2 * time.Minute).UTC(),
		"confidence":  0.75,
		"metrics": gin.H{
			"signals_generated": 145,
			"avg_confidence":    0.78,
			"success_rate":      0.65,
		},
	}

	c.JSON(http.StatusOK, agent)
}

func (s *Server) handleGetAgentStatus(c *gin.Context) {
	name := c.Param("name")

	// Mock status data
	status := gin.H{
		"name":           name,
		"status":         "active",
		"health":         "healthy",
		"last_heartbeat": time.Now().Add(-30 * time.Second).UTC(),
		"metrics": gin.H{
			"response_time_ms": 45.2,
			"error_rate":       0.02,
			"cpu_usage":        15.3,
			"memory_mb":        128.5,
		},
	}

	c.JSON(http.StatusOK, status)
}

// T154: Position endpoints

func (s *Server) handleListPositions(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	// Parse query parameters
	openOnly := c.DefaultQuery("open_only", "true") == "true"
	symbol := c.Query("symbol")

	var symbolPtr *string
	if symbol != "" {
		symbolPtr = &symbol
	}

	// TODO: Get session ID from context/auth
	// For now, list all positions
	positions, err := s.db.ListPositions(c.Request.Context(), nil, symbolPtr, openOnly, 100, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list positions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve positions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"total":     len(positions),
	})
}

func (s *Server) handleGetPosition(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	symbol := c.Param("symbol")

	// TODO: Get session ID from context/auth
	// For now, return error asking for session ID in query
	sessionIDStr := c.Query("session_id")
	if sessionIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "session_id query parameter required",
		})
		return
	}

	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid session_id format",
		})
		return
	}

	position, err := s.db.GetPositionBySymbol(c.Request.Context(), sessionID, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Position not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("no open position found for %s", symbol),
		})
		return
	}

	c.JSON(http.StatusOK, position)
}

// T155: Order endpoints

func (s *Server) handleListOrders(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	// Parse query parameters
	limitStr := c.DefaultQuery("limit", "100")
	offsetStr := c.DefaultQuery("offset", "0")

	limit, _ := strconv.Atoi(limitStr)
	offset, _ := strconv.Atoi(offsetStr)

	// TODO: Get session ID from context/auth
	// For now, list all orders
	orders, err := s.db.ListOrders(c.Request.Context(), nil, nil, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  len(orders),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "database not available",
		})
		return
	}

	orderIDStr := c.Param("id")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid order ID format",
		})
		return
	}

	order, err := s.db.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		log.Warn().Err(err).Str("order_id", orderIDStr).Msg("Order not found")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "order not found",
		})
		return
	}

	c.JSON(http.StatusOK, order)
}

// handlePlaceOrder is the single REST entry to the order path
// (spec.md §4.1): every request is built into a domain.OrderRequest,
// given a fresh trace ID, and submitted through the Risk Gateway. The
// Gateway owns the client-order-id assignment, the audit write, and
// the Execution Adapter call; this handler never touches the adapter
// directly.
func (s *Server) handlePlaceOrder(c *gin.Context) {
	if s.riskGW == nil || s.execAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "order path not configured",
		})
		return
	}

	if s.db != nil {
		if paused, err := s.db.IsTradingPaused(c.Request.Context()); err == nil && paused {
			c.JSON(http.StatusLocked, gin.H{"error": "trading is paused"})
			return
		}
	}

	var req struct {
		Symbol     string  `json:"symbol" binding:"required"`
		Side       string  `json:"side" binding:"required"`
		Type       string  `json:"type" binding:"required"`
		Quantity   float64 `json:"quantity" binding:"required,gt=0"`
		Price      float64 `json:"price"`
		StopPrice  float64 `json:"stop_price"`
		Leverage   float64 `json:"leverage"`
		ReduceOnly bool    `json:"reduce_only"`
		PostOnly   bool    `json:"post_only"`
		StrategyID string  `json:"strategy_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	orderType := domain.OrderType(req.Type)
	switch orderType {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop, domain.OrderTypeStopLimit:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown order type %q", req.Type),
		})
		return
	}

	side := domain.Side(req.Side)
	if side != domain.SideBuy && side != domain.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("side must be BUY or SELL, got %q", req.Side),
		})
		return
	}

	orderReq := domain.OrderRequest{
		Symbol:     req.Symbol,
		Side:       side,
		Type:       orderType,
		Quantity:   req.Quantity,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		Leverage:   req.Leverage,
		ReduceOnly: req.ReduceOnly,
		PostOnly:   req.PostOnly,
		Source:     "rest_api",
		StrategyID: req.StrategyID,
		TraceID:    uuid.New().String(),
	}

	ctx := c.Request.Context()
	account, err := s.execAdapter.GetBalance(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch account state for order admission")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": gin.H{"code": string(apperr.APIError), "message": "could not fetch account state"},
		})
		return
	}

	order, err := s.riskGW.Submit(ctx, orderReq, account)
	if err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			writeAppError(c, appErr)
			return
		}
		log.Error().Err(err).Msg("order submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if order.Status == domain.StatusRejected {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"order":         order,
			"reject_reason": order.RejectReason,
		})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// handleCancelOrder cancels a live order directly through the
// Execution Adapter. Cancels are not subject to Risk Gateway
// admission rules (spec.md §4.1 scopes Submit to new orders); they
// can only ever reduce exposure.
func (s *Server) handleCancelOrder(c *gin.Context) {
	if s.execAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "execution adapter not configured",
		})
		return
	}

	orderID := c.Param("id")

	order, err := s.execAdapter.CancelOrder(c.Request.Context(), orderID)
	if err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			writeAppError(c, appErr)
			return
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to cancel order")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to cancel order: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, order)
}

// handleGetBalance returns the live AccountState from the Execution
// Adapter (spec.md §6).
func (s *Server) handleGetBalance(c *gin.Context) {
	if s.execAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "execution adapter not configured",
		})
		return
	}

	account, err := s.execAdapter.GetBalance(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch balance")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": fmt.Sprintf("failed to fetch balance: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, account)
}

// T156: Control endpoints

func (s *Server) handleStartTrading(c *gin.Context) {
	var req struct {
		Symbol         string                 `json:"symbol" binding:"required"`
		InitialCapital float64                `json:"initial_capital" binding:"required,gt=0"`
		Config         map[string]interface{} `json:"config"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if s.execAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "execution adapter not configured",
		})
		return
	}

	if err := s.execAdapter.Connect(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("failed to start trading session")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to start trading: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "started",
		"symbol":          req.Symbol,
		"initial_capital": req.InitialCapital,
		"time":            time.Now().UTC(),
	})
}

func (s *Server) handleStopTrading(c *gin.Context) {
	if s.execAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "execution adapter not configured",
		})
		return
	}

	if err := s.execAdapter.Disconnect(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("failed to stop trading session")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to stop trading: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "stopped",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handlePauseTrading(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}

	var req struct {
		PausedBy string `json:"paused_by"`
		Reason   string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := s.db.SetOrchestratorPaused(c.Request.Context(), req.PausedBy, req.Reason); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "paused",
		"time":   time.Now().UTC(),
	})
}

// handleResumeTrading clears the paused flag handlePlaceOrder checks
// before admitting a new order to the Risk Gateway.
func (s *Server) handleResumeTrading(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}

	if err := s.db.SetOrchestratorResumed(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "resumed",
		"time":   time.Now().UTC(),
	})
}

// T157: Config endpoints

func (s *Server) handleGetConfig(c *gin.Context) {
	// Return current configuration
	// In a real implementation, this would load from Viper or a config manager
	config := gin.H{
		"api": gin.H{
			"host": "0.0.0.0",
			"port": 8080,
		},
		"exchange": gin.H{
			"mode": func() string {
				if s.execAdapter != nil {
					return "configured"
				}
				return "not_configured"
			}(),
		},
		"database": gin.H{
			"status": func() string {
				if s.db != nil {
					return "connected"
				}
				return "not_connected"
			}(),
		},
		"features": gin.H{
			"paper_trading": true,
			"live_trading":  true,
			"websocket":     false, // Not implemented yet
		},
	}

	c.JSON(http.StatusOK, config)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var updates map[string]interface{}

	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	// In a real implementation, this would update Viper config
	// For now, just acknowledge the request
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "configuration updates acknowledged (note: config persistence not fully implemented yet)",
		"updates": updates,
		"time":    time.Now().UTC(),
	})
}

// Utility functions

var startTime = time.Now()

func toMB(bytes uint64) uint64 {
	return bytes / 1024 / 1024
}
