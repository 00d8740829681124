package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleRiskPositionSize runs a Kelly-criterion what-if position-size
// calculation through internal/risk.Service, for operators sizing a
// trade before submitting it through the Risk Gateway.
func (s *Server) handleRiskPositionSize(c *gin.Context) {
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := s.riskSvc.CalculatePositionSize(args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRiskVaR runs a historical-simulation VaR/CVaR what-if
// calculation over an arbitrary returns series.
func (s *Server) handleRiskVaR(c *gin.Context) {
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := s.riskSvc.CalculateVaR(args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRiskPortfolioLimits checks whether a proposed trade would
// breach portfolio-level limits, given an arbitrary snapshot of
// positions (independent of the live AccountState the Risk Gateway
// checks against — useful for what-if analysis against a hypothetical
// portfolio).
func (s *Server) handleRiskPortfolioLimits(c *gin.Context) {
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := s.riskSvc.CheckPortfolioLimits(args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRiskSharpe computes the Sharpe ratio for an arbitrary returns
// series.
func (s *Server) handleRiskSharpe(c *gin.Context) {
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := s.riskSvc.CalculateSharpe(args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRiskDrawdown computes drawdown statistics for an arbitrary
// equity curve.
func (s *Server) handleRiskDrawdown(c *gin.Context) {
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := s.riskSvc.CalculateDrawdown(args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
