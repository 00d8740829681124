package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		// Status endpoints (T152)
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)

		// Agent endpoints (T153) - TODO: Implement in next step
		agents := v1.Group("/agents")
		{
			agents.GET("", s.handleListAgents)
			agents.GET("/:name", s.handleGetAgent)
			agents.GET("/:name/status", s.handleGetAgentStatus)
		}

		// Position endpoints (T154) - TODO: Implement in next step
		positions := v1.Group("/positions", s.rateLimiter.ReadMiddleware())
		{
			positions.GET("", s.handleListPositions)
			positions.GET("/:symbol", s.handleGetPosition)
		}

		// Balance endpoint (spec.md §6), served directly from the
		// Execution Adapter's live AccountState.
		v1.GET("/balance", s.rateLimiter.ReadMiddleware(), s.handleGetBalance)

		// Order endpoints (T155) - TODO: Implement in next step
		orders := v1.Group("/orders")
		{
			orders.GET("", s.rateLimiter.ReadMiddleware(), s.handleListOrders)
			orders.GET("/:id", s.rateLimiter.ReadMiddleware(), s.handleGetOrder)
			orders.POST("", s.rateLimiter.OrderMiddleware(), s.handlePlaceOrder)
			orders.DELETE("/:id", s.rateLimiter.OrderMiddleware(), s.handleCancelOrder)
		}

		// Control endpoints (T156) - TODO: Implement in next step
		trade := v1.Group("/trade", s.rateLimiter.ControlMiddleware())
		{
			trade.POST("/start", s.handleStartTrading)
			trade.POST("/stop", s.handleStopTrading)
			trade.POST("/pause", s.handlePauseTrading)
			trade.POST("/resume", s.handleResumeTrading)
		}

		// Config endpoints (T157) - TODO: Implement in next step
		v1.GET("/config", s.handleGetConfig)
		v1.PATCH("/config", s.handleUpdateConfig)

		// Risk what-if calculators, backed by internal/risk.Service
		riskTools := v1.Group("/risk")
		{
			riskTools.POST("/position-size", s.handleRiskPositionSize)
			riskTools.POST("/var", s.handleRiskVaR)
			riskTools.POST("/portfolio-limits", s.handleRiskPortfolioLimits)
			riskTools.POST("/sharpe", s.handleRiskSharpe)
			riskTools.POST("/drawdown", s.handleRiskDrawdown)
		}

		// Strategy CRUD, versioning and enable/disable (spec.md §6).
		if s.strategies != nil {
			s.strategies.RegisterRoutes(v1)
		}

		// Decision Coordinator history and human feedback, surfaced for
		// operator review of past weighted-vote outcomes.
		if s.decisions != nil {
			s.decisions.RegisterRoutes(v1)
		}
		if s.feedback != nil {
			s.feedback.RegisterRoutes(v1)
		}
	}

	// WebSocket surface (spec.md §6): /ws is the bidirectional command
	// channel, /ws/events is the one-way domain event stream.
	s.router.GET("/ws", s.handleWS)
	s.router.GET("/ws/events", s.handleWSEvents)

	// Root endpoint
	s.router.GET("/", s.handleRoot)
}
