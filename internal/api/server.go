package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/database"
	"bybit-trading-bot/internal/ledger"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
	"bybit-trading-bot/internal/scanner"
)

// Bot is the surface the engine exposes to the API.
type Bot interface {
	Status() map[string]interface{}
}

// Server is the operator-facing HTTP API.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.APIConfig
	bot        Bot
	positions  *position.Manager
	ledger     *ledger.Ledger
	scanner    *scanner.Scanner
	trades     *database.TradeRepository
	hub        *WSHub
	logger     *logging.Logger
}

// NewServer wires the API routes. trades may be nil when PostgreSQL is
// disabled; the history endpoint then serves in-memory history only.
func NewServer(
	cfg config.APIConfig,
	bot Bot,
	positions *position.Manager,
	led *ledger.Ledger,
	scn *scanner.Scanner,
	trades *database.TradeRepository,
	hub *WSHub,
	logger *logging.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		cfg:       cfg,
		bot:       bot,
		positions: positions,
		ledger:    led,
		scanner:   scn,
		trades:    trades,
		hub:       hub,
		logger:    logger.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/login", s.handleLogin)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(authMiddleware(s.cfg))
	{
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handleGetPositions)
		api.GET("/positions/history", s.handleGetHistory)
		api.POST("/positions/:id/close", s.handleClosePosition)
		api.GET("/ledger", s.handleGetLedger)
		api.GET("/scanner/results", s.handleGetScanResults)
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.bot.Status())
}

func (s *Server) handleGetPositions(c *gin.Context) {
	successResponse(c, s.positions.Positions())
}

func (s *Server) handleGetHistory(c *gin.Context) {
	resp := gin.H{"recent": s.positions.History()}

	if s.trades != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		records, err := s.trades.ListRecent(ctx, 100)
		if err != nil {
			s.logger.Warn("Failed to load trade history", "error", err.Error())
		} else {
			resp["stored"] = records
		}
	}
	successResponse(c, resp)
}

func (s *Server) handleClosePosition(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	err := s.positions.Close(ctx, id, position.ReasonManual)
	switch {
	case err == nil:
		successResponse(c, gin.H{"id": id, "closed": true})
	case errors.Is(err, position.ErrUnknownPosition):
		errorResponse(c, http.StatusNotFound, "position not found")
	case errors.Is(err, position.ErrAlreadyClosed):
		errorResponse(c, http.StatusConflict, "position already closed")
	default:
		errorResponse(c, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleGetLedger(c *gin.Context) {
	successResponse(c, gin.H{
		"total":        s.ledger.Total(),
		"allocated":    s.ledger.Allocated(),
		"available":    s.ledger.Available(),
		"reservations": s.ledger.ActiveReservations(),
	})
}

func (s *Server) handleGetScanResults(c *gin.Context) {
	result := s.scanner.LastResult()
	if result == nil {
		errorResponse(c, http.StatusNotFound, "no scan has completed yet")
		return
	}
	successResponse(c, result)
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
