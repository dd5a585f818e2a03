// Package api exposes the ledger over HTTP with gin and streams prices and
// order events over a websocket.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
	"github.com/rustyeddy/stockledger/orders"
	"github.com/rustyeddy/stockledger/portfolio"
	"github.com/rustyeddy/stockledger/trade"
	"github.com/rustyeddy/stockledger/wallet"
)

const (
	// UserHeader carries the caller identity set by the auth proxy.
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	userKey      = "user_id"
	requestIDKey = "request_id"
)

// Deps are the services the handlers call. Prices, Quotes and OrderEvents
// may be nil when no feed is running.
type Deps struct {
	Executor    *trade.Executor
	Wallets     *wallet.Service
	Portfolio   *portfolio.Projector
	Orders      *orders.Query
	Directory   *market.Directory
	Prices      *market.PriceStore
	Quotes      *events.Hub[market.Quote]
	OrderEvents *events.Hub[events.OrderExecuted]
}

type Server struct {
	R      *gin.Engine
	Deps   Deps
	Logger *zap.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServer wires the router, services, and middleware.
func NewServer(deps Deps, logger *zap.Logger, corsOrigin string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := gin.New()

	// Request id
	g.Use(func(cn *gin.Context) {
		rid := cn.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		cn.Set(requestIDKey, rid)
		cn.Writer.Header().Set(RequestIDHeader, rid)
		cn.Next()
	})

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Info("http_request",
			zap.String("request_id", cn.GetString(requestIDKey)),
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())

	// CORS
	g.Use(func(cn *gin.Context) {
		origin := cn.GetHeader("Origin")
		cn.Writer.Header().Set("Vary", "Origin")
		cn.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader)
		cn.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		cn.Writer.Header().Set("Access-Control-Max-Age", "86400")
		if corsOrigin == "*" {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && origin == corsOrigin {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", corsOrigin)
		}
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	})

	s := &Server{
		R:            g,
		Deps:         deps,
		Logger:       logger,
		pingInterval: 30 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return corsOrigin == "*" || origin == "" || origin == corsOrigin
			},
		},
	}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })
	g.GET("/api/stocks", s.getStocks)
	g.GET("/api/stream", s.stream)

	authed := g.Group("/api", s.requireUser)
	authed.POST("/trades/buy", s.postTrade(ledger.Buy))
	authed.POST("/trades/sell", s.postTrade(ledger.Sell))
	authed.GET("/trades", s.getTrades)
	authed.GET("/portfolio", s.getPortfolio)
	authed.GET("/wallet", s.getWallet)
	authed.POST("/wallet/add-funds", s.postDeposit)
	authed.POST("/wallet/withdraw", s.postWithdraw)
	authed.GET("/wallet/transactions", s.getTransactions)

	return s
}

// ServeHTTP makes the server usable with net/http directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.R.ServeHTTP(w, r) }

// --- Helpers ---

func (s *Server) requireUser(c *gin.Context) {
	user := strings.TrimSpace(c.GetHeader(UserHeader))
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Code: "unauthorized", Message: "missing " + UserHeader + " header"})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func userID(c *gin.Context) string { return c.GetString(userKey) }

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) internalError(c *gin.Context, where string, err error) {
	s.Logger.Error("internal_error",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("where", where),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
}

// fail maps ledger errors onto status codes.
func (s *Server) fail(c *gin.Context, where string, err error) {
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		s.badRequest(c, ve.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, apiError{Code: "insufficient_funds", Message: "insufficient funds"})
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		c.JSON(http.StatusUnprocessableEntity, apiError{Code: "insufficient_holdings", Message: "insufficient holdings"})
	case errors.Is(err, ledger.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, apiError{Code: "symbol_not_found", Message: "symbol not found"})
	case errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, apiError{Code: "wallet_not_found", Message: "wallet not found"})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, apiError{Code: "not_found", Message: "not found"})
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusConflict, apiError{Code: "conflict", Message: "concurrent update, try again"})
	case errors.Is(err, ledger.ErrUnavailable):
		s.Logger.Warn("store_unavailable", zap.String("where", where), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, apiError{Code: "unavailable", Message: "service unavailable"})
	default:
		s.internalError(c, where, err)
	}
}
