package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
	"github.com/rustyeddy/stockledger/orders"
	"github.com/rustyeddy/stockledger/portfolio"
)

type tradeRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
	// Price is optional; the latest quote is used when omitted.
	Price *decimal.Decimal `json:"price"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type orderResponse struct {
	Message string       `json:"message"`
	Order   ledger.Order `json:"order"`
}

type walletResponse struct {
	Message string        `json:"message,omitempty"`
	Wallet  ledger.Wallet `json:"wallet"`
}

type ordersResponse struct {
	Orders []ledger.Order `json:"orders"`
}

type transactionsResponse struct {
	Transactions []ledger.Order `json:"transactions"`
}

type portfolioResponse struct {
	Portfolio []portfolio.Position `json:"portfolio"`
	Summary   portfolio.Summary    `json:"summary"`
}

type stockView struct {
	ID            int64            `json:"id"`
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ChangePercent *decimal.Decimal `json:"changePercent,omitempty"`
	UpdatedAt     *time.Time       `json:"updatedAt,omitempty"`
}

type stocksResponse struct {
	Stocks []stockView `json:"stocks"`
}

// --- Trades ---

func (s *Server) postTrade(side ledger.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body tradeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, err.Error())
			return
		}

		req := ledger.TradeRequest{
			UserID:   userID(c),
			Symbol:   body.Symbol,
			Side:     side,
			Quantity: body.Quantity,
		}
		if body.Price != nil {
			req.Price = *body.Price
		} else {
			price, err := s.quotePrice(c, body.Symbol)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, apiError{Code: "price_unavailable", Message: err.Error()})
				return
			}
			req.Price = price
		}

		o, err := s.Deps.Executor.Execute(c.Request.Context(), req)
		if err != nil {
			s.fail(c, "Execute", err)
			return
		}
		if side == ledger.Buy && s.Deps.Directory != nil {
			// A buy may have created the stock.
			s.Deps.Directory.Invalidate()
		}

		msg := "Buy order placed successfully"
		if side == ledger.Sell {
			msg = "Sell order placed successfully"
		}
		c.JSON(http.StatusCreated, orderResponse{Message: msg, Order: o})
	}
}

func (s *Server) quotePrice(c *gin.Context, symbol string) (decimal.Decimal, error) {
	if s.Deps.Prices == nil {
		return decimal.Zero, market.ErrPriceNotFound
	}
	return s.Deps.Prices.GetPrice(c.Request.Context(), symbol)
}

func (s *Server) getTrades(c *gin.Context) {
	f := orders.Filter{Symbol: c.Query("symbol")}

	if v := strings.TrimSpace(c.Query("side")); v != "" {
		side, ok := ledger.ParseSide(v)
		if !ok {
			s.badRequest(c, "invalid side (use 'buy' or 'sell')")
			return
		}
		f.Side = side
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequest(c, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	rows, err := s.Deps.Orders.ListOrders(c.Request.Context(), userID(c), f)
	if err != nil {
		s.fail(c, "ListOrders", err)
		return
	}
	if rows == nil {
		rows = []ledger.Order{}
	}
	c.JSON(http.StatusOK, ordersResponse{Orders: rows})
}

// --- Portfolio ---

func (s *Server) getPortfolio(c *gin.Context) {
	var lookup market.PriceLookup
	if s.Deps.Prices != nil {
		lookup = s.Deps.Prices.Lookup()
	}
	positions, sum, err := s.Deps.Portfolio.Summary(c.Request.Context(), userID(c), lookup)
	if err != nil {
		s.fail(c, "Portfolio", err)
		return
	}
	c.JSON(http.StatusOK, portfolioResponse{Portfolio: positions, Summary: sum})
}

// --- Wallet ---

func (s *Server) getWallet(c *gin.Context) {
	w, err := s.Deps.Wallets.Get(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, "GetWallet", err)
		return
	}
	c.JSON(http.StatusOK, walletResponse{Wallet: w})
}

func (s *Server) postDeposit(c *gin.Context) {
	var body amountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	w, err := s.Deps.Wallets.Deposit(c.Request.Context(), userID(c), *body.Amount)
	if err != nil {
		s.fail(c, "Deposit", err)
		return
	}
	c.JSON(http.StatusOK, walletResponse{Message: "Funds added successfully", Wallet: w})
}

func (s *Server) postWithdraw(c *gin.Context) {
	var body amountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	w, err := s.Deps.Wallets.Withdraw(c.Request.Context(), userID(c), *body.Amount)
	if err != nil {
		s.fail(c, "Withdraw", err)
		return
	}
	c.JSON(http.StatusOK, walletResponse{Message: "Funds withdrawn successfully", Wallet: w})
}

func (s *Server) getTransactions(c *gin.Context) {
	rows, err := s.Deps.Orders.Transactions(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, "Transactions", err)
		return
	}
	if rows == nil {
		rows = []ledger.Order{}
	}
	c.JSON(http.StatusOK, transactionsResponse{Transactions: rows})
}

// --- Stocks ---

func (s *Server) getStocks(c *gin.Context) {
	if s.Deps.Directory == nil {
		s.internalError(c, "ListStocks", errors.New("stock directory not configured"))
		return
	}
	stocks, err := s.Deps.Directory.List(c.Request.Context())
	if err != nil {
		s.fail(c, "ListStocks", err)
		return
	}

	rows := make([]stockView, 0, len(stocks))
	for _, st := range stocks {
		v := stockView{ID: st.ID, Symbol: st.Symbol, Name: st.Name}
		if s.Deps.Prices != nil {
			if q, err := s.Deps.Prices.Get(st.Symbol); err == nil {
				v.Price = &q.Price
				v.Change = &q.Change
				v.ChangePercent = &q.ChangePercent
				v.UpdatedAt = &q.Time
			}
		}
		rows = append(rows, v)
	}
	c.JSON(http.StatusOK, stocksResponse{Stocks: rows})
}
