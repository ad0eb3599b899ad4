// Package api exposes prices, markets, account data and the order flow as a
// local JSON HTTP API.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"perp_go/internal/cache"
	"perp_go/internal/domain"
	"perp_go/internal/infra"
	"perp_go/internal/order"
	"perp_go/internal/service"
	"perp_go/internal/state"
	"perp_go/internal/trading"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MarketStore holds local market records. storage.Storage implements it.
type MarketStore interface {
	MarketRecords() (map[string]domain.MarketRecord, error)
	ToggleFavorite(symbol string) (bool, error)
}

// StreamStatus reports the live price stream. hyperliquid.Stream implements it.
type StreamStatus interface {
	IsConnected() bool
}

// Deps are the components the handlers read from and drive.
type Deps struct {
	Prices  *service.PriceStore
	Markets *service.MarketCatalog
	Account *service.AccountSnapshot
	Candles *service.CandleHistory
	Form    *order.Form
	Trading *trading.Coordinator
	State   *state.State
	Metrics *infra.Metrics

	Records MarketStore  // optional
	Stream  StreamStatus // optional

	Leverage  decimal.Decimal
	MinMargin decimal.Decimal
	Location  *time.Location

	RequestsPerSec float64
	Burst          int
	Version        string
}

// Server wires HTTP endpoints around the services.
type Server struct {
	Router *gin.Engine
	deps   Deps
	logger *slog.Logger
}

// NewServer builds the router with its middleware stack.
func NewServer(deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if !deps.Leverage.IsPositive() {
		deps.Leverage = order.DefaultLeverage
	}

	logger := slog.Default().With("module", "api")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(deps.RequestsPerSec, deps.Burst))

	s := &Server{Router: r, deps: deps, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.GET("/prices", s.getPrices)
		api.GET("/markets", s.getMarkets)
		api.PUT("/markets/:coin/favorite", s.toggleFavorite)
		api.GET("/candles/:coin", s.getCandles)

		api.GET("/account", s.getAccount)
		api.GET("/positions", s.getPositions)
		api.POST("/positions/:coin/close", s.closePosition)
		api.GET("/fills", s.getFills)
		api.GET("/portfolio", s.getPortfolio)

		api.GET("/order", s.getOrder)
		api.PUT("/order", s.updateOrder)
		api.POST("/order", s.placeOrder)

		api.PUT("/wallet", s.setWallet)
		api.PUT("/network", s.setNetwork)
		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.updateSettings)

		api.GET("/metrics", s.getMetrics)
	}
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok", "version": s.deps.Version}
	if s.deps.Stream != nil {
		body["stream"] = s.deps.Stream.IsConnected()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.deps.Metrics == nil {
		c.JSON(http.StatusOK, infra.MetricsSnapshot{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Metrics.Snapshot())
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// readErr answers err unless it came with a last good value. It returns the
// text to render next to that value, and false once a response was sent.
func (s *Server) readErr(c *gin.Context, err error) (string, bool) {
	switch {
	case err == nil:
		return "", true
	case cache.IsStale(err):
		return err.Error(), true
	default:
		s.respondErr(c, err)
		return "", false
	}
}

// respondErr maps the domain error taxonomy onto HTTP statuses.
func (s *Server) respondErr(c *gin.Context, err error) {
	var (
		ve *domain.ValidationError
		me *domain.MutationError
		ce *domain.ConfigError
		ne *domain.NetworkError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":   "VALIDATION_FAILED",
			"reason": ve.Reason,
			"error":  ve.Message,
		})
	case errors.As(err, &me):
		c.JSON(http.StatusBadGateway, gin.H{
			"code":   "REJECTED",
			"op":     me.Op,
			"symbol": me.Symbol,
			"error":  me.Message,
		})
	case errors.Is(err, domain.ErrWalletRequired):
		respondError(c, http.StatusBadRequest, "WALLET_REQUIRED", err.Error())
	case errors.Is(err, domain.ErrAlreadyInFlight):
		respondError(c, http.StatusConflict, "IN_FLIGHT", err.Error())
	case errors.Is(err, domain.ErrInvalidSymbol):
		respondError(c, http.StatusNotFound, "INVALID_SYMBOL", err.Error())
	case errors.As(err, &ce):
		respondError(c, http.StatusServiceUnavailable, "CONFIG_ERROR", err.Error())
	case errors.Is(err, domain.ErrMalformedPayload), errors.As(err, &ne):
		respondError(c, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error())
	default:
		s.logger.Error("Unhandled error", slog.String("path", c.FullPath()), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
