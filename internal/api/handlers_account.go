package api

import (
	"net/http"
	"strings"

	"perp_go/internal/calc"
	"perp_go/internal/domain"

	"github.com/gin-gonic/gin"
)

func (s *Server) wallet() string {
	return s.deps.State.Session().Wallet
}

func (s *Server) getAccount(c *gin.Context) {
	st, err := s.deps.Account.Account(c.Request.Context(), s.wallet())
	staleErr, ok := s.readErr(c, err)
	if !ok {
		return
	}
	snap := s.deps.Account.AccountStatus(s.wallet())
	body := gin.H{
		"account":          st,
		"availableBalance": calc.FormatCurrency(st.AvailableBalance()),
		"isLoading":        snap.IsLoading,
		"fetchedAt":        snap.FetchedAt,
	}
	if staleErr != "" {
		body["error"] = staleErr
	} else if snap.Err != nil {
		body["error"] = snap.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.deps.Account.Positions(c.Request.Context(), s.wallet())
	staleErr, ok := s.readErr(c, err)
	if !ok {
		return
	}
	body := gin.H{
		"positions": calc.EvaluatePositions(positions, s.deps.Prices.Prices()),
		"closing":   s.deps.Trading.Closing(),
	}
	if staleErr != "" {
		body["error"] = staleErr
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getFills(c *gin.Context) {
	fills, err := s.deps.Account.Fills(c.Request.Context(), s.wallet())
	staleErr, ok := s.readErr(c, err)
	if !ok {
		return
	}
	body := gin.H{"fills": calc.EvaluateFills(fills, s.deps.Location)}
	if staleErr != "" {
		body["error"] = staleErr
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getPortfolio(c *gin.Context) {
	p, err := s.deps.Account.Portfolio(c.Request.Context(), s.wallet())
	staleErr, ok := s.readErr(c, err)
	if !ok {
		return
	}

	tf := domain.Timeframe(c.DefaultQuery("timeframe", string(domain.TimeframeDay)))
	series, ok := p[tf]
	if !ok && tf != domain.TimeframeDay {
		respondError(c, http.StatusBadRequest, "INVALID_TIMEFRAME", "unknown timeframe "+string(tf))
		return
	}
	points := calc.ChartSeries(series)

	body := gin.H{
		"stats":      calc.PortfolioStats(p),
		"timeframes": calc.TimeframeRows(p),
		"chart": gin.H{
			"timeframe": tf,
			"points":    points,
			"bounds":    calc.Bounds(points),
		},
	}
	if staleErr != "" {
		body["error"] = staleErr
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) closePosition(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("coin"))
	res, err := s.deps.Trading.ClosePosition(c.Request.Context(), s.wallet(), symbol)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
