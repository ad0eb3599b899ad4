package api

import (
	"net/http"
	"strings"

	"perp_go/internal/domain"

	"github.com/gin-gonic/gin"
)

type marketView struct {
	domain.MarketEntry
	Price      string `json:"price,omitempty"`
	IconPath   string `json:"iconPath,omitempty"`
	IsFavorite bool   `json:"isFavorite"`
}

func (s *Server) getPrices(c *gin.Context) {
	st := s.deps.Prices.Status()
	if len(st.Prices) == 0 && st.Error == "" {
		// first request: wait for a value instead of answering empty
		if _, err := s.deps.Prices.Fetch(c.Request.Context()); err != nil {
			s.respondErr(c, err)
			return
		}
		st = s.deps.Prices.Status()
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getMarkets(c *gin.Context) {
	markets, err := s.deps.Markets.Markets(c.Request.Context())
	staleErr, ok := s.readErr(c, err)
	if !ok {
		return
	}

	var records map[string]domain.MarketRecord
	if s.deps.Records != nil {
		if records, err = s.deps.Records.MarketRecords(); err != nil {
			s.logger.Warn("Failed to load market records", "error", err)
		}
	}
	prices := s.deps.Prices.Prices()

	onlyFav := c.Query("favorites") == "true"
	out := make([]marketView, 0, len(markets))
	for _, m := range markets {
		rec := records[m.Name]
		if onlyFav && !rec.IsFavorite {
			continue
		}
		out = append(out, marketView{
			MarketEntry: m,
			Price:       prices[m.Name],
			IconPath:    rec.IconPath,
			IsFavorite:  rec.IsFavorite,
		})
	}

	st := s.deps.Markets.Status()
	if staleErr == "" {
		staleErr = st.Error
	}
	c.JSON(http.StatusOK, gin.H{
		"markets":   out,
		"isLoading": st.IsLoading,
		"error":     staleErr,
	})
}

func (s *Server) toggleFavorite(c *gin.Context) {
	if s.deps.Records == nil {
		respondError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "market storage not configured")
		return
	}
	entry, err := s.deps.Markets.Lookup(c.Request.Context(), c.Param("coin"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	fav, err := s.deps.Records.ToggleFavorite(entry.Name)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": entry.Name, "isFavorite": fav})
}

func (s *Server) getCandles(c *gin.Context) {
	interval := domain.CandleInterval(c.DefaultQuery("interval", string(domain.Interval1h)))
	if !interval.Valid() {
		respondError(c, http.StatusBadRequest, "INVALID_INTERVAL", "interval must be one of 1m, 5m, 15m, 1h, 4h, 1d")
		return
	}
	coin := strings.TrimSpace(c.Param("coin"))
	candles, err := s.deps.Candles.Candles(c.Request.Context(), coin, interval)
	staleErr, ok := s.readErr(c, err)
	if !ok {
		return
	}
	body := gin.H{
		"coin":     coin,
		"interval": interval,
		"candles":  candles,
	}
	if staleErr != "" {
		body["error"] = staleErr
	}
	c.JSON(http.StatusOK, body)
}
