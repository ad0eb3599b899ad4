package api

import (
	"net/http"

	"perp_go/internal/domain"

	"github.com/gin-gonic/gin"
)

type walletRequest struct {
	Address string `json:"address"`
}

type networkRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type settingsRequest struct {
	SelectedSymbol *string       `json:"selectedSymbol"`
	Theme          *domain.Theme `json:"theme"`
}

func (s *Server) setWallet(c *gin.Context) {
	var req walletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	s.deps.State.SetWallet(req.Address)
	c.JSON(http.StatusOK, s.deps.State.Session())
}

func (s *Server) setNetwork(c *gin.Context) {
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "online flag is required")
		return
	}
	s.deps.State.SetOnline(*req.Online)
	c.JSON(http.StatusOK, s.deps.State.Session())
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.State.Settings())
}

func (s *Server) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	if req.SelectedSymbol != nil {
		if _, err := s.deps.Markets.Lookup(c.Request.Context(), *req.SelectedSymbol); err != nil {
			s.respondErr(c, err)
			return
		}
		if err := s.deps.State.SelectSymbol(*req.SelectedSymbol); err != nil {
			s.respondErr(c, err)
			return
		}
	}
	if req.Theme != nil {
		if err := s.deps.State.SetTheme(*req.Theme); err != nil {
			s.respondErr(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.deps.State.Settings())
}
