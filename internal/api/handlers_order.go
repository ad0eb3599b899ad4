package api

import (
	"net/http"

	"perp_go/internal/domain"
	"perp_go/internal/order"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type orderView struct {
	Draft      domain.OrderDraft `json:"draft"`
	Validation order.Result      `json:"validation"`
	Result     *order.Submission `json:"result,omitempty"`
	Placing    bool              `json:"placing"`
}

type updateOrderRequest struct {
	Symbol *string      `json:"symbol"`
	Side   *domain.Side `json:"side"`
	Size   *string      `json:"size"`
}

// validate derives the submit decision from the live form and caches.
// It never triggers a network request.
func (s *Server) validate() order.Result {
	draft := s.deps.Form.Draft()
	sess := s.deps.State.Session()

	price, hasPrice := s.deps.Prices.Price(draft.Symbol)

	balance := decimal.Zero
	if sess.WalletConnected() {
		if snap := s.deps.Account.AccountStatus(sess.Wallet); snap.HasValue {
			balance = snap.Value.AvailableBalance()
		}
	}

	return order.Validate(order.Input{
		WalletConnected:  sess.WalletConnected(),
		Online:           sess.Online,
		Placing:          s.deps.Trading.Placing(draft.Symbol),
		Symbol:           draft.Symbol,
		Price:            price,
		HasPrice:         hasPrice,
		Size:             draft.Size,
		Leverage:         s.deps.Leverage,
		AvailableBalance: balance,
		MinMargin:        s.deps.MinMargin,
	})
}

func (s *Server) orderView() orderView {
	draft := s.deps.Form.Draft()
	return orderView{
		Draft:      draft,
		Validation: s.validate(),
		Result:     s.deps.Form.Result(),
		Placing:    s.deps.Trading.Placing(draft.Symbol),
	}
}

func (s *Server) getOrder(c *gin.Context) {
	c.JSON(http.StatusOK, s.orderView())
}

func (s *Server) updateOrder(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	if req.Symbol != nil {
		if _, err := s.deps.Markets.Lookup(c.Request.Context(), *req.Symbol); err != nil {
			s.respondErr(c, err)
			return
		}
		if err := s.deps.State.SelectSymbol(*req.Symbol); err != nil {
			s.logger.Warn("Symbol selection not persisted", "error", err)
		}
	}
	if req.Side != nil {
		if err := s.deps.Form.SetSide(*req.Side); err != nil {
			s.respondErr(c, err)
			return
		}
	}
	if req.Size != nil {
		s.deps.Form.SetSize(*req.Size)
	}

	c.JSON(http.StatusOK, s.orderView())
}

func (s *Server) placeOrder(c *gin.Context) {
	ctx := c.Request.Context()
	draft := s.deps.Form.Draft()

	// make sure the margin check sees a balance
	if w := s.wallet(); w != "" {
		if _, err := s.deps.Account.Account(ctx, w); err != nil {
			s.logger.Warn("Account unavailable for validation", "error", err)
		}
	}

	res, err := s.deps.Trading.PlaceOrder(ctx, s.wallet(), draft, s.validate())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result": res,
		"order":  s.orderView(),
	})
}
