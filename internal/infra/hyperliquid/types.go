package hyperliquid

import (
	"encoding/json"
	"errors"
	"fmt"

	"perp_go/internal/domain"

	"github.com/shopspring/decimal"
)

// infoRequest is the POST /info body. Type selects the endpoint; the other
// fields are set per type.
type infoRequest struct {
	Type string         `json:"type"`
	User string         `json:"user,omitempty"`
	Req  *candleRequest `json:"req,omitempty"`
}

type candleRequest struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime,omitempty"`
}

// metaResponse mirrors the meta payload. marginTables is a list of
// [id, table] tuples.
type metaResponse struct {
	Universe     []domain.MarketEntry `json:"universe"`
	MarginTables []marginTableTuple   `json:"marginTables"`
}

type marginTableTuple struct {
	ID    int
	Table struct {
		Description string              `json:"description"`
		Tiers       []domain.MarginTier `json:"marginTiers"`
	}
}

func (t *marginTableTuple) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("margin table tuple has %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &t.ID); err != nil {
		return fmt.Errorf("margin table id: %w", err)
	}
	return json.Unmarshal(raw[1], &t.Table)
}

func (m metaResponse) toDomain() (domain.Meta, error) {
	out := domain.Meta{
		Universe:     m.Universe,
		MarginTables: make([]domain.MarginTable, 0, len(m.MarginTables)),
	}
	for i, e := range m.Universe {
		if e.Name == "" {
			return domain.Meta{}, fmt.Errorf("universe[%d]: missing name", i)
		}
	}
	for _, t := range m.MarginTables {
		out.MarginTables = append(out.MarginTables, domain.MarginTable{
			ID:          t.ID,
			Description: t.Table.Description,
			Tiers:       t.Table.Tiers,
		})
	}
	return out, nil
}

type clearinghouseResponse struct {
	MarginSummary      *domain.MarginSummary `json:"marginSummary"`
	CrossMarginSummary *domain.MarginSummary `json:"crossMarginSummary"`
	Withdrawable       decimal.Decimal       `json:"withdrawable"`
	AssetPositions     []struct {
		Type     string          `json:"type"`
		Position domain.Position `json:"position"`
	} `json:"assetPositions"`
	Time int64 `json:"time"`
}

func (r clearinghouseResponse) toDomain(user string) (domain.AccountState, error) {
	summary := r.CrossMarginSummary
	if summary == nil {
		summary = r.MarginSummary
	}
	if summary == nil {
		return domain.AccountState{}, errors.New("missing margin summary")
	}

	state := domain.AccountState{
		Address:       user,
		MarginSummary: *summary,
		Withdrawable:  r.Withdrawable,
		Positions:     make([]domain.Position, 0, len(r.AssetPositions)),
		Time:          r.Time,
	}
	for i, ap := range r.AssetPositions {
		if ap.Position.Symbol == "" {
			return domain.AccountState{}, fmt.Errorf("assetPositions[%d]: missing coin", i)
		}
		state.Positions = append(state.Positions, ap.Position)
	}
	return state, nil
}

// portfolioPoint decodes a [timestamp, "value"] pair.
type portfolioPoint domain.PortfolioPoint

func (p *portfolioPoint) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("history point has %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Timestamp); err != nil {
		return fmt.Errorf("history timestamp: %w", err)
	}
	return json.Unmarshal(raw[1], &p.Value)
}

type portfolioSeries struct {
	AccountValueHistory []portfolioPoint `json:"accountValueHistory"`
	PnlHistory          []portfolioPoint `json:"pnlHistory"`
	Volume              decimal.Decimal  `json:"vlm"`
}

// portfolioEntry decodes a ["day", {...}] pair.
type portfolioEntry struct {
	Timeframe domain.Timeframe
	Series    portfolioSeries
}

func (e *portfolioEntry) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("portfolio entry has %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Timeframe); err != nil {
		return fmt.Errorf("portfolio timeframe: %w", err)
	}
	return json.Unmarshal(raw[1], &e.Series)
}

// toPortfolio validates that each series' histories line up index for index.
func toPortfolio(entries []portfolioEntry) (domain.Portfolio, error) {
	out := make(domain.Portfolio, len(entries))
	for _, e := range entries {
		av, pnl := e.Series.AccountValueHistory, e.Series.PnlHistory
		if len(av) != len(pnl) {
			return nil, fmt.Errorf("%s: %d account values vs %d pnl points", e.Timeframe, len(av), len(pnl))
		}
		series := domain.PortfolioSeries{
			AccountValueHistory: make([]domain.PortfolioPoint, len(av)),
			PnlHistory:          make([]domain.PortfolioPoint, len(pnl)),
			Volume:              e.Series.Volume,
		}
		for i := range av {
			if av[i].Timestamp != pnl[i].Timestamp {
				return nil, fmt.Errorf("%s[%d]: timestamps %d and %d differ", e.Timeframe, i, av[i].Timestamp, pnl[i].Timestamp)
			}
			series.AccountValueHistory[i] = domain.PortfolioPoint(av[i])
			series.PnlHistory[i] = domain.PortfolioPoint(pnl[i])
		}
		out[e.Timeframe] = series
	}
	return out, nil
}

// wsMessage is a websocket frame from the price stream.
type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type allMidsData struct {
	Mids map[string]string `json:"mids"`
}

// toPriceMap checks that every mid parses as a decimal. It serves both the
// allMids response and stream frames.
func toPriceMap(mids map[string]string) (domain.PriceMap, error) {
	for sym, px := range mids {
		if _, err := decimal.NewFromString(px); err != nil {
			return nil, malformed("allMids", fmt.Errorf("%s: %w", sym, err))
		}
	}
	return domain.PriceMap(mids), nil
}

type wsSubscribe struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
}
