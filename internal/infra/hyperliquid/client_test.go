package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"perp_go/internal/domain"
	"perp_go/internal/infra"
)

// infoServer answers POST /info with the body registered for each type.
func infoServer(t *testing.T, bodies map[string]string, seen *[]infoRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req infoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if seen != nil {
			*seen = append(*seen, req)
		}
		body, ok := bodies[req.Type]
		if !ok {
			http.Error(w, "unknown type", http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func newTestClient(url string) *Client {
	cfg := &infra.Config{}
	cfg.API.Hyperliquid.InfoURL = url
	return NewClient(cfg)
}

func TestClient_AllMids(t *testing.T) {
	srv := infoServer(t, map[string]string{"allMids": `{"BTC":"43250.5","ETH":"2280.1"}`}, nil)
	defer srv.Close()

	mids, err := newTestClient(srv.URL).AllMids(context.Background())
	if err != nil {
		t.Fatalf("AllMids: %v", err)
	}
	if mids["BTC"] != "43250.5" || len(mids) != 2 {
		t.Errorf("mids = %v", mids)
	}
}

func TestClient_Meta(t *testing.T) {
	body := `{
		"universe": [
			{"name":"BTC","szDecimals":5,"maxLeverage":50,"marginTableId":50},
			{"name":"OLD","szDecimals":0,"maxLeverage":3,"marginTableId":3,"isDelisted":true}
		],
		"marginTables": [
			[50, {"description":"tiered 50x","marginTiers":[{"lowerBound":"0.0","maxLeverage":50},{"lowerBound":"150000000.0","maxLeverage":40}]}]
		]
	}`
	srv := infoServer(t, map[string]string{"meta": body}, nil)
	defer srv.Close()

	meta, err := newTestClient(srv.URL).Meta(context.Background())
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if len(meta.Universe) != 2 || !meta.Universe[1].IsDelisted {
		t.Errorf("universe = %+v", meta.Universe)
	}
	if len(meta.MarginTables) != 1 {
		t.Fatalf("margin tables = %+v", meta.MarginTables)
	}
	mt := meta.MarginTables[0]
	if mt.ID != 50 || len(mt.Tiers) != 2 || mt.Tiers[1].MaxLeverage != 40 {
		t.Errorf("margin table = %+v", mt)
	}
}

func TestClient_ClearinghouseState(t *testing.T) {
	body := `{
		"marginSummary":{"accountValue":"1.0","totalNtlPos":"0","totalRawUsd":"1","totalMarginUsed":"0"},
		"crossMarginSummary":{"accountValue":"1000.5","totalNtlPos":"4000","totalRawUsd":"1000","totalMarginUsed":"2000"},
		"withdrawable":"500",
		"assetPositions":[
			{"type":"oneWay","position":{"coin":"ETH","szi":"-1.5","entryPx":"4000","positionValue":"6000","unrealizedPnl":"-20","marginUsed":"2000","leverage":{"type":"isolated","value":2,"rawUsd":"1"},"liquidationPx":null}},
			{"type":"oneWay","position":{"coin":"BTC","szi":"0.1","entryPx":"40000","positionValue":"4000","unrealizedPnl":"5","marginUsed":"2000","leverage":{"type":"cross","value":2},"liquidationPx":"21000.5"}}
		],
		"time":1700000000000
	}`
	var seen []infoRequest
	srv := infoServer(t, map[string]string{"clearinghouseState": body}, &seen)
	defer srv.Close()

	state, err := newTestClient(srv.URL).ClearinghouseState(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("ClearinghouseState: %v", err)
	}
	if seen[0].User != "0xabc" {
		t.Errorf("user = %q", seen[0].User)
	}
	if state.MarginSummary.AccountValue.String() != "1000.5" {
		t.Errorf("account value = %s, want cross summary", state.MarginSummary.AccountValue)
	}
	if len(state.Positions) != 2 {
		t.Fatalf("positions = %+v", state.Positions)
	}
	eth := state.Positions[0]
	if !eth.IsShort() || eth.LiquidationPrice != nil || eth.Leverage.Type != domain.MarginModeIsolated {
		t.Errorf("eth = %+v", eth)
	}
	if btc := state.Positions[1]; btc.LiquidationPrice == nil || btc.LiquidationPrice.String() != "21000.5" {
		t.Errorf("btc liquidation = %v", btc.LiquidationPrice)
	}
}

func TestClient_UserFillsAndCandles(t *testing.T) {
	var seen []infoRequest
	srv := infoServer(t, map[string]string{
		"userFills":      `[{"time":1700000000000,"coin":"BTC","dir":"Open Long","side":"B","px":"43000","sz":"0.1","fee":"1.2","closedPnl":"0","hash":"0x1","oid":7,"tid":9}]`,
		"candleSnapshot": `[{"t":1,"T":2,"s":"BTC","i":"1h","o":"1","c":"2","h":"3","l":"0.5","v":"10","n":4}]`,
	}, &seen)
	defer srv.Close()
	c := newTestClient(srv.URL)

	fills, err := c.UserFills(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("UserFills: %v", err)
	}
	if len(fills) != 1 || fills[0].Price.String() != "43000" || fills[0].OrderID != 7 {
		t.Errorf("fills = %+v", fills)
	}

	candles, err := c.CandleSnapshot(context.Background(), "BTC", domain.Interval1h, 1000)
	if err != nil {
		t.Fatalf("CandleSnapshot: %v", err)
	}
	if len(candles) != 1 || candles[0].High.String() != "3" {
		t.Errorf("candles = %+v", candles)
	}
	req := seen[1].Req
	if req == nil || req.Coin != "BTC" || req.Interval != "1h" || req.StartTime != 1000 {
		t.Errorf("candle request = %+v", req)
	}
}

func TestClient_Portfolio(t *testing.T) {
	body := `[
		["day", {"accountValueHistory":[[1,"100"],[2,"110"]],"pnlHistory":[[1,"0"],[2,"10"]],"vlm":"250.5"}],
		["perpDay", {"accountValueHistory":[],"pnlHistory":[],"vlm":"0"}]
	]`
	srv := infoServer(t, map[string]string{"portfolio": body}, nil)
	defer srv.Close()

	p, err := newTestClient(srv.URL).Portfolio(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	day := p[domain.TimeframeDay]
	if day.LatestAccountValue().String() != "110" || day.LatestPnl().String() != "10" || day.Volume.String() != "250.5" {
		t.Errorf("day = %+v", day)
	}
	if _, ok := p["perpDay"]; !ok {
		t.Error("unknown timeframe keys must be kept")
	}
}

func TestClient_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		body string
		call func(*Client) error
	}{
		{"non-numeric mid", "allMids", `{"BTC":"abc"}`, func(c *Client) error {
			_, err := c.AllMids(context.Background())
			return err
		}},
		{"mids not an object", "allMids", `[1,2]`, func(c *Client) error {
			_, err := c.AllMids(context.Background())
			return err
		}},
		{"misaligned portfolio", "portfolio", `[["day",{"accountValueHistory":[[1,"1"],[2,"2"]],"pnlHistory":[[1,"0"]],"vlm":"0"}]]`, func(c *Client) error {
			_, err := c.Portfolio(context.Background(), "0xabc")
			return err
		}},
		{"portfolio timestamps differ", "portfolio", `[["day",{"accountValueHistory":[[1,"1"]],"pnlHistory":[[5,"0"]],"vlm":"0"}]]`, func(c *Client) error {
			_, err := c.Portfolio(context.Background(), "0xabc")
			return err
		}},
		{"missing margin summary", "clearinghouseState", `{"assetPositions":[]}`, func(c *Client) error {
			_, err := c.ClearinghouseState(context.Background(), "0xabc")
			return err
		}},
		{"bad margin table tuple", "meta", `{"universe":[],"marginTables":[[1]]}`, func(c *Client) error {
			_, err := c.Meta(context.Background())
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := infoServer(t, map[string]string{tt.typ: tt.body}, nil)
			defer srv.Close()

			err := tt.call(newTestClient(srv.URL))
			if !errors.Is(err, domain.ErrMalformedPayload) {
				t.Fatalf("err = %v, want ErrMalformedPayload", err)
			}
			if domain.IsRetriable(err) {
				t.Error("malformed payload must not be retriable")
			}
		})
	}
}

func TestClient_HTTPErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AllMids(context.Background())
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if ne.StatusCode != http.StatusServiceUnavailable || !ne.IsRetriable() {
		t.Errorf("network error = %+v", ne)
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := infoServer(t, map[string]string{"allMids": `{}`}, nil)
	defer srv.Close()

	cfg := &infra.Config{}
	cfg.API.Hyperliquid.InfoURL = srv.URL
	cfg.API.Hyperliquid.RequestsPerSec = 0.001
	cfg.API.Hyperliquid.Burst = 1
	c := NewClient(cfg)

	if _, err := c.AllMids(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.AllMids(ctx); err == nil {
		t.Error("expected limiter wait to fail on cancelled context")
	}
}
