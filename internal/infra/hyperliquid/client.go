// Package hyperliquid reads market and account data from the Hyperliquid
// info API and streams mid prices over its websocket.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"perp_go/internal/domain"
	"perp_go/internal/infra"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 16 << 20
)

// Client implements domain.InfoSource over POST /info.
type Client struct {
	infoURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ domain.InfoSource = (*Client)(nil)

// NewClient creates an info client for the configured network.
func NewClient(cfg *infra.Config) *Client {
	hl := cfg.API.Hyperliquid

	timeout := defaultTimeout
	if hl.TimeoutSec > 0 {
		timeout = time.Duration(hl.TimeoutSec) * time.Second
	}

	limit := rate.Inf
	if hl.RequestsPerSec > 0 {
		limit = rate.Limit(hl.RequestsPerSec)
	}
	burst := hl.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		infoURL: cfg.InfoURL(),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default().With("module", "hyperliquid_client"),
	}
}

// AllMids returns the mid price of every listed symbol.
func (c *Client) AllMids(ctx context.Context) (domain.PriceMap, error) {
	var mids map[string]string
	if err := c.post(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return nil, err
	}
	return toPriceMap(mids)
}

// Meta returns the perpetual universe and margin tables.
func (c *Client) Meta(ctx context.Context) (domain.Meta, error) {
	var resp metaResponse
	if err := c.post(ctx, infoRequest{Type: "meta"}, &resp); err != nil {
		return domain.Meta{}, err
	}
	meta, err := resp.toDomain()
	if err != nil {
		return domain.Meta{}, malformed("meta", err)
	}
	return meta, nil
}

// CandleSnapshot returns candles for coin from startTime (ms) until now.
func (c *Client) CandleSnapshot(ctx context.Context, coin string, interval domain.CandleInterval, startTime int64) ([]domain.Candle, error) {
	req := infoRequest{
		Type: "candleSnapshot",
		Req: &candleRequest{
			Coin:      coin,
			Interval:  string(interval),
			StartTime: startTime,
			EndTime:   time.Now().UnixMilli(),
		},
	}
	var candles []domain.Candle
	if err := c.post(ctx, req, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// ClearinghouseState returns margin and open positions for user.
func (c *Client) ClearinghouseState(ctx context.Context, user string) (domain.AccountState, error) {
	var resp clearinghouseResponse
	if err := c.post(ctx, infoRequest{Type: "clearinghouseState", User: user}, &resp); err != nil {
		return domain.AccountState{}, err
	}
	state, err := resp.toDomain(user)
	if err != nil {
		return domain.AccountState{}, malformed("clearinghouseState", err)
	}
	return state, nil
}

// UserFills returns the trade history for user, newest first.
func (c *Client) UserFills(ctx context.Context, user string) ([]domain.Fill, error) {
	var fills []domain.Fill
	if err := c.post(ctx, infoRequest{Type: "userFills", User: user}, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// Portfolio returns account value and pnl histories per timeframe.
func (c *Client) Portfolio(ctx context.Context, user string) (domain.Portfolio, error) {
	var entries []portfolioEntry
	if err := c.post(ctx, infoRequest{Type: "portfolio", User: user}, &entries); err != nil {
		return nil, err
	}
	p, err := toPortfolio(entries)
	if err != nil {
		return nil, malformed("portfolio", err)
	}
	return p, nil
}

// post sends body and decodes the response into out. Transport failures and
// non-2xx responses are retriable; undecodable bodies are not.
func (c *Client) post(ctx context.Context, body infoRequest, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewNetworkError(body.Type, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.NewNetworkError(body.Type, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.NetworkError{
			Op:         body.Type,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(data)),
			Retriable:  true,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return malformed(body.Type, err)
	}

	c.logger.Debug("Info request",
		slog.String("type", body.Type),
		slog.Duration("latency", time.Since(start)),
	)
	return nil
}

func malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrMalformedPayload, err)
}
