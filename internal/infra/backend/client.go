// Package backend is the signed HTTP client of the trading backend that
// executes leverage changes, market orders and position closes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"perp_go/internal/domain"
	"perp_go/internal/infra"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

// Client implements domain.TradingSession.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger

	mu      sync.RWMutex
	session string
}

var _ domain.TradingSession = (*Client)(nil)

// NewClient creates a backend client from cfg.
func NewClient(cfg *infra.Config) *Client {
	b := cfg.API.Backend
	timeout := defaultTimeout
	if b.TimeoutSec > 0 {
		timeout = time.Duration(b.TimeoutSec) * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(b.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(b.APIKey, b.APISecret),
		logger: slog.Default().With("module", "backend_client"),
	}
}

type sessionRequest struct {
	WalletAddress string `json:"walletAddress"`
	VaultAddress  string `json:"vaultAddress,omitempty"`
	Testnet       bool   `json:"testnet"`
	Timestamp     string `json:"timestamp"`
	Proof         string `json:"proof"`
}

type leverageRequest struct {
	Symbol   string `json:"symbol"`
	Mode     string `json:"mode"`
	Leverage int    `json:"leverage"`
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	IsBuy         bool   `json:"isBuy"`
	Size          string `json:"size"`
	ClientOrderID string `json:"clientOrderId"`
}

type closeRequest struct {
	Symbol        string `json:"symbol"`
	ClientOrderID string `json:"clientOrderId"`
}

// Initialize opens a trading session for creds.
func (c *Client) Initialize(ctx context.Context, creds domain.Credentials) error {
	if c.baseURL == "" {
		return &domain.ConfigError{Field: "api.backend.base_url", Err: fmt.Errorf("required")}
	}
	if creds.PrivateKey == "" {
		return &domain.ConfigError{Field: "private_key", Err: fmt.Errorf("required")}
	}

	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	req := sessionRequest{
		WalletAddress: creds.WalletAddress,
		VaultAddress:  creds.VaultAddress,
		Testnet:       creds.Testnet,
		Timestamp:     ts,
		Proof:         sessionProof(creds.PrivateKey, creds.WalletAddress, ts),
	}

	res := c.do(ctx, "/session", req)
	if !res.Success {
		return domain.NewFatalNetworkError("session", fmt.Errorf("%s", res.Error))
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(res.Data, &data); err != nil || data.Token == "" {
		return fmt.Errorf("session: %w", domain.ErrMalformedPayload)
	}

	c.mu.Lock()
	c.session = data.Token
	c.mu.Unlock()

	c.logger.Info("Session opened", slog.String("wallet", creds.WalletAddress), slog.Bool("testnet", creds.Testnet))
	return nil
}

// UpdateLeverage sets the margin mode and leverage for symbol.
func (c *Client) UpdateLeverage(ctx context.Context, symbol, mode string, value int) domain.ActionResult {
	if res, ok := c.requireSession(); !ok {
		return res
	}
	return c.do(ctx, "/leverage", leverageRequest{Symbol: symbol, Mode: mode, Leverage: value})
}

// PlaceMarketOrder sends a market order of size on symbol.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) domain.ActionResult {
	if res, ok := c.requireSession(); !ok {
		return res
	}
	req := orderRequest{
		Symbol:        symbol,
		IsBuy:         isBuy,
		Size:          size.String(),
		ClientOrderID: uuid.NewString(),
	}
	res := c.do(ctx, "/order", req)
	if res.Success {
		c.logger.Info("Order accepted", slog.String("symbol", symbol), slog.String("cloid", req.ClientOrderID))
	}
	return res
}

// ClosePosition closes the whole position on symbol at market.
func (c *Client) ClosePosition(ctx context.Context, symbol string) domain.ActionResult {
	if res, ok := c.requireSession(); !ok {
		return res
	}
	return c.do(ctx, "/close", closeRequest{Symbol: symbol, ClientOrderID: uuid.NewString()})
}

func (c *Client) requireSession() (domain.ActionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == "" {
		return domain.ActionResult{Success: false, Error: domain.ErrNotInitialized.Error()}, false
	}
	return domain.ActionResult{}, true
}

// do posts body to path and decodes the {success,data,error} envelope.
// Failures of any kind come back as an unsuccessful ActionResult.
func (c *Client) do(ctx context.Context, path string, body any) domain.ActionResult {
	payload, err := json.Marshal(body)
	if err != nil {
		return failure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return failure(err)
	}
	for k, v := range c.signer.GenerateHeaders(http.MethodPost, path, string(payload)) {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	c.mu.RLock()
	if c.session != "" {
		req.Header.Set(HeaderSession, c.session)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", slog.String("path", path), slog.Any("error", err))
		return failure(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(err)
	}

	var result domain.ActionResult
	if err := json.Unmarshal(data, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return failure(fmt.Errorf("backend error: status=%d body=%s", resp.StatusCode, bytes.TrimSpace(data)))
		}
		return failure(fmt.Errorf("%s: %w", path, domain.ErrMalformedPayload))
	}
	if resp.StatusCode != http.StatusOK && result.Success {
		return failure(fmt.Errorf("backend error: status=%d", resp.StatusCode))
	}
	if !result.Success && result.Error == "" {
		result.Error = fmt.Sprintf("backend rejected %s", path)
	}
	return result
}

func failure(err error) domain.ActionResult {
	return domain.ActionResult{Success: false, Error: err.Error()}
}
