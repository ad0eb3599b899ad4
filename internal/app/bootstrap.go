package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"perp_go/internal/api"
	"perp_go/internal/cache"
	"perp_go/internal/infra"
	"perp_go/internal/infra/backend"
	"perp_go/internal/infra/hyperliquid"
	"perp_go/internal/infra/storage"
	"perp_go/internal/order"
	"perp_go/internal/service"
	"perp_go/internal/state"
	"perp_go/internal/trading"

	"github.com/shopspring/decimal"
)

const shutdownTimeout = 10 * time.Second

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Storage    *storage.Storage
	Downloader *infra.IconDownloader
	Metrics    *infra.Metrics

	Prices  *service.PriceStore
	Markets *service.MarketCatalog
	Account *service.AccountSnapshot
	Candles *service.CandleHistory

	Form    *order.Form
	State   *state.State
	Trading *trading.Coordinator
	Stream  *hyperliquid.Stream
	Server  *api.Server

	mu          sync.Mutex
	wallet      string
	walletUnsub []func()
	unsub       []func()
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and builds every component. Nothing talks
// to the network until Run.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping perp_go...", slog.String("version", cfg.App.Version), slog.Bool("testnet", cfg.Trading.Testnet))

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	if cfg.Icons.Dir != "" {
		downloader, err := infra.NewIconDownloader(cfg.Icons.Dir, cfg.Icons.BaseURL, cfg.Icons.Size, store)
		if err != nil {
			return err
		}
		b.Downloader = downloader
	}

	b.Metrics = infra.GlobalMetrics
	opts := service.Options{Recorder: b.Metrics}
	info := hyperliquid.NewClient(cfg)

	b.Prices = service.NewPriceStore(info, cfg.Cache.Prices.Apply(service.PricePolicy), opts)
	b.Markets = service.NewMarketCatalog(info, cfg.Cache.Markets.Apply(service.MetaPolicy), opts)
	b.Account = service.NewAccountSnapshot(info, service.AccountPolicies{
		Account:   cfg.Cache.Account.Apply(service.AccountPolicy),
		Fills:     cfg.Cache.Fills.Apply(service.FillsPolicy),
		Portfolio: cfg.Cache.Portfolio.Apply(service.PortfolioPolicy),
	}, opts)
	b.Candles = service.NewCandleHistory(info, cfg.Cache.Candles.Apply(service.CandlePolicy), opts)

	leverage := decimal.NewFromInt(int64(cfg.Trading.Leverage))
	b.Form = order.NewForm("", leverage)
	st, err := state.New(store, b.Form)
	if err != nil {
		return err
	}
	b.State = st
	if cfg.Trading.WalletAddress != "" {
		b.State.SetWallet(cfg.Trading.WalletAddress)
	}

	b.Trading = trading.NewCoordinator(trading.Config{
		Session:     backend.NewClient(cfg),
		Credentials: cfg.Credentials(),
		Account:     b.Account,
		Prices:      b.Prices,
		Form:        b.Form,
		Leverage:    cfg.Trading.Leverage,
		Recorder:    b.Metrics,
	})

	deps := api.Deps{
		Prices:         b.Prices,
		Markets:        b.Markets,
		Account:        b.Account,
		Candles:        b.Candles,
		Form:           b.Form,
		Trading:        b.Trading,
		State:          b.State,
		Metrics:        b.Metrics,
		Records:        store,
		Leverage:       leverage,
		MinMargin:      cfg.Trading.MinMargin,
		Location:       cfg.Location(),
		RequestsPerSec: cfg.Server.RequestsPerSec,
		Burst:          cfg.Server.Burst,
		Version:        cfg.App.Version,
	}
	if cfg.API.Hyperliquid.Stream {
		b.Stream = hyperliquid.NewStream(cfg.WSURL(), b.Prices, b.Metrics)
		deps.Stream = b.Stream
	}
	b.Server = api.NewServer(deps)

	return nil
}

// Run starts background sync and serves the API until ctx is cancelled.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.unsub = append(b.unsub, b.Prices.Subscribe(nil))

	if b.Stream != nil {
		if err := b.Stream.Connect(ctx); err != nil {
			slog.Error("Failed to start price stream", slog.Any("error", err))
		} else {
			slog.Info("✅ Price stream started")
		}
	}

	b.unsub = append(b.unsub, b.State.OnSession(b.onSession))
	b.watchWallet(b.State.Session().Wallet)

	srv := &http.Server{
		Addr:              b.Config.Server.Addr,
		Handler:           b.Server,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("✨ API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// SyncAssets loads the market list and caches any missing icons.
func (b *Bootstrap) SyncAssets(ctx context.Context) {
	markets, err := b.Markets.Markets(ctx)
	if err != nil && !cache.IsStale(err) {
		slog.Warn("Market sync failed", slog.Any("error", err))
		return
	}
	slog.Info("✅ Markets loaded", slog.Int("count", len(markets)))

	if b.Downloader == nil {
		return
	}
	n, err := b.Downloader.Sync(ctx, markets)
	if err != nil {
		slog.Warn("Icon sync aborted", slog.Any("error", err))
		return
	}
	slog.Info("✅ Icons synced", slog.Int("downloaded", n))
}

// onSession moves account polling to the new wallet and drops the old
// wallet's cached data.
func (b *Bootstrap) onSession(s state.Session) {
	b.watchWallet(s.Wallet)
}

func (b *Bootstrap) watchWallet(wallet string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, fn := range b.walletUnsub {
		fn()
	}
	b.walletUnsub = nil
	if b.wallet != "" && b.wallet != wallet {
		b.Account.Disconnect(b.wallet)
	}
	b.wallet = wallet

	if wallet == "" {
		return
	}
	b.walletUnsub = append(b.walletUnsub,
		b.Account.SubscribeAccount(wallet, nil),
		b.Account.SubscribePortfolio(wallet, nil),
	)
}

// Close stops every timer, socket and the database.
func (b *Bootstrap) Close() {
	if b.Stream != nil {
		b.Stream.Disconnect()
	}

	b.mu.Lock()
	for _, fn := range b.walletUnsub {
		fn()
	}
	b.walletUnsub = nil
	b.mu.Unlock()
	for _, fn := range b.unsub {
		fn()
	}

	for _, c := range []interface{ Close() }{b.Prices, b.Markets, b.Account, b.Candles} {
		if c != nil {
			c.Close()
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close database", slog.Any("error", err))
		}
	}
	slog.Info("Shutdown complete")
}
