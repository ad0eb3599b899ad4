package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"perp_go/internal/cache"
	"perp_go/internal/domain"
)

// AccountPolicies groups the per-sub-resource policies of AccountSnapshot.
type AccountPolicies struct {
	Account   cache.Policy
	Fills     cache.Policy
	Portfolio cache.Policy
}

// DefaultAccountPolicies returns the wallet-scoped defaults.
func DefaultAccountPolicies() AccountPolicies {
	return AccountPolicies{Account: AccountPolicy, Fills: FillsPolicy, Portfolio: PortfolioPolicy}
}

// AccountSnapshot serves wallet-scoped data keyed by address. The empty
// address disables every sub-resource.
type AccountSnapshot struct {
	account   *cache.Resource[string, domain.AccountState]
	fills     *cache.Resource[string, []domain.Fill]
	portfolio *cache.Resource[string, domain.Portfolio]
	logger    *slog.Logger
}

// NewAccountSnapshot wires the three sub-resources to src.
func NewAccountSnapshot(src domain.InfoSource, policies AccountPolicies, opts Options) *AccountSnapshot {
	enabled := func(addr string) bool { return addr != "" }
	now := opts.now()

	a := &AccountSnapshot{logger: slog.Default().With("module", "account_snapshot")}
	a.account = cache.New(cache.Config[string, domain.AccountState]{
		Name:    "clearinghouseState",
		Policy:  policies.Account,
		Enabled: enabled,
		Fetch: func(ctx context.Context, addr string) (domain.AccountState, error) {
			st, err := src.ClearinghouseState(ctx, addr)
			if err != nil {
				return domain.AccountState{}, err
			}
			st.Address = addr
			st.Positions = openPositions(st.Positions)
			return st, nil
		},
		Recorder: opts.Recorder,
		Now:      now,
	})
	a.fills = cache.New(cache.Config[string, []domain.Fill]{
		Name:    "userFills",
		Policy:  policies.Fills,
		Enabled: enabled,
		Fetch: func(ctx context.Context, addr string) ([]domain.Fill, error) {
			return src.UserFills(ctx, addr)
		},
		Recorder: opts.Recorder,
		Now:      now,
	})
	a.portfolio = cache.New(cache.Config[string, domain.Portfolio]{
		Name:    "portfolio",
		Policy:  policies.Portfolio,
		Enabled: enabled,
		Fetch: func(ctx context.Context, addr string) (domain.Portfolio, error) {
			return src.Portfolio(ctx, addr)
		},
		Recorder: opts.Recorder,
		Now:      now,
	})
	return a
}

// NormalizeAddress trims and lower-cases a wallet address so one wallet maps
// onto one cache key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func openPositions(in []domain.Position) []domain.Position {
	out := make([]domain.Position, 0, len(in))
	for _, p := range in {
		if p.Size.IsZero() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Account returns margin summary and open positions for addr. Like every
// read here, a failed refresh returns the last good value with a
// *cache.StaleError.
func (a *AccountSnapshot) Account(ctx context.Context, addr string) (domain.AccountState, error) {
	st, err := a.account.Fetch(ctx, NormalizeAddress(addr))
	return st, wrapDisabled(err)
}

// AccountStatus returns the cached account entry without blocking.
func (a *AccountSnapshot) AccountStatus(addr string) cache.Snapshot[domain.AccountState] {
	return a.account.Get(NormalizeAddress(addr))
}

// Positions returns the open positions for addr.
func (a *AccountSnapshot) Positions(ctx context.Context, addr string) ([]domain.Position, error) {
	st, err := a.Account(ctx, addr)
	if err != nil && !cache.IsStale(err) {
		return nil, err
	}
	return st.Positions, err
}

// Fills returns the trade history for addr.
func (a *AccountSnapshot) Fills(ctx context.Context, addr string) ([]domain.Fill, error) {
	fills, err := a.fills.Fetch(ctx, NormalizeAddress(addr))
	return fills, wrapDisabled(err)
}

// Portfolio returns the per-timeframe history for addr.
func (a *AccountSnapshot) Portfolio(ctx context.Context, addr string) (domain.Portfolio, error) {
	p, err := a.portfolio.Fetch(ctx, NormalizeAddress(addr))
	return p, wrapDisabled(err)
}

// SubscribeAccount keeps account polling alive for addr while registered.
func (a *AccountSnapshot) SubscribeAccount(addr string, fn func(domain.AccountState)) (unsubscribe func()) {
	return a.account.Subscribe(NormalizeAddress(addr), func(s cache.Snapshot[domain.AccountState]) {
		if s.HasValue && s.Err == nil && fn != nil {
			fn(s.Value)
		}
	})
}

// SubscribePortfolio keeps portfolio polling alive for addr while registered.
func (a *AccountSnapshot) SubscribePortfolio(addr string, fn func(domain.Portfolio)) (unsubscribe func()) {
	return a.portfolio.Subscribe(NormalizeAddress(addr), func(s cache.Snapshot[domain.Portfolio]) {
		if s.HasValue && s.Err == nil && fn != nil {
			fn(s.Value)
		}
	})
}

// Invalidate marks margin, positions and fills stale after a mutation.
func (a *AccountSnapshot) Invalidate(addr string) {
	key := NormalizeAddress(addr)
	a.account.Invalidate(key)
	a.fills.Invalidate(key)
}

// InvalidatePortfolio marks the portfolio history stale.
func (a *AccountSnapshot) InvalidatePortfolio(addr string) {
	a.portfolio.Invalidate(NormalizeAddress(addr))
}

// Disconnect discards everything cached for addr.
func (a *AccountSnapshot) Disconnect(addr string) {
	key := NormalizeAddress(addr)
	a.account.Remove(key)
	a.fills.Remove(key)
	a.portfolio.Remove(key)
	a.logger.Info("Wallet data discarded", slog.String("address", key))
}

// Close stops every poll timer.
func (a *AccountSnapshot) Close() {
	a.account.Close()
	a.fills.Close()
	a.portfolio.Close()
}

func wrapDisabled(err error) error {
	if errors.Is(err, cache.ErrDisabled) {
		return domain.ErrWalletRequired
	}
	return err
}
