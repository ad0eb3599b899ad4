package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"perp_go/internal/domain"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	defaultIconSize     = 64
	iconSyncConcurrency = 4
)

// IconStore records where an icon was saved. storage.Storage implements it.
type IconStore interface {
	SetIconPath(symbol, path string) error
}

// IconDownloader downloads, resizes and caches market icons on disk.
type IconDownloader struct {
	basePath string
	baseURL  string
	size     int
	client   *http.Client
	store    IconStore
	logger   *slog.Logger
}

// NewIconDownloader creates the icon directory and an HTTP client.
// store may be nil.
func NewIconDownloader(dir, baseURL string, size int, store IconStore) (*IconDownloader, error) {
	if dir == "" {
		return nil, &domain.ConfigError{Field: "icons.dir", Err: fmt.Errorf("required")}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}
	if size <= 0 {
		size = defaultIconSize
	}

	// Bounded pool: icon sync fans out across the whole universe
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconDownloader{
		basePath: dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		size:     size,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		store:  store,
		logger: slog.Default().With("module", "icons"),
	}, nil
}

// DownloadIcon fetches the icon for symbol unless it is already on disk and
// returns the local path.
func (d *IconDownloader) DownloadIcon(ctx context.Context, symbol string) (string, error) {
	safeSymbol := sanitizeSymbol(symbol)
	if safeSymbol == "" {
		return "", fmt.Errorf("icon %q: %w", symbol, domain.ErrInvalidSymbol)
	}

	filePath := d.IconPath(safeSymbol)
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil
	}

	url := fmt.Sprintf("%s/%s.png", d.baseURL, safeSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.NewNetworkError("icon", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &domain.NetworkError{Op: "icon", StatusCode: resp.StatusCode, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	resized := imaging.Resize(srcImg, d.size, d.size, imaging.Lanczos)
	if err := imaging.Save(resized, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}
	return filePath, nil
}

// Sync downloads icons for every entry. A failed icon is logged and skipped;
// only context cancellation aborts the run. Returns the number of icons on disk.
func (d *IconDownloader) Sync(ctx context.Context, entries []domain.MarketEntry) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(iconSyncConcurrency)

	paths := make([]string, len(entries))
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			path, err := d.DownloadIcon(ctx, e.Name)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.logger.Debug("Icon unavailable", slog.String("symbol", e.Name), slog.Any("error", err))
				return nil
			}
			paths[i] = path
			if d.store != nil {
				if err := d.store.SetIconPath(e.Name, path); err != nil {
					d.logger.Warn("Failed to record icon path", slog.String("symbol", e.Name), slog.Any("error", err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, p := range paths {
		if p != "" {
			n++
		}
	}
	d.logger.Info("Icon sync finished", slog.Int("markets", len(entries)), slog.Int("icons", n))
	return n, nil
}

// IconPath returns the local path for a symbol's icon.
func (d *IconDownloader) IconPath(symbol string) string {
	return filepath.Join(d.basePath, strings.ToLower(sanitizeSymbol(symbol))+".png")
}

func sanitizeSymbol(symbol string) string {
	res := make([]rune, 0, len(symbol))
	for _, r := range symbol {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			res = append(res, r)
		}
	}
	return string(res)
}
