// Package browser reads crash-game result feeds with headless Chrome.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/Vodeneev/crashwatch/internal/parser/parsers"
	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

func init() {
	parsers.Register("chromedp", func(cfg *config.PollerConfig, platforms []config.PlatformConfig) (parsers.Reader, error) {
		return NewReader(cfg, platforms), nil
	})
}

// Reader keeps one Chrome process alive across cycles and opens a tab per fetch.
type Reader struct {
	browser      config.BrowserConfig
	maxRows      int
	fetchTimeout time.Duration
	platforms    map[string]config.PlatformConfig

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewReader(cfg *config.PollerConfig, platforms []config.PlatformConfig) *Reader {
	r := &Reader{
		browser:      cfg.Browser,
		maxRows:      cfg.MaxRows,
		fetchTimeout: cfg.FetchTimeout,
		platforms:    make(map[string]config.PlatformConfig, len(platforms)),
	}
	for _, p := range platforms {
		r.platforms[p.Name] = p
	}
	return r
}

func (r *Reader) FetchLatestRows(ctx context.Context, platform string) ([]models.RawRow, error) {
	p, ok := r.platforms[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", parsers.ErrUnknownPlatform, platform)
	}

	browserCtx, err := r.ensureBrowser()
	if err != nil {
		return nil, fmt.Errorf("%w: start browser: %w", parsers.ErrSourceUnavailable, err)
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, r.fetchTimeout)
		defer cancel()
	}

	var texts []string
	actions := []chromedp.Action{
		chromedp.Navigate(p.URL),
		chromedp.WaitVisible(p.Selector, chromedp.ByQuery),
	}
	if r.browser.SettleWait > 0 {
		actions = append(actions, chromedp.Sleep(r.browser.SettleWait))
	}
	actions = append(actions, chromedp.Evaluate(cellsScript(p.Selector, r.maxRows), &texts))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if browserCtx.Err() != nil {
			r.resetBrowser()
		}
		return nil, fmt.Errorf("%w: %s: %w", parsers.ErrSourceUnavailable, platform, err)
	}

	rows := rowsFromTexts(texts, r.maxRows)
	slog.Debug("Fetched rows", "platform", platform, "rows", len(rows))
	return rows, nil
}

func (r *Reader) Close() error {
	r.resetBrowser()
	return nil
}

func (r *Reader) ensureBrowser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	r.closeLocked()

	userAgent := r.browser.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.browser.HeadlessBrowser()),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if r.browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.browser.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, v ...interface{}) {
		slog.Debug("chromedp", "message", fmt.Sprintf(format, v...))
	}))

	// starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	r.allocCancel = allocCancel
	r.browserCtx = browserCtx
	r.browserCancel = browserCancel
	slog.Info("Browser started", "headless", r.browser.HeadlessBrowser())
	return browserCtx, nil
}

func (r *Reader) resetBrowser() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Reader) closeLocked() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx, r.browserCancel, r.allocCancel = nil, nil, nil
}

// cellsScript returns the innerText of the first n elements matching selector.
func cellsScript(selector string, n int) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).slice(0, %d).map(e => e.innerText || "")`, sel, n)
}

// rowsFromTexts keeps the page order: index 0 is the newest cell.
func rowsFromTexts(texts []string, maxRows int) []models.RawRow {
	rows := make([]models.RawRow, 0, len(texts))
	for i, t := range texts {
		if maxRows > 0 && i >= maxRows {
			break
		}
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		rows = append(rows, models.RawRow{Text: t, DisplayOrder: i})
	}
	return rows
}
