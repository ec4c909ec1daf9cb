package availability

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/config"
	"github.com/sells-group/intake-cli/internal/model"
)

// searchEngine is one engine the browser tier queries.
type searchEngine struct {
	name      string
	urlFormat string // %s is the escaped query
}

var defaultEngines = []searchEngine{
	{name: "bing", urlFormat: "https://www.bing.com/search?q=%s"},
	{name: "duckduckgo", urlFormat: "https://duckduckgo.com/html/?q=%s"},
}

// BrowserTier is the last-resort tier: a headless browser runs the address
// through general search engines and the classifier reads the result page
// text. Engines that serve a CAPTCHA are skipped, not retried.
type BrowserTier struct {
	cfg     config.BrowserConfig
	engines []searchEngine
	// runSearch is swapped in tests to avoid launching a browser.
	runSearch func(ctx context.Context, engine searchEngine, query string) (string, error)
}

// NewBrowserTier creates the tier from config.
func NewBrowserTier(cfg config.BrowserConfig) *BrowserTier {
	t := &BrowserTier{cfg: cfg, engines: defaultEngines}
	t.runSearch = t.chromedpSearch
	return t
}

func (b *BrowserTier) Name() string { return "browser" }

func (b *BrowserTier) Resolve(ctx context.Context, rec *model.PropertyRecord) (*model.AvailabilityResult, error) {
	if !rec.HasAddress() {
		return nil, eris.New("browser: record has no address to query")
	}
	query := rec.FullAddress() + " listing status"

	var lastErr error
	for _, engine := range b.engines {
		text, err := b.runSearch(ctx, engine, query)
		if err != nil {
			lastErr = err
			zap.L().Debug("browser: engine failed",
				zap.String("engine", engine.name), zap.Error(err))
			continue
		}
		if blocked, blockType := DetectBlockText([]byte(text)); blocked {
			zap.L().Debug("browser: engine blocked, skipping",
				zap.String("engine", engine.name), zap.String("block", string(blockType)))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		// The first engine that serves a readable result page is the
		// answer, whatever the classifier makes of it. A second browser
		// session would read the same public index.
		cls := Classify(text)
		detail := "via " + engine.name
		if cls.Detail != "" {
			detail = fmt.Sprintf("%s via %s", cls.Detail, engine.name)
		}
		return &model.AvailabilityResult{
			Status:    cls.Status,
			Source:    model.SourceWebSearch,
			CheckedAt: time.Now().UTC(),
			Detail:    detail,
			Facts:     cls.Facts,
		}, nil
	}

	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "browser: all engines failed")
	}
	return &model.AvailabilityResult{
		Status:    model.MarketStatusUnknown,
		Source:    model.SourceWebSearch,
		CheckedAt: time.Now().UTC(),
	}, nil
}

// chromedpSearch runs one engine query in a fresh headless browser context.
// Both the allocator and the tab context are canceled before returning.
func (b *BrowserTier) chromedpSearch(ctx context.Context, engine searchEngine, query string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer cancelTab()

	timeout := time.Duration(b.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	runCtx, cancelRun := context.WithTimeout(tabCtx, timeout)
	defer cancelRun()

	searchURL := fmt.Sprintf(engine.urlFormat, url.QueryEscape(query))

	var text string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", eris.Wrapf(err, "browser: %s search", engine.name)
	}
	return text, nil
}
